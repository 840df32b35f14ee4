package node

import (
	"time"

	"github.com/psantana5/edgecap/pkg/capability"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStaleAfter is how long telemetry stays fresh
const DefaultStaleAfter = 5 * time.Minute

// RefreshObserver is told about every refresh attempt that reached a source
type RefreshObserver interface {
	ObserveRefresh(nodeID string, err error, elapsed time.Duration)
}

// Option configures a Node
type Option func(*Node)

// WithLogger sets the logger; nil keeps the silent default
func WithLogger(logger *logging.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithPolicy replaces the deriver thresholds. A policy that fails
// Validate is replaced by DefaultPolicy when the node is built.
func WithPolicy(p capability.Policy) Option {
	return func(n *Node) {
		n.policy = p
	}
}

// WithSource registers a telemetry source at creation
func WithSource(src telemetry.Source) Option {
	return func(n *Node) {
		n.source = src
	}
}

// WithRefreshTimeout bounds how long Refresh waits for the source. Zero waits forever.
func WithRefreshTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.refreshTimeout = d
	}
}

// WithStaleAfter sets the freshness window used by Stale
func WithStaleAfter(d time.Duration) Option {
	return func(n *Node) {
		n.staleAfter = d
	}
}

// WithID overrides the generated node id
func WithID(id string) Option {
	return func(n *Node) {
		if id != "" {
			n.id = id
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

// WithTracer sets the tracer used for refresh spans
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Node) {
		if tracer != nil {
			n.tracer = tracer
		}
	}
}

// WithRefreshObserver reports refresh outcomes, typically to metrics
func WithRefreshObserver(o RefreshObserver) Option {
	return func(n *Node) {
		n.observer = o
	}
}
