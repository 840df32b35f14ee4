// Package node implements the capability-adaptive node: it owns one device
// snapshot, optionally pulls fresh telemetry from a registered source, and
// answers scheduling queries derived from that snapshot.
//
// All state sits behind one mutex and every mutation replaces the snapshot
// as a unit. Sources are never invoked while the lock is held, so a source
// may call back into the same node.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/psantana5/edgecap/pkg/capability"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/psantana5/edgecap/pkg/telemetry"
	"github.com/psantana5/edgecap/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fallbackJSON is emitted when not even the conservative descriptor encodes
var fallbackJSON = []byte(`{"error":"serialization_failure"}`)

// marshal is swapped in tests to exercise encoding failures
var marshal = json.Marshal

// Node is a single capability-adaptive peer
type Node struct {
	id             string
	policy         capability.Policy
	logger         *logging.Logger
	tracer         trace.Tracer
	now            func() time.Time
	refreshTimeout time.Duration
	staleAfter     time.Duration
	observer       RefreshObserver

	mu       sync.Mutex
	closed   bool
	snapshot models.DeviceSnapshot
	version  uint64
	source   telemetry.Source

	cached        models.CapabilityDescriptor
	cachedVersion uint64
	cacheValid    bool
}

// New creates a node holding the default snapshot. It never fails.
func New(opts ...Option) *Node {
	n := &Node{
		id:         uuid.NewString(),
		policy:     capability.DefaultPolicy(),
		logger:     logging.Nop(),
		tracer:     tracing.Tracer(),
		now:        time.Now,
		staleAfter: DefaultStaleAfter,
		snapshot:   models.DefaultSnapshot(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.WithField("node_id", n.id)
	n.snapshot.UpdatedAt = n.now()

	if err := n.policy.Validate(); err != nil {
		n.logger.Warn("Invalid policy, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		n.policy = capability.DefaultPolicy()
	}

	n.logger.Debug("Node created", map[string]interface{}{
		"has_source": n.source != nil,
	})
	return n
}

// ID returns the node identity advertised in descriptors
func (n *Node) ID() string {
	return n.id
}

// Policy returns the thresholds this node derives with
func (n *Node) Policy() capability.Policy {
	return n.policy
}

// Close releases the node. Every later call fails with ErrInvalidHandle or
// reports conservative values; a second Close fails too.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return fmt.Errorf("close: %w", ErrInvalidHandle)
	}
	n.closed = true
	n.source = nil
	n.logger.Debug("Node destroyed")
	return nil
}

// commit swaps in a new snapshot; callers hold n.mu
func (n *Node) commit(s models.DeviceSnapshot) {
	n.snapshot = s
	n.version++
}

// mutate applies fn to a copy of the snapshot and commits it
func (n *Node) mutate(op string, fn func(*models.DeviceSnapshot)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return fmt.Errorf("%s: %w", op, ErrInvalidHandle)
	}

	next := n.snapshot
	fn(&next)
	next.Source = models.SourceManual
	next.UpdatedAt = n.now()
	n.commit(next.WithFloors())
	return nil
}

// UpdateNetworkType sets the network class from host text.
// Matching is case-insensitive with aliases; unrecognized text is stored as
// unknown. Empty text, embedded NUL or invalid UTF-8 is rejected.
func (n *Node) UpdateNetworkType(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return n.reject("update_network_type", "network type is empty")
	case strings.IndexByte(text, 0) >= 0:
		return n.reject("update_network_type", "network type contains NUL")
	case !utf8.ValidString(text):
		return n.reject("update_network_type", "network type is not valid UTF-8")
	}

	nt, known := models.ParseNetworkType(text)
	if !known {
		n.logger.Debug("Unrecognized network type stored as unknown", map[string]interface{}{
			"network_type": text,
		})
	}

	return n.mutate("update_network_type", func(s *models.DeviceSnapshot) {
		s.NetworkType = nt
	})
}

// UpdateBattery sets battery level and charging state.
// Exactly -1 means unknown; anything else is clamped into [0,1], NaN to 0.
func (n *Node) UpdateBattery(level float64, charging bool) error {
	clamped := models.ClampBatteryLevel(level)
	if clamped != level {
		n.logger.Debug("Battery level clamped", map[string]interface{}{
			"reported": level,
			"stored":   clamped,
		})
	}

	return n.mutate("update_battery", func(s *models.DeviceSnapshot) {
		s.BatteryLevel = clamped
		s.IsCharging = charging
	})
}

// UpdateHardware sets memory and core count. Zero for either is rejected.
func (n *Node) UpdateHardware(memoryMB, cpuCores uint32) error {
	if memoryMB == 0 {
		return n.reject("update_hardware", "memory_mb must be positive")
	}
	if cpuCores == 0 {
		return n.reject("update_hardware", "cpu_cores must be positive")
	}

	return n.mutate("update_hardware", func(s *models.DeviceSnapshot) {
		s.MemoryMB = memoryMB
		s.CPUCores = cpuCores
	})
}

func (n *Node) reject(op, reason string) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return fmt.Errorf("%s: %w", op, ErrInvalidHandle)
	}

	n.logger.Warn("Rejected input", map[string]interface{}{
		"op":     op,
		"reason": reason,
	})
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, reason)
}

// SetSource registers, replaces or (with nil) clears the telemetry source
func (n *Node) SetSource(src telemetry.Source) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return fmt.Errorf("set_source: %w", ErrInvalidHandle)
	}
	n.source = src
	return nil
}

// HasSource reports whether a telemetry source is registered
func (n *Node) HasSource() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.source != nil
}

// Refresh invokes the source once and, on success, replaces the snapshot
// with the normalized reading. On any failure the snapshot is untouched.
func (n *Node) Refresh(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("refresh: %w", ErrInvalidHandle)
	}
	src := n.source
	n.mu.Unlock()

	if src == nil {
		return fmt.Errorf("refresh: %w: no telemetry source registered", ErrSourceUnavailable)
	}

	ctx, span := n.tracer.Start(ctx, "node.refresh", trace.WithAttributes(
		attribute.String("node.id", n.id),
	))
	defer span.End()

	if n.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.refreshTimeout)
		defer cancel()
	}

	started := n.now()
	reading, err := telemetry.Read(ctx, src)
	elapsed := n.now().Sub(started)
	if n.observer != nil {
		n.observer.ObserveRefresh(n.id, err, elapsed)
	}

	if err != nil {
		tracing.SetError(span, err)
		n.logger.Warn("Telemetry refresh failed", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("refresh: %w: %w", ErrSourceUnavailable, err)
	}

	now := n.now()
	next := normalize(reading, now)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("refresh: %w", ErrInvalidHandle)
	}
	n.commit(next)
	n.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("device.memory_mb", int64(next.MemoryMB)),
		attribute.Int64("device.cpu_cores", int64(next.CPUCores)),
		attribute.String("device.network_type", string(next.NetworkType)),
	)
	n.logger.Debug("Telemetry refreshed", map[string]interface{}{
		"memory_mb":     next.MemoryMB,
		"cpu_cores":     next.CPUCores,
		"network_type":  next.NetworkType,
		"battery_level": next.BatteryLevel,
		"is_charging":   next.IsCharging,
		"elapsed_ms":    elapsed.Milliseconds(),
	})
	return nil
}

// normalize turns a raw reading into a storable snapshot
func normalize(r telemetry.Reading, now time.Time) models.DeviceSnapshot {
	nt := models.NetworkUnknown
	if r.NetworkType != "" {
		nt, _ = models.ParseNetworkType(r.NetworkType)
	}

	s := models.DeviceSnapshot{
		MemoryMB:        r.MemoryMB,
		CPUCores:        r.CPUCores,
		NetworkType:     nt,
		BatteryLevel:    models.ClampBatteryLevel(float64(r.BatteryLevel)),
		IsCharging:      r.IsCharging,
		Source:          models.SourceTelemetry,
		LastRefreshedAt: now,
		UpdatedAt:       now,
	}
	return s.WithFloors()
}

// Snapshot returns a copy of the current telemetry
func (n *Node) Snapshot() (models.DeviceSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return models.DeviceSnapshot{}, fmt.Errorf("snapshot: %w", ErrInvalidHandle)
	}
	return n.snapshot, nil
}

// Descriptor derives the capability descriptor, reusing the previous result
// while the snapshot is unchanged
func (n *Node) Descriptor() (models.CapabilityDescriptor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return models.CapabilityDescriptor{}, fmt.Errorf("descriptor: %w", ErrInvalidHandle)
	}

	if !n.cacheValid || n.cachedVersion != n.version {
		desc := n.policy.Derive(n.snapshot)
		desc.NodeID = n.id
		n.cached = desc
		n.cachedVersion = n.version
		n.cacheValid = true
	}

	out := n.cached
	out.PauseReasons = slices.Clone(n.cached.PauseReasons)
	if n.cached.LastRefreshedAt != nil {
		at := *n.cached.LastRefreshedAt
		out.LastRefreshedAt = &at
	}
	return out, nil
}

// Capabilities serializes the descriptor to JSON. It always returns a
// document: on a closed node or an encoding failure the conservative
// descriptor is returned with its error key set.
func (n *Node) Capabilities() []byte {
	desc, err := n.Descriptor()
	if err != nil {
		return ErrorJSON(err)
	}

	data, err := marshal(desc)
	if err != nil {
		n.logger.Error("Failed to encode capabilities", map[string]interface{}{
			"error": err.Error(),
		})
		return ErrorJSON(fmt.Errorf("%w: %w", ErrSerialization, err))
	}
	return data
}

// ErrorJSON encodes the conservative descriptor tagged with err's status
func ErrorJSON(err error) []byte {
	desc := capability.Conservative()
	desc.Error = StatusOf(err).String()

	data, mErr := marshal(desc)
	if mErr != nil {
		return slices.Clone(fallbackJSON)
	}
	return data
}

// RecommendedModelDim returns the model dimensionality, or the conservative
// value on a closed node
func (n *Node) RecommendedModelDim() int {
	desc, err := n.Descriptor()
	if err != nil {
		return capability.Conservative().RecommendedModelDim
	}
	return desc.RecommendedModelDim
}

// RecommendedTickIntervalMS returns the tick interval in milliseconds
func (n *Node) RecommendedTickIntervalMS() int64 {
	desc, err := n.Descriptor()
	if err != nil {
		return capability.Conservative().RecommendedTickIntervalMS
	}
	return desc.RecommendedTickIntervalMS
}

// RecommendedTickInterval returns the tick interval as a duration
func (n *Node) RecommendedTickInterval() time.Duration {
	return time.Duration(n.RecommendedTickIntervalMS()) * time.Millisecond
}

// ShouldPauseTraining reports whether training should stop now
func (n *Node) ShouldPauseTraining() bool {
	desc, err := n.Descriptor()
	if err != nil {
		return capability.Conservative().ShouldPauseTraining
	}
	return desc.ShouldPauseTraining
}

// Advise returns human-readable hints for improving the node's capability
func (n *Node) Advise() []string {
	s, err := n.Snapshot()
	if err != nil {
		return nil
	}
	return n.policy.Advise(s)
}

// Stale reports whether telemetry is older than the freshness window.
// A node that never refreshed is stale.
func (n *Node) Stale() bool {
	s, err := n.Snapshot()
	if err != nil {
		return true
	}
	return s.IsStale(n.now(), n.staleAfter)
}
