package node

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/psantana5/edgecap/pkg/capability"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/telemetry"
)

// Handle identifies a node across the integer boundary. Zero is never issued,
// and a destroyed handle is never reissued.
type Handle uint64

// Registry is the handle-based surface over Nodes. Each Registry has its own
// handle table; nothing is shared between registries.
type Registry struct {
	next   atomic.Uint64
	opts   []Option
	logger *logging.Logger

	mu    sync.RWMutex
	nodes map[Handle]*Node
}

// NewRegistry creates an empty registry. opts apply to every created node.
func NewRegistry(logger *logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		opts:   append([]Option{WithLogger(logger)}, opts...),
		logger: logger,
		nodes:  make(map[Handle]*Node),
	}
}

// Create makes a node with default telemetry and returns its handle
func (r *Registry) Create(opts ...Option) Handle {
	h := Handle(r.next.Add(1))
	n := New(append(slices.Clone(r.opts), opts...)...)

	r.mu.Lock()
	r.nodes[h] = n
	r.mu.Unlock()

	r.logger.Debug("Handle created", map[string]interface{}{
		"handle":  uint64(h),
		"node_id": n.ID(),
	})
	return h
}

// Lookup returns the live node behind h
func (r *Registry) Lookup(h Handle) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[h]
	return n, ok
}

// Destroy releases h. Any later use of h reports StatusInvalidHandle.
func (r *Registry) Destroy(h Handle) Status {
	r.mu.Lock()
	n, ok := r.nodes[h]
	delete(r.nodes, h)
	r.mu.Unlock()

	if !ok {
		return StatusInvalidHandle
	}
	return StatusOf(n.Close())
}

// Len returns the number of live handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Handles returns live handles in creation order
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	out := make([]Handle, 0, len(r.nodes))
	for h := range r.nodes {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Nodes returns the live nodes in creation order
func (r *Registry) Nodes() []*Node {
	handles := r.Handles()
	out := make([]*Node, 0, len(handles))
	for _, h := range handles {
		if n, ok := r.Lookup(h); ok {
			out = append(out, n)
		}
	}
	return out
}

// Close destroys every live handle
func (r *Registry) Close() {
	for _, h := range r.Handles() {
		r.Destroy(h)
	}
}

func (r *Registry) do(h Handle, fn func(*Node) error) Status {
	n, ok := r.Lookup(h)
	if !ok {
		return StatusInvalidHandle
	}
	return StatusOf(fn(n))
}

// UpdateNetworkType sets the network class of h
func (r *Registry) UpdateNetworkType(h Handle, text string) Status {
	return r.do(h, func(n *Node) error { return n.UpdateNetworkType(text) })
}

// UpdateBattery sets the battery state of h
func (r *Registry) UpdateBattery(h Handle, level float64, charging bool) Status {
	return r.do(h, func(n *Node) error { return n.UpdateBattery(level, charging) })
}

// UpdateHardware sets memory and cores of h
func (r *Registry) UpdateHardware(h Handle, memoryMB, cpuCores uint32) Status {
	return r.do(h, func(n *Node) error { return n.UpdateHardware(memoryMB, cpuCores) })
}

// SetDeviceCallback registers a raw host callback for h; nil unregisters
func (r *Registry) SetDeviceCallback(h Handle, fn telemetry.FillFunc) Status {
	var src telemetry.Source
	if fn != nil {
		src = telemetry.Callback(fn, 0)
	}
	return r.SetSource(h, src)
}

// SetSource registers any telemetry source for h; nil unregisters
func (r *Registry) SetSource(h Handle, src telemetry.Source) Status {
	return r.do(h, func(n *Node) error { return n.SetSource(src) })
}

// RefreshDeviceInfo pulls telemetry for h from its source
func (r *Registry) RefreshDeviceInfo(h Handle) Status {
	return r.RefreshDeviceInfoContext(context.Background(), h)
}

// RefreshDeviceInfoContext is RefreshDeviceInfo bounded by ctx
func (r *Registry) RefreshDeviceInfoContext(ctx context.Context, h Handle) Status {
	return r.do(h, func(n *Node) error { return n.Refresh(ctx) })
}

// GetCapabilities returns the JSON descriptor of h. It never fails; unknown
// handles get the conservative descriptor with an error key.
func (r *Registry) GetCapabilities(h Handle) string {
	n, ok := r.Lookup(h)
	if !ok {
		return string(ErrorJSON(ErrInvalidHandle))
	}
	return string(n.Capabilities())
}

// RecommendedModelDim returns the model dimensionality for h
func (r *Registry) RecommendedModelDim(h Handle) int {
	if n, ok := r.Lookup(h); ok {
		return n.RecommendedModelDim()
	}
	return capability.Conservative().RecommendedModelDim
}

// RecommendedTickInterval returns the tick interval of h in milliseconds
func (r *Registry) RecommendedTickInterval(h Handle) int64 {
	if n, ok := r.Lookup(h); ok {
		return n.RecommendedTickIntervalMS()
	}
	return capability.Conservative().RecommendedTickIntervalMS
}

// ShouldPauseTraining reports the pause signal for h
func (r *Registry) ShouldPauseTraining(h Handle) bool {
	if n, ok := r.Lookup(h); ok {
		return n.ShouldPauseTraining()
	}
	return capability.Conservative().ShouldPauseTraining
}
