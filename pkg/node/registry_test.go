package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/psantana5/edgecap/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness owns handles and guarantees each is destroyed exactly once
type harness struct {
	t        *testing.T
	reg      *Registry
	mu       sync.Mutex
	released map[Handle]bool
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, reg: NewRegistry(nil), released: make(map[Handle]bool)}
	t.Cleanup(h.releaseAll)
	return h
}

func (h *harness) create() Handle {
	handle := h.reg.Create()
	h.mu.Lock()
	h.released[handle] = false
	h.mu.Unlock()
	return handle
}

func (h *harness) destroy(handle Handle) {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	if done, ok := h.released[handle]; !ok || done {
		h.t.Fatalf("handle %d destroyed twice or never created", handle)
	}
	h.released[handle] = true
	if st := h.reg.Destroy(handle); st != StatusOK {
		h.t.Fatalf("Destroy(%d) = %s", handle, st)
	}
}

func (h *harness) releaseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for handle, done := range h.released {
		if !done {
			h.released[handle] = true
			h.reg.Destroy(handle)
		}
	}
	if n := h.reg.Len(); n != 0 {
		h.t.Errorf("%d handles leaked", n)
	}
}

func fill(memoryMB, cores uint32, network string, battery float32, charging bool) telemetry.FillFunc {
	return func(m *uint32, c *uint32, nt []byte, b *float32, ch *bool) int32 {
		*m, *c, *b, *ch = memoryMB, cores, battery, charging
		telemetry.PutNetworkType(nt, network)
		return 0
	}
}

func TestHandlesAreUniqueAndNeverReused(t *testing.T) {
	h := newHarness(t)

	seen := map[Handle]bool{}
	for i := 0; i < 10; i++ {
		handle := h.create()
		if handle == 0 {
			t.Fatal("zero handle issued")
		}
		if seen[handle] {
			t.Fatalf("handle %d issued twice", handle)
		}
		seen[handle] = true
		h.destroy(handle)
	}

	next := h.create()
	assert.False(t, seen[next])
}

func TestDestroyedHandleIsInvalid(t *testing.T) {
	h := newHarness(t)
	handle := h.create()
	h.destroy(handle)

	assert.Equal(t, StatusInvalidHandle, h.reg.Destroy(handle))
	assert.Equal(t, StatusInvalidHandle, h.reg.UpdateNetworkType(handle, "wifi"))
	assert.Equal(t, StatusInvalidHandle, h.reg.UpdateBattery(handle, 0.5, false))
	assert.Equal(t, StatusInvalidHandle, h.reg.UpdateHardware(handle, 1024, 2))
	assert.Equal(t, StatusInvalidHandle, h.reg.SetDeviceCallback(handle, nil))
	assert.Equal(t, StatusInvalidHandle, h.reg.RefreshDeviceInfo(handle))

	assert.Equal(t, 512, h.reg.RecommendedModelDim(handle))
	assert.Equal(t, int64(22500), h.reg.RecommendedTickInterval(handle))
	assert.False(t, h.reg.ShouldPauseTraining(handle))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(h.reg.GetCapabilities(handle)), &doc))
	assert.Equal(t, "invalid_handle", doc["error"])
	assert.Equal(t, float64(512), doc["recommended_model_dim"])
}

func TestUnknownHandle(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, StatusInvalidHandle, reg.UpdateBattery(0, 0.5, true))
	assert.Equal(t, StatusInvalidHandle, reg.RefreshDeviceInfo(42))
	assert.Contains(t, reg.GetCapabilities(7), `"error":"invalid_handle"`)
}

func TestRegistryStatusCodes(t *testing.T) {
	h := newHarness(t)
	handle := h.create()

	assert.Equal(t, StatusOK, h.reg.UpdateNetworkType(handle, "wifi"))
	assert.Equal(t, StatusInvalidArgument, h.reg.UpdateNetworkType(handle, ""))
	assert.Equal(t, StatusOK, h.reg.UpdateBattery(handle, 1.5, false))
	assert.Equal(t, StatusInvalidArgument, h.reg.UpdateHardware(handle, 0, 4))
	assert.Equal(t, StatusSourceUnavailable, h.reg.RefreshDeviceInfo(handle))
}

func TestDeviceCallbackLifecycle(t *testing.T) {
	h := newHarness(t)
	handle := h.create()

	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, fill(8192, 8, "wifi", 0.9, true)))
	require.Equal(t, StatusOK, h.reg.RefreshDeviceInfo(handle))
	assert.Equal(t, 2048, h.reg.RecommendedModelDim(handle))
	assert.Equal(t, int64(6500), h.reg.RecommendedTickInterval(handle))

	// Replacing the callback
	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, fill(1024, 2, "cellular", 0.1, false)))
	require.Equal(t, StatusOK, h.reg.RefreshDeviceInfo(handle))
	assert.True(t, h.reg.ShouldPauseTraining(handle))

	// Failing callback leaves the last good snapshot
	before := h.reg.GetCapabilities(handle)
	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, func(*uint32, *uint32, []byte, *float32, *bool) int32 { return -1 }))
	assert.Equal(t, StatusSourceUnavailable, h.reg.RefreshDeviceInfo(handle))
	assert.JSONEq(t, before, h.reg.GetCapabilities(handle))

	// Clearing the callback
	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, nil))
	assert.Equal(t, StatusSourceUnavailable, h.reg.RefreshDeviceInfo(handle))
}

func TestCallbackReentersRegistry(t *testing.T) {
	h := newHarness(t)
	handle := h.create()

	var innerCaps string
	cb := func(m *uint32, c *uint32, nt []byte, b *float32, ch *bool) int32 {
		if st := h.reg.UpdateBattery(handle, 0.5, true); st != StatusOK {
			return 1
		}
		innerCaps = h.reg.GetCapabilities(handle)
		*m, *c, *b, *ch = 2048, 4, -1, false
		telemetry.PutNetworkType(nt, "ethernet")
		return 0
	}

	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, cb))
	require.Equal(t, StatusOK, h.reg.RefreshDeviceInfo(handle))
	assert.Contains(t, innerCaps, `"is_charging":true`)
}

func TestCallbackDestroysOwnHandle(t *testing.T) {
	h := newHarness(t)
	handle := h.create()

	cb := func(m *uint32, c *uint32, nt []byte, b *float32, ch *bool) int32 {
		h.destroy(handle)
		*m, *c = 1024, 2
		nt[0] = 0
		return 0
	}

	require.Equal(t, StatusOK, h.reg.SetDeviceCallback(handle, cb))
	assert.Equal(t, StatusInvalidHandle, h.reg.RefreshDeviceInfo(handle))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	ha := a.create()
	hb := b.create()
	assert.Equal(t, ha, hb, "each registry numbers its own handles")

	require.Equal(t, StatusOK, a.reg.UpdateNetworkType(ha, "offline"))
	assert.True(t, a.reg.ShouldPauseTraining(ha))
	assert.False(t, b.reg.ShouldPauseTraining(hb))
}

func TestRegistryNodesInOrder(t *testing.T) {
	h := newHarness(t)
	first := h.create()
	second := h.create()
	third := h.create()
	h.destroy(second)

	assert.Equal(t, []Handle{first, third}, h.reg.Handles())
	nodes := h.reg.Nodes()
	require.Len(t, nodes, 2)
	n, _ := h.reg.Lookup(third)
	assert.Same(t, n, nodes[1])
}

func TestRegistryConcurrentHandles(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := h.create()
			h.reg.UpdateHardware(handle, 4096, 4)
			h.reg.SetDeviceCallback(handle, fill(2048, 4, "wifi", 0.6, false))
			h.reg.RefreshDeviceInfo(handle)
			_ = h.reg.GetCapabilities(handle)
			h.destroy(handle)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.reg.Len())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{fmt.Errorf("x: %w", ErrInvalidArgument), StatusInvalidArgument},
		{fmt.Errorf("x: %w: %w", ErrSourceUnavailable, telemetry.ErrThrottled), StatusSourceUnavailable},
		{ErrInvalidHandle, StatusInvalidHandle},
		{ErrSerialization, StatusSerializationFailure},
		{errors.New("boom"), StatusInternal},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}

	if StatusInternal != 99 || StatusSerializationFailure != 4 {
		t.Error("status codes are part of the wire contract")
	}
}
