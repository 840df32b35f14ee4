package telemetry

import (
	"bytes"
	"context"
	"unicode/utf8"
)

// DefaultNetworkTypeCapacity is the network text buffer handed to host callbacks
const DefaultNetworkTypeCapacity = 32

// FillFunc is the raw host contract: fill every out slot and return 0, or
// return nonzero and leave the slots meaningless. networkType has a fixed
// capacity and must be NUL-terminated within it.
type FillFunc func(memoryMB *uint32, cpuCores *uint32, networkType []byte, batteryLevel *float32, isCharging *bool) int32

// CallbackSource adapts a FillFunc to the Source interface
type CallbackSource struct {
	fn       FillFunc
	capacity int
}

// Callback wraps fn. A capacity <= 0 selects DefaultNetworkTypeCapacity.
func Callback(fn FillFunc, capacity int) *CallbackSource {
	if capacity <= 0 {
		capacity = DefaultNetworkTypeCapacity
	}
	return &CallbackSource{fn: fn, capacity: capacity}
}

// Capacity returns the network buffer size passed to the callback
func (c *CallbackSource) Capacity() int {
	return c.capacity
}

// Fill implements Source
func (c *CallbackSource) Fill(_ context.Context, r *Reading) error {
	if c.fn == nil {
		return ErrNoCallback
	}

	var (
		memoryMB uint32
		cpuCores uint32
		battery  = float32(-1)
		charging bool
	)
	buf := make([]byte, c.capacity)

	if status := c.fn(&memoryMB, &cpuCores, buf, &battery, &charging); status != 0 {
		return &CallbackError{Status: status}
	}

	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return ErrUnterminated
	}
	text := buf[:end]
	if !utf8.Valid(text) {
		text = nil
	}

	*r = Reading{
		MemoryMB:     memoryMB,
		CPUCores:     cpuCores,
		NetworkType:  string(text),
		BatteryLevel: battery,
		IsCharging:   charging,
	}
	return nil
}

// PutNetworkType copies text into a callback buffer with NUL termination,
// truncating to fit. It is the helper host adapters use on the callee side.
func PutNetworkType(buf []byte, text string) bool {
	if len(buf) == 0 {
		return false
	}
	n := copy(buf[:len(buf)-1], text)
	buf[n] = 0
	return n == len(text)
}
