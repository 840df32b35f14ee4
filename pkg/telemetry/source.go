// Package telemetry defines where node telemetry comes from.
//
// A Source fills a Reading on demand. It is called at most once per refresh,
// never retried, and may be invoked from any goroutine. A non-nil error means
// the entire reading is void; there is no per-field partial success.
package telemetry

import (
	"context"
	"fmt"

	"github.com/psantana5/edgecap/pkg/models"
)

// Reading is one raw telemetry sample as reported by a host.
// Values are not yet normalized; the node applies floors and clamping.
type Reading struct {
	MemoryMB     uint32
	CPUCores     uint32
	NetworkType  string
	BatteryLevel float32 // [0,1] or -1 for unknown
	IsCharging   bool
}

// Source supplies fresh telemetry
type Source interface {
	Fill(ctx context.Context, r *Reading) error
}

// Func adapts a plain function to Source
type Func func(ctx context.Context, r *Reading) error

// Fill implements Source
func (f Func) Fill(ctx context.Context, r *Reading) error {
	return f(ctx, r)
}

// Static always reports the same reading
type Static Reading

// Fill implements Source
func (s Static) Fill(_ context.Context, r *Reading) error {
	*r = Reading(s)
	return nil
}

// Read invokes src exactly once and returns its reading.
// Panics are converted to ErrCallbackPanic. If ctx carries a deadline or can
// be cancelled, Read stops waiting when ctx is done and returns ErrTimeout; a
// late result is discarded. The source always fills a private Reading, so a
// late or failed call can never leak into the caller's state.
func Read(ctx context.Context, src Source) (Reading, error) {
	if ctx.Done() == nil {
		return readOnce(ctx, src)
	}

	type result struct {
		reading Reading
		err     error
	}
	done := make(chan result, 1)

	go func() {
		r, err := readOnce(ctx, src)
		done <- result{reading: r, err: err}
	}()

	select {
	case res := <-done:
		return res.reading, res.err
	case <-ctx.Done():
		return Reading{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

func readOnce(ctx context.Context, src Source) (r Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			r = Reading{}
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, p)
		}
	}()

	r = Reading{BatteryLevel: models.BatteryUnknown}
	if err := src.Fill(ctx, &r); err != nil {
		return Reading{}, err
	}
	return r, nil
}
