package telemetry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttled caps how often a source is invoked.
// Calls over the limit fail fast with ErrThrottled; they never wait.
type Throttled struct {
	src     Source
	limiter *rate.Limiter
}

// Throttle allows one call per interval with the given burst
func Throttle(src Source, interval time.Duration, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		src:     src,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Fill implements Source
func (t *Throttled) Fill(ctx context.Context, r *Reading) error {
	if !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.src.Fill(ctx, r)
}
