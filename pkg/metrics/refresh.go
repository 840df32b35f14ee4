package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/edgecap/pkg/telemetry"
)

// Refresh outcomes used as the "outcome" label
const (
	OutcomeOK             = "ok"
	OutcomeCallbackFailed = "callback_failed"
	OutcomeTimeout        = "timeout"
	OutcomeThrottled      = "throttled"
	OutcomePanic          = "panic"
	OutcomeNotConfigured  = "not_configured"
	OutcomeError          = "error"
)

// RefreshRecorder counts refresh attempts and their latency.
// It implements node.RefreshObserver.
type RefreshRecorder struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRefreshRecorder creates the refresh metrics and registers them with reg
func NewRefreshRecorder(reg prometheus.Registerer) (*RefreshRecorder, error) {
	r := &RefreshRecorder{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgecap_refresh_total",
				Help: "Telemetry refresh attempts by outcome",
			},
			[]string{"node_id", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgecap_refresh_duration_seconds",
				Help:    "Time spent waiting for the telemetry source",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{r.attempts, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRefresh records one attempt
func (r *RefreshRecorder) ObserveRefresh(nodeID string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	r.attempts.WithLabelValues(nodeID, outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Outcome classifies a refresh error into a label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, telemetry.ErrCallbackFailed),
		errors.Is(err, telemetry.ErrUnterminated),
		errors.Is(err, telemetry.ErrNoCallback):
		return OutcomeCallbackFailed
	case errors.Is(err, telemetry.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, telemetry.ErrThrottled):
		return OutcomeThrottled
	case errors.Is(err, telemetry.ErrCallbackPanic):
		return OutcomePanic
	case errors.Is(err, telemetry.ErrNotConfigured):
		return OutcomeNotConfigured
	default:
		return OutcomeError
	}
}
