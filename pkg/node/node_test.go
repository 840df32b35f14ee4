package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/edgecap/pkg/capability"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/psantana5/edgecap/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func failingSource(status int32) telemetry.Source {
	return telemetry.Callback(func(m *uint32, c *uint32, nt []byte, b *float32, ch *bool) int32 {
		*m, *c, *b = 1, 1, 0.01
		telemetry.PutNetworkType(nt, "offline")
		return status
	}, 0)
}

func TestNewDefaults(t *testing.T) {
	n := New(WithID("node-a"))

	s, err := n.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), s.MemoryMB)
	assert.Equal(t, uint32(4), s.CPUCores)
	assert.Equal(t, models.NetworkUnknown, s.NetworkType)
	assert.Equal(t, -1.0, s.BatteryLevel)
	assert.False(t, s.IsCharging)
	assert.Equal(t, models.SourceDefaults, s.Source)
	assert.False(t, n.HasSource())

	desc, err := n.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "node-a", desc.NodeID)
	assert.Equal(t, capability.Conservative().RecommendedModelDim, desc.RecommendedModelDim)
	assert.Equal(t, 512, n.RecommendedModelDim())
	assert.Equal(t, int64(22500), n.RecommendedTickIntervalMS())
	assert.Equal(t, 22500*time.Millisecond, n.RecommendedTickInterval())
	assert.False(t, n.ShouldPauseTraining())
}

func TestInvalidPolicyFallsBackToDefaults(t *testing.T) {
	inconsistent := capability.DefaultPolicy()
	inconsistent.MaxModelDim = inconsistent.MinModelDim - 1

	for name, p := range map[string]capability.Policy{
		"zero value":   {},
		"inconsistent": inconsistent,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.NewLogger(logging.WARN, true)
			logger.SetOutput(&buf)

			n := New(WithPolicy(p), WithLogger(logger))
			assert.Equal(t, capability.DefaultPolicy(), n.Policy())
			assert.Equal(t, 512, n.RecommendedModelDim())
			assert.Equal(t, int64(22500), n.RecommendedTickIntervalMS())
			assert.Contains(t, buf.String(), "Invalid policy")
		})
	}

	custom := capability.DefaultPolicy()
	custom.MaxModelDim = 256
	n := New(WithPolicy(custom))
	assert.Equal(t, custom, n.Policy())
	assert.Equal(t, 256, n.RecommendedModelDim())
}

func TestGeneratedIDsDiffer(t *testing.T) {
	a, b := New(), New()
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestUpdateNetworkType(t *testing.T) {
	tests := []struct {
		input string
		want  models.NetworkType
		err   error
	}{
		{"wifi", models.NetworkWiFi, nil},
		{"  WiFi ", models.NetworkWiFi, nil},
		{"LTE", models.NetworkCellular, nil},
		{"5G", models.NetworkCellular5G, nil},
		{"Ethernet", models.NetworkEthernet, nil},
		{"offline", models.NetworkOffline, nil},
		{"satellite", models.NetworkUnknown, nil},
		{"", "", ErrInvalidArgument},
		{"   ", "", ErrInvalidArgument},
		{"wi\x00fi", "", ErrInvalidArgument},
		{"\xff\xfe", "", ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n := New()
			require.NoError(t, n.UpdateNetworkType("ethernet"))

			err := n.UpdateNetworkType(tt.input)
			s, _ := n.Snapshot()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, models.NetworkEthernet, s.NetworkType, "rejected input must not change state")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.NetworkType)
			assert.Equal(t, models.SourceManual, s.Source)
		})
	}
}

func TestUpdateBatterySentinel(t *testing.T) {
	tests := []struct {
		name  string
		level float64
		want  float64
	}{
		{"unknown passes through", -1.0, -1.0},
		{"above full", 1.5, 1.0},
		{"negative", -0.3, 0.0},
		{"just below sentinel", -1.0000001, 0.0},
		{"nan", math.NaN(), 0.0},
		{"positive infinity", math.Inf(1), 1.0},
		{"negative infinity", math.Inf(-1), 0.0},
		{"in range", 0.42, 0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New()
			require.NoError(t, n.UpdateBattery(tt.level, true))
			s, _ := n.Snapshot()
			assert.Equal(t, tt.want, s.BatteryLevel)
			assert.True(t, s.IsCharging)
		})
	}
}

func TestUpdateHardware(t *testing.T) {
	n := New()
	require.NoError(t, n.UpdateHardware(8192, 8))
	assert.Equal(t, 2048, n.RecommendedModelDim())

	assert.ErrorIs(t, n.UpdateHardware(0, 8), ErrInvalidArgument)
	assert.ErrorIs(t, n.UpdateHardware(8192, 0), ErrInvalidArgument)

	s, _ := n.Snapshot()
	assert.Equal(t, uint32(8192), s.MemoryMB)
	assert.Equal(t, uint32(8), s.CPUCores)
}

func TestRefreshCommitsNormalizedReading(t *testing.T) {
	clock := newFakeClock()
	n := New(WithClock(clock.Now), WithSource(telemetry.Static{
		MemoryMB:     0,
		CPUCores:     0,
		NetworkType:  "Ethernet",
		BatteryLevel: 7,
		IsCharging:   false,
	}))

	require.NoError(t, n.Refresh(context.Background()))

	s, err := n.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.MemoryMB)
	assert.Equal(t, uint32(1), s.CPUCores)
	assert.Equal(t, models.NetworkEthernet, s.NetworkType)
	assert.Equal(t, 1.0, s.BatteryLevel)
	assert.Equal(t, models.SourceTelemetry, s.Source)
	assert.Equal(t, clock.Now(), s.LastRefreshedAt)

	desc, _ := n.Descriptor()
	require.NotNil(t, desc.LastRefreshedAt)
	assert.Equal(t, clock.Now(), *desc.LastRefreshedAt)
}

func TestRefreshBlankNetworkIsUnknown(t *testing.T) {
	n := New(WithSource(telemetry.Static{MemoryMB: 1024, CPUCores: 2, BatteryLevel: -1}))
	require.NoError(t, n.UpdateNetworkType("wifi"))
	require.NoError(t, n.Refresh(context.Background()))

	s, _ := n.Snapshot()
	assert.Equal(t, models.NetworkUnknown, s.NetworkType)
	assert.Equal(t, -1.0, s.BatteryLevel)
}

func TestRefreshFailureLeavesSnapshotIdentical(t *testing.T) {
	n := New(WithSource(failingSource(5)))
	require.NoError(t, n.UpdateHardware(4096, 6))
	require.NoError(t, n.UpdateBattery(0.8, false))
	before, _ := n.Snapshot()
	descBefore := n.Capabilities()

	err := n.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, telemetry.ErrCallbackFailed)
	assert.Equal(t, StatusSourceUnavailable, StatusOf(err))

	after, _ := n.Snapshot()
	assert.Equal(t, before, after)
	assert.JSONEq(t, string(descBefore), string(n.Capabilities()))
}

func TestRefreshPanickingSource(t *testing.T) {
	n := New(WithSource(telemetry.Func(func(context.Context, *telemetry.Reading) error {
		panic("host bridge crashed")
	})))
	before, _ := n.Snapshot()

	err := n.Refresh(context.Background())
	assert.ErrorIs(t, err, telemetry.ErrCallbackPanic)

	after, _ := n.Snapshot()
	assert.Equal(t, before, after)
}

func TestRefreshWithoutSource(t *testing.T) {
	n := New()
	err := n.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	require.NoError(t, n.SetSource(telemetry.Static{MemoryMB: 512, CPUCores: 2}))
	require.NoError(t, n.Refresh(context.Background()))

	require.NoError(t, n.SetSource(nil))
	assert.ErrorIs(t, n.Refresh(context.Background()), ErrSourceUnavailable)
}

func TestRefreshTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	n := New(
		WithRefreshTimeout(20*time.Millisecond),
		WithSource(telemetry.Func(func(_ context.Context, r *telemetry.Reading) error {
			<-release
			r.MemoryMB = 1
			return nil
		})),
	)
	before, _ := n.Snapshot()

	err := n.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, telemetry.ErrTimeout)

	after, _ := n.Snapshot()
	assert.Equal(t, before, after)
}

func TestRefreshReentrantSource(t *testing.T) {
	n := New()
	var observed models.CapabilityDescriptor

	src := telemetry.Func(func(_ context.Context, r *telemetry.Reading) error {
		// Calls back into the node that is refreshing
		require.NoError(t, n.UpdateBattery(0.1, false))
		observed, _ = n.Descriptor()

		done := make(chan error, 1)
		go func() { done <- n.UpdateNetworkType("cellular") }()
		require.NoError(t, <-done)

		*r = telemetry.Reading{MemoryMB: 4096, CPUCores: 8, NetworkType: "wifi", BatteryLevel: 0.9, IsCharging: true}
		return nil
	})
	require.NoError(t, n.SetSource(src))

	require.NoError(t, n.Refresh(context.Background()))

	assert.True(t, observed.ShouldPauseTraining, "update made inside the callback is visible to it")

	s, _ := n.Snapshot()
	assert.Equal(t, models.NetworkWiFi, s.NetworkType, "refresh commits after the callback returns")
	assert.InDelta(t, 0.9, s.BatteryLevel, 1e-6)
}

func TestDescriptorCacheTracksSnapshot(t *testing.T) {
	n := New()
	first, _ := n.Descriptor()
	second, _ := n.Descriptor()
	assert.Equal(t, first, second)

	require.NoError(t, n.UpdateNetworkType("offline"))
	third, _ := n.Descriptor()
	assert.True(t, third.ShouldPauseTraining)
	assert.Equal(t, []string{capability.ReasonOffline}, third.PauseReasons)

	third.PauseReasons[0] = "tampered"
	fourth, _ := n.Descriptor()
	assert.Equal(t, []string{capability.ReasonOffline}, fourth.PauseReasons)
}

func TestDescriptorMatchesQueries(t *testing.T) {
	n := New()
	require.NoError(t, n.UpdateHardware(1024, 2))
	require.NoError(t, n.UpdateNetworkType("cellular"))
	require.NoError(t, n.UpdateBattery(0.15, false))

	desc, _ := n.Descriptor()
	assert.Equal(t, n.RecommendedModelDim(), desc.RecommendedModelDim)
	assert.Equal(t, n.RecommendedTickIntervalMS(), desc.RecommendedTickIntervalMS)
	assert.Equal(t, n.ShouldPauseTraining(), desc.ShouldPauseTraining)
	assert.True(t, desc.ShouldPauseTraining)
}

func TestCapabilitiesJSON(t *testing.T) {
	n := New(WithID("node-json"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(n.Capabilities(), &doc))

	assert.Equal(t, "node-json", doc["node_id"])
	assert.Equal(t, float64(512), doc["recommended_model_dim"])
	assert.Equal(t, float64(22500), doc["recommended_tick_interval_ms"])
	assert.Equal(t, false, doc["should_pause_training"])
	assert.Equal(t, float64(-1), doc["battery_level"])
	assert.Equal(t, "unknown", doc["network_type"])
	assert.Equal(t, "defaults", doc["telemetry_source"])
	assert.NotContains(t, doc, "error")
	assert.NotContains(t, doc, "last_refreshed_at")
}

func TestCapabilitiesEncodingFailure(t *testing.T) {
	orig := marshal
	t.Cleanup(func() { marshal = orig })

	marshal = func(v any) ([]byte, error) {
		if d, ok := v.(models.CapabilityDescriptor); ok && d.Error == "" {
			return nil, errors.New("encoder exploded")
		}
		return json.Marshal(v)
	}

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(New().Capabilities(), &doc))
	assert.Equal(t, "serialization_failure", doc["error"])
	assert.Equal(t, float64(512), doc["recommended_model_dim"])

	marshal = func(any) ([]byte, error) { return nil, errors.New("always") }
	assert.JSONEq(t, `{"error":"serialization_failure"}`, string(New().Capabilities()))
}

func TestClosedNode(t *testing.T) {
	n := New(WithSource(telemetry.Static{MemoryMB: 8192, CPUCores: 8}))
	require.NoError(t, n.UpdateHardware(16384, 16))
	require.NoError(t, n.Close())

	assert.ErrorIs(t, n.Close(), ErrInvalidHandle)
	assert.ErrorIs(t, n.UpdateNetworkType("wifi"), ErrInvalidHandle)
	assert.ErrorIs(t, n.UpdateNetworkType(""), ErrInvalidHandle)
	assert.ErrorIs(t, n.UpdateBattery(0.5, true), ErrInvalidHandle)
	assert.ErrorIs(t, n.UpdateHardware(1, 1), ErrInvalidHandle)
	assert.ErrorIs(t, n.SetSource(nil), ErrInvalidHandle)
	assert.ErrorIs(t, n.Refresh(context.Background()), ErrInvalidHandle)

	_, err := n.Snapshot()
	assert.ErrorIs(t, err, ErrInvalidHandle)

	conservative := capability.Conservative()
	assert.Equal(t, conservative.RecommendedModelDim, n.RecommendedModelDim())
	assert.Equal(t, conservative.RecommendedTickIntervalMS, n.RecommendedTickIntervalMS())
	assert.Equal(t, conservative.ShouldPauseTraining, n.ShouldPauseTraining())
	assert.Nil(t, n.Advise())
	assert.True(t, n.Stale())

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(n.Capabilities(), &doc))
	assert.Equal(t, "invalid_handle", doc["error"])
}

func TestCloseDuringRefreshDiscardsReading(t *testing.T) {
	var n *Node
	n = New(WithSource(telemetry.Func(func(_ context.Context, r *telemetry.Reading) error {
		require.NoError(t, n.Close())
		r.MemoryMB = 4096
		return nil
	})))

	assert.ErrorIs(t, n.Refresh(context.Background()), ErrInvalidHandle)
}

func TestStale(t *testing.T) {
	clock := newFakeClock()
	n := New(
		WithClock(clock.Now),
		WithStaleAfter(time.Minute),
		WithSource(telemetry.Static{MemoryMB: 2048, CPUCores: 4}),
	)
	assert.True(t, n.Stale(), "never refreshed")

	require.NoError(t, n.Refresh(context.Background()))
	assert.False(t, n.Stale())

	clock.Advance(30 * time.Second)
	require.NoError(t, n.UpdateBattery(0.5, false))
	clock.Advance(31 * time.Second)
	assert.True(t, n.Stale(), "manual updates do not count as refreshes")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []error
}

func (o *recordingObserver) ObserveRefresh(_ string, err error, _ time.Duration) {
	o.mu.Lock()
	o.calls = append(o.calls, err)
	o.mu.Unlock()
}

func TestRefreshObserver(t *testing.T) {
	obs := &recordingObserver{}
	n := New(WithRefreshObserver(obs), WithSource(telemetry.Static{MemoryMB: 1024, CPUCores: 2}))

	require.NoError(t, n.Refresh(context.Background()))
	require.NoError(t, n.SetSource(failingSource(1)))
	require.Error(t, n.Refresh(context.Background()))
	require.NoError(t, n.SetSource(nil))
	require.Error(t, n.Refresh(context.Background()))

	require.Len(t, obs.calls, 2, "refresh without a source never reaches the observer")
	assert.NoError(t, obs.calls[0])
	assert.ErrorIs(t, obs.calls[1], telemetry.ErrCallbackFailed)
}

func TestRefreshSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	n := New(WithTracer(tp.Tracer("test")), WithSource(failingSource(2)))
	require.Error(t, n.Refresh(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "node.refresh", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestAdvise(t *testing.T) {
	n := New()
	require.NoError(t, n.UpdateHardware(1024, 2))
	require.NoError(t, n.UpdateNetworkType("cellular"))
	assert.NotEmpty(t, n.Advise())
}

func TestConcurrentAccess(t *testing.T) {
	n := New(WithSource(telemetry.Static{MemoryMB: 4096, CPUCores: 8, NetworkType: "wifi", BatteryLevel: 0.9}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				switch (i + j) % 5 {
				case 0:
					_ = n.UpdateBattery(float64(j%10)/10, j%2 == 0)
				case 1:
					_ = n.UpdateNetworkType("cellular")
				case 2:
					_ = n.Refresh(context.Background())
				case 3:
					_ = n.Capabilities()
				default:
					desc, err := n.Descriptor()
					if err != nil {
						t.Error(err)
						return
					}
					if desc.RecommendedModelDim < 64 || desc.RecommendedModelDim > 4096 {
						t.Errorf("dim out of range: %d", desc.RecommendedModelDim)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	s, err := n.Snapshot()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.MemoryMB, uint32(1))
}
