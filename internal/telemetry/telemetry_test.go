package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/plantconnect/internal/llm"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	fail   error
}

func (r *recordingSink) Publish(_ context.Context, topic, _ string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return r.fail
}

func (r *recordingSink) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func sampleEvent(i int) SensorEvent {
	return SensorEvent{
		DeviceID:  "plant-1",
		PlantType: "fern",
		Timestamp: time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		Environment: Environment{
			TemperatureC: 21.4,
			HumidityPct:  55.2,
			LightLux:     12000,
		},
		Soil:     Soil{MoisturePct: 48.7, SoilTempC: 19.9, WaterTankLevelPct: ptr(80.5)},
		Vitality: Vitality{Capacitance: 45 + i%3, TouchEventsLastMin: 1},
	}
}

func TestSensorEvent_JSONRoundTrip(t *testing.T) {
	ev := sampleEvent(3)
	ev.Vitality.LeafColorIndex = ptr(0.82)
	ev.Meta = map[string]string{"watering": "true"}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var got SensorEvent
	require.NoError(t, json.Unmarshal(b, &got))
	if diff := cmp.Diff(ev, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.NotContains(t, raw["vitality"], "growth_index")
	assert.Equal(t, 48.7, raw["soil"].(map[string]any)["moisture_pct"])
}

func TestWindow_EvictsOldestFirst(t *testing.T) {
	w := NewWindow(20)
	for i := 0; i < 25; i++ {
		w.Push(sampleEvent(i))
	}
	evs := w.Events()
	require.Len(t, evs, 20)
	for i, ev := range evs {
		assert.Equal(t, sampleEvent(i+5).Timestamp, ev.Timestamp)
	}
	w.Clear()
	assert.Zero(t, w.Len())
}

func TestEnvSim_StaysInSoftBounds(t *testing.T) {
	sim := NewEnvSim(42)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sawWatering := false
	for i := 0; i < 6*3600; i++ {
		env, soil, vit := sim.Step(now.Add(time.Duration(i) * time.Second))
		require.GreaterOrEqual(t, soil.MoisturePct, 0.0)
		require.LessOrEqual(t, soil.MoisturePct, 100.0)
		require.Greater(t, env.TemperatureC, 10.0)
		require.Less(t, env.TemperatureC, 36.0)
		require.GreaterOrEqual(t, env.LightLux, 0.0)
		require.NotNil(t, vit.LeafColorIndex)
		sawWatering = sawWatering || sim.Watering()
	}
	assert.True(t, sawWatering, "moisture decay should trigger a watering burst")
}

func TestDayLight(t *testing.T) {
	day := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	night := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	assert.InDelta(t, 20000, dayLight(day), 1)
	assert.Zero(t, dayLight(night))
}

func TestRuleInsights(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	r := RuleInsights{Now: func() time.Time { return now }}

	t.Run("healthy", func(t *testing.T) {
		var evs []SensorEvent
		for i := 0; i < 10; i++ {
			evs = append(evs, sampleEvent(i))
		}
		ins, err := r.Insight(context.Background(), evs)
		require.NoError(t, err)
		assert.Equal(t, 100, ins.HealthScore)
		assert.Equal(t, StressNone, ins.StressCategory)
		assert.False(t, ins.AnomalyDetected)
		assert.Equal(t, 10, ins.InputsWindow.Count)
		assert.Equal(t, StatusOK, ins.Metrics["soil_moisture"])
		assert.Empty(t, ins.Recommendations)
		assert.Equal(t, now, ins.GeneratedAt)
	})

	t.Run("dry and anomalous", func(t *testing.T) {
		var evs []SensorEvent
		for i := 0; i < 10; i++ {
			evs = append(evs, sampleEvent(i))
		}
		last := &evs[len(evs)-1]
		last.Soil.MoisturePct = 10
		last.Vitality.Capacitance = 400
		ins, err := r.Insight(context.Background(), evs)
		require.NoError(t, err)
		assert.Equal(t, StatusCritical, ins.Metrics["soil_moisture"])
		assert.True(t, ins.AnomalyDetected)
		assert.Equal(t, 60, ins.HealthScore)
		assert.True(t, ins.Critical())
		assert.Contains(t, ins.Recommendations, "Water the plant; the soil is drying out.")
		assert.Contains(t, ins.Summary, "Soil moisture is critical")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := r.Insight(context.Background(), nil)
		require.ErrorIs(t, err, ErrNoEvents)
	})
}

type stubResponder struct {
	text string
	err  error
}

func (s stubResponder) Generate(context.Context, llm.Request) (string, error) { return s.text, s.err }

func TestHybridInsights(t *testing.T) {
	evs := []SensorEvent{sampleEvent(0), sampleEvent(1)}

	ins, err := HybridInsights{Responder: stubResponder{text: " Your fern is thriving. "}}.Insight(context.Background(), evs)
	require.NoError(t, err)
	assert.Equal(t, "Your fern is thriving.", ins.Summary)
	assert.Equal(t, "hybrid", ins.Source)

	ins, err = HybridInsights{Responder: stubResponder{err: llm.ErrNotConfigured}}.Insight(context.Background(), evs)
	require.NoError(t, err)
	assert.Equal(t, "rules", ins.Source)
	assert.Contains(t, ins.Summary, "Health 100/100")
}

func advanceSeconds(clock *timeutil.MockClock, n int, after func(i int)) {
	for i := 1; i <= n; i++ {
		clock.Advance(time.Second)
		after(i)
	}
}

func TestStreamer_OneDeliveryPerSecond(t *testing.T) {
	for _, fail := range []error{nil, errors.New("broker down")} {
		t.Run(fmt.Sprintf("fail=%v", fail), func(t *testing.T) {
			clock := timeutil.NewMockClock(time.Unix(0, 0))
			sink := &recordingSink{fail: fail}
			s := NewStreamer(StreamerConfig{
				DeviceID: "plant-1",
				Sink:     sink,
				Clock:    clock,
				State:    func() sensor.HardwareState { return sensor.HardwareState{Raw: 51} },
			})
			h := s.Start(context.Background())
			advanceSeconds(clock, 5, func(i int) {
				require.Eventually(t, func() bool { return sink.count(TopicSensorEvents) == i }, time.Second, time.Millisecond)
			})
			h.Stop()
			h.Stop()

			assert.Equal(t, 5, sink.count(TopicSensorEvents))
			st := s.Stats()
			assert.EqualValues(t, 5, st.Sent+st.Failed)
			assert.Equal(t, 5, s.Window().Len())
			assert.Equal(t, 51, s.Window().Events()[0].Vitality.Capacitance)
			assert.Zero(t, clock.ActiveTickers())
		})
	}
}

func TestStreamer_InsightAfterTenSeconds(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &recordingSink{}
	s := NewStreamer(StreamerConfig{DeviceID: "plant-1", Sink: sink, Clock: clock})

	got := make(chan HealthInsight, 1)
	s.OnInsight(func(h HealthInsight) { got <- h })

	h := s.Start(context.Background())
	defer h.Stop()
	advanceSeconds(clock, 10, func(i int) {
		require.Eventually(t, func() bool { return s.Window().Len() == i }, time.Second, time.Millisecond)
	})

	select {
	case ins := <-got:
		assert.GreaterOrEqual(t, ins.InputsWindow.Count, DefaultMinEvents)
	case <-time.After(2 * time.Second):
		t.Fatal("no insight after 10s")
	}
	require.Eventually(t, func() bool { return sink.count(TopicHealthInsights) == 1 }, time.Second, time.Millisecond)
	_, ok := s.Latest()
	assert.True(t, ok)
}

func TestStreamer_NoInsightBelowMinimum(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &recordingSink{}
	s := NewStreamer(StreamerConfig{Sink: sink, Clock: clock, EventPeriod: 5 * time.Second})

	h := s.Start(context.Background())
	// a tick still buffered when the clock moves again is dropped
	advanceSeconds(clock, 10, func(i int) {
		require.Eventually(t, func() bool { return s.Window().Len() == i/5 }, time.Second, time.Millisecond)
	})
	h.Stop()
	require.Equal(t, 2, s.Window().Len())

	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Zero(t, sink.count(TopicHealthInsights))
}

func TestStreamer_WindowClearedOnStartNotStop(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewStreamer(StreamerConfig{Clock: clock})

	h := s.Start(context.Background())
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return s.Window().Len() == 1 }, time.Second, time.Millisecond)
	h.Stop()
	assert.Equal(t, 1, s.Window().Len())

	h = s.Start(context.Background())
	defer h.Stop()
	assert.Zero(t, s.Window().Len())
}
