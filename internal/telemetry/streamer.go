package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/periodic"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// Sink delivers one record to a topic. Implementations may block up to
// their own timeout; the streamer never waits on them from its loops.
type Sink interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

const (
	DefaultEventPeriod   = time.Second
	DefaultInsightPeriod = 10 * time.Second
	DefaultMinEvents     = 5
	sendTimeout          = 5 * time.Second
)

// StreamerConfig wires a Streamer. Zero durations and counts take the
// defaults above.
type StreamerConfig struct {
	DeviceID      string
	PlantType     string
	EventPeriod   time.Duration
	InsightPeriod time.Duration
	MinEvents     int
	WindowSize    int
	Seed          uint64

	Sink     Sink
	Insights InsightGenerator
	// State returns the latest sampler snapshot.
	State func() sensor.HardwareState
	// Touches returns how many touches started in the minute before now.
	Touches func(now time.Time) int
	Clock   timeutil.Clock
}

// Stats counts sink traffic since the streamer was created.
type Stats struct {
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Insights int64 `json:"insights"`
}

// Streamer owns the 1 Hz event loop and the slower insight loop.
type Streamer struct {
	cfg    StreamerConfig
	window *Window
	env    *EnvSim

	sent, failed, insights atomic.Int64
	latest                 atomic.Pointer[HealthInsight]

	mu        sync.Mutex
	observers []func(HealthInsight)
}

func NewStreamer(cfg StreamerConfig) *Streamer {
	if cfg.EventPeriod <= 0 {
		cfg.EventPeriod = DefaultEventPeriod
	}
	if cfg.InsightPeriod <= 0 {
		cfg.InsightPeriod = DefaultInsightPeriod
	}
	if cfg.MinEvents <= 0 {
		cfg.MinEvents = DefaultMinEvents
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.State == nil {
		cfg.State = func() sensor.HardwareState { return sensor.HardwareState{} }
	}
	if cfg.Touches == nil {
		cfg.Touches = func(time.Time) int { return 0 }
	}
	if cfg.Insights == nil {
		cfg.Insights = RuleInsights{Now: cfg.Clock.Now}
	}
	return &Streamer{cfg: cfg, window: NewWindow(cfg.WindowSize), env: NewEnvSim(cfg.Seed)}
}

// OnInsight registers fn for every generated insight.
func (s *Streamer) OnInsight(fn func(HealthInsight)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Latest returns the newest insight, if any.
func (s *Streamer) Latest() (HealthInsight, bool) {
	p := s.latest.Load()
	if p == nil {
		return HealthInsight{}, false
	}
	return *p, true
}

func (s *Streamer) Window() *Window { return s.window }

func (s *Streamer) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load(), Insights: s.insights.Load()}
}

// Handle stops a running stream.
type Handle struct {
	cancel   context.CancelFunc
	events   *periodic.Handle
	insights *periodic.Handle
	wg       *sync.WaitGroup
	once     sync.Once
}

// Stop halts both loops and waits for outstanding sends and insight
// requests, which see their context cancelled. Safe to call twice.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		h.events.Stop()
		h.insights.Stop()
		h.wg.Wait()
	})
}

// Start clears the window and begins streaming.
func (s *Streamer) Start(ctx context.Context) *Handle {
	s.window.Clear()
	ctx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	h := &Handle{cancel: cancel, wg: wg}
	h.events = periodic.Run(ctx, s.cfg.Clock, s.cfg.EventPeriod, func(now time.Time) {
		s.emit(ctx, wg, now)
	})
	h.insights = periodic.Run(ctx, s.cfg.Clock, s.cfg.InsightPeriod, func(time.Time) {
		s.analyse(ctx, wg)
	})
	return h
}

// Event builds the record for now from the live snapshot and the
// environment simulation.
func (s *Streamer) Event(now time.Time) SensorEvent {
	env, soil, vit := s.env.Step(now)
	vit.Capacitance = s.cfg.State().Raw
	vit.TouchEventsLastMin = s.cfg.Touches(now)
	ev := SensorEvent{
		DeviceID:    s.cfg.DeviceID,
		PlantType:   s.cfg.PlantType,
		Timestamp:   now.UTC(),
		Environment: env,
		Soil:        soil,
		Vitality:    vit,
	}
	if s.env.Watering() {
		ev.Meta = map[string]string{"watering": "true"}
	}
	return ev
}

func (s *Streamer) emit(ctx context.Context, wg *sync.WaitGroup, now time.Time) {
	ev := s.Event(now)
	s.window.Push(ev)
	s.publish(ctx, wg, TopicSensorEvents, ev)
}

// publish sends in the background; failures are logged and counted only.
func (s *Streamer) publish(ctx context.Context, wg *sync.WaitGroup, topic string, payload any) {
	if s.cfg.Sink == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		if err := s.cfg.Sink.Publish(ctx, topic, s.cfg.DeviceID, payload); err != nil {
			s.failed.Add(1)
			monitoring.Logf("telemetry: publish %s: %v", topic, err)
			return
		}
		s.sent.Add(1)
	}()
}

func (s *Streamer) analyse(ctx context.Context, wg *sync.WaitGroup) {
	events := s.window.Events()
	if len(events) < s.cfg.MinEvents {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ins, err := s.cfg.Insights.Insight(ctx, events)
		if err != nil {
			monitoring.Logf("telemetry: insight: %v", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.insights.Add(1)
		s.latest.Store(&ins)

		s.mu.Lock()
		obs := s.observers
		s.mu.Unlock()
		for _, fn := range obs {
			fn(ins)
		}

		s.publish(ctx, wg, TopicHealthInsights, ins)
		if ins.Critical() {
			s.publish(ctx, wg, TopicCriticalAlerts, alertFor(ins))
		}
	}()
}
