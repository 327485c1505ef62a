package sensor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plantconnect/internal/periodic"
	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// DefaultSamplePeriod is roughly 30 Hz.
const DefaultSamplePeriod = 33 * time.Millisecond

// AudioSink receives the raw value and gate threshold on every tick while
// audio mode is on. Implementations must not block.
type AudioSink interface {
	Update(raw, threshold float64)
}

// Observer is called synchronously on the sampling goroutine with each
// completed tick. Observers must return quickly.
type Observer func(HardwareState)

// Sampler is the fixed-rate loop that pulls the latest raw reading,
// recalibrates and republishes the derived state.
type Sampler struct {
	clock   timeutil.Clock
	period  time.Duration
	tracker *Tracker
	chart   *ChartWindow

	mu        sync.Mutex
	source    Source
	reseed    bool
	audio     AudioSink
	audioOn   bool
	threshold float64
	observers []Observer

	snapshot atomic.Pointer[HardwareState]
}

// NewSampler wires a sampler around tracker. period <= 0 uses the default.
func NewSampler(clock timeutil.Clock, period time.Duration, tracker *Tracker, chart *ChartWindow) *Sampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = DefaultSamplePeriod
	}
	if tracker == nil {
		tracker = NewTracker(0, 0)
	}
	if chart == nil {
		chart = NewChartWindow(DefaultChartPoints)
	}
	s := &Sampler{clock: clock, period: period, tracker: tracker, chart: chart}
	s.snapshot.Store(&HardwareState{})
	return s
}

// SetSource swaps where raw values come from without touching the loop.
// The next tick forgets the baseline so the new source seeds its own.
func (s *Sampler) SetSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src != s.source {
		s.source = src
		s.reseed = true
	}
}

// SetAudio installs the audio sink, its gate threshold and whether it is fed.
func (s *Sampler) SetAudio(sink AudioSink, threshold float64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = sink
	s.threshold = threshold
	s.audioOn = on && sink != nil
}

// SetAudioThreshold changes the audio gate threshold.
func (s *Sampler) SetAudioThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// AudioEnabled reports whether ticks are forwarded to the audio sink.
func (s *Sampler) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

// Observe registers an observer called on every tick.
func (s *Sampler) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Snapshot returns the most recent fully computed tick.
func (s *Sampler) Snapshot() HardwareState {
	return *s.snapshot.Load()
}

// Chart returns the display window.
func (s *Sampler) Chart() *ChartWindow { return s.chart }

// Start runs the loop until ctx is cancelled or the handle is stopped.
func (s *Sampler) Start(ctx context.Context) *periodic.Handle {
	return periodic.Run(ctx, s.clock, s.period, func(now time.Time) { s.Tick(now) })
}

// Tick performs one sampling step at now. Start calls it on every period;
// it is exported so a caller can drive the loop by hand.
func (s *Sampler) Tick(now time.Time) HardwareState {
	s.mu.Lock()
	src := s.source
	reseed := s.reseed
	s.reseed = false
	audio, audioOn, threshold := s.audio, s.audioOn, s.threshold
	observers := s.observers
	s.mu.Unlock()

	// the tracker is only touched from the loop goroutine
	if reseed {
		s.tracker.Reset()
	}

	state := HardwareState{Time: now, SourceChanged: reseed}
	var fresh bool
	if src != nil {
		state.Source = src.Name()
		var r serialmux.Reading
		if r, fresh = src.Latest(); fresh {
			state.TopPoint = r.TopPoint
			state.Interpolated = r.Interpolated
			state.Raw = r.Raw
		}
	}

	// a source with nothing to report leaves the baseline alone
	if fresh {
		state.Baseline, state.Value = s.tracker.Step(state.Raw)
	} else {
		state.Baseline = s.tracker.Baseline()
	}

	if audioOn {
		audio.Update(float64(state.Raw), threshold)
	}

	s.snapshot.Store(&state)
	for _, o := range observers {
		o(state)
	}
	if fresh {
		s.chart.Append(ChartPoint{Time: now, Val: state.Raw})
	}
	return state
}

// Throttle wraps o so it runs at most once per interval of sample time.
// Use it to hand snapshots to slow observers.
func Throttle(interval time.Duration, o Observer) Observer {
	var last time.Time
	return func(st HardwareState) {
		if !last.IsZero() && st.Time.Sub(last) < interval {
			return
		}
		last = st.Time
		o(st)
	}
}
