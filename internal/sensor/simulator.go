package sensor

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// ErrHardwareActive is returned when the simulator is asked for a touch while
// a real sensor is connected.
var ErrHardwareActive = errors.New("simulation disabled while hardware is connected")

// SimulatorConfig shapes the synthetic signal.
type SimulatorConfig struct {
	Resting       int           // untouched level
	Jitter        int           // idle noise, +/- this many units
	PeakMin       int           // smallest touch excursion above rest
	PeakMax       int           // largest touch excursion above rest
	PlateauMin    time.Duration // shortest plateau
	PlateauMax    time.Duration // longest plateau
	RampStep      time.Duration // one decrement every RampStep
	RampDecrement int           // units removed per step
	RampLimit     time.Duration // ramp gives up and snaps to rest after this
}

// DefaultSimulatorConfig returns the demo signal shape.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Resting:       45,
		Jitter:        2,
		PeakMin:       25,
		PeakMax:       60,
		PlateauMin:    500 * time.Millisecond,
		PlateauMax:    1500 * time.Millisecond,
		RampStep:      50 * time.Millisecond,
		RampDecrement: 2,
		RampLimit:     2 * time.Second,
	}
}

type transient struct {
	start   time.Time
	plateau time.Duration
	peak    int
}

// Simulator produces plausible raw readings when no sensor is attached: a
// jittery resting level and, after Touch, a plateau that ramps back down.
type Simulator struct {
	cfg   SimulatorConfig
	clock timeutil.Clock

	mu       sync.Mutex
	rng      *rand.Rand
	touch    *transient
	hardware bool
}

// NewSimulator builds a simulator. seed makes the jitter reproducible.
func NewSimulator(cfg SimulatorConfig, clock timeutil.Clock, seed uint64) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulator{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Simulator) Name() string { return "simulator" }

// SetHardwareActive switches the simulator off while a real sensor is
// connected. Any transient in progress is dropped.
func (s *Simulator) SetHardwareActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardware = active
	if active {
		s.touch = nil
	}
}

// Touch starts a simulated touch transient, replacing any in progress.
func (s *Simulator) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hardware {
		return ErrHardwareActive
	}
	plateau := s.cfg.PlateauMin
	if span := s.cfg.PlateauMax - s.cfg.PlateauMin; span > 0 {
		plateau += time.Duration(s.rng.Int64N(int64(span) + 1))
	}
	peak := s.cfg.PeakMin
	if span := s.cfg.PeakMax - s.cfg.PeakMin; span > 0 {
		peak += s.rng.IntN(span + 1)
	}
	s.touch = &transient{start: s.clock.Now(), plateau: plateau, peak: peak}
	return nil
}

// Touching reports whether a transient is still above rest.
func (s *Simulator) Touching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.excessLocked(s.clock.Now()) > 0
}

// Latest returns one synthetic sample. ok is false while hardware is active.
func (s *Simulator) Latest() (serialmux.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hardware {
		return serialmux.Reading{}, false
	}

	raw := s.cfg.Resting + s.excessLocked(s.clock.Now())
	if s.cfg.Jitter > 0 {
		raw += s.rng.IntN(2*s.cfg.Jitter+1) - s.cfg.Jitter
	}
	if raw < 0 {
		raw = 0
	}
	v := float64(raw)
	return serialmux.Reading{TopPoint: v, Interpolated: v, Raw: raw}, true
}

// excessLocked is the touch contribution above rest at now.
func (s *Simulator) excessLocked(now time.Time) int {
	if s.touch == nil {
		return 0
	}
	elapsed := now.Sub(s.touch.start)
	if elapsed < s.touch.plateau {
		return s.touch.peak
	}

	ramp := elapsed - s.touch.plateau
	if ramp >= s.cfg.RampLimit || s.cfg.RampStep <= 0 {
		s.touch = nil
		return 0
	}
	excess := s.touch.peak - int(ramp/s.cfg.RampStep)*s.cfg.RampDecrement
	if excess <= 0 {
		s.touch = nil
		return 0
	}
	return excess
}
