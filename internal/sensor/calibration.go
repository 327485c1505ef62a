// Package sensor turns raw capacitive readings into the calibrated state the
// rest of the daemon consumes: a slowly drifting baseline, the deviation from
// it, and the fixed-rate sampling loop that publishes both.
package sensor

import "math"

const (
	// DefaultAdaptGate is the largest |raw-baseline| that still lets the
	// baseline move. Larger excursions are treated as touches.
	DefaultAdaptGate = 10.0
	// DefaultAdaptRate is the weight of each new sample in the baseline.
	DefaultAdaptRate = 0.01
)

// Tracker maintains the resting baseline and the deviation of each sample
// from it. The zero value is not usable; call NewTracker.
type Tracker struct {
	adaptGate float64
	adaptRate float64

	baseline    float64
	initialised bool
}

// NewTracker returns a tracker with the given gate and rate. Non-positive
// values fall back to the defaults.
func NewTracker(adaptGate, adaptRate float64) *Tracker {
	if adaptGate <= 0 {
		adaptGate = DefaultAdaptGate
	}
	if adaptRate <= 0 || adaptRate >= 1 {
		adaptRate = DefaultAdaptRate
	}
	return &Tracker{adaptGate: adaptGate, adaptRate: adaptRate}
}

// Step feeds one raw sample and returns the updated baseline and deviation.
// The baseline stays at zero until the first non-zero sample arrives.
func (t *Tracker) Step(raw int) (baseline float64, value int) {
	r := float64(raw)
	if !t.initialised {
		if raw != 0 {
			t.baseline = r
			t.initialised = true
		}
	} else if math.Abs(r-t.baseline) < t.adaptGate {
		t.baseline = t.baseline*(1-t.adaptRate) + r*t.adaptRate
	}
	return t.baseline, int(math.Floor(math.Abs(r - t.baseline)))
}

// Baseline returns the current baseline estimate.
func (t *Tracker) Baseline() float64 { return t.baseline }

// Reset forgets the baseline so the next non-zero sample seeds it again.
func (t *Tracker) Reset() {
	t.baseline = 0
	t.initialised = false
}
