package synth

import "math"

// Param is a per-sample smoothed control value. SetTargetAtTime starts an
// exponential approach towards a target with time constant tau seconds.
type Param struct {
	sampleRate float64
	value      float64
	target     float64
	coeff      float64
}

// NewParam returns a parameter resting at v.
func NewParam(sampleRate, v float64) *Param {
	return &Param{sampleRate: sampleRate, value: v, target: v, coeff: 1}
}

// Value is the current smoothed value.
func (p *Param) Value() float64 { return p.value }

// Target is the value the parameter is heading towards.
func (p *Param) Target() float64 { return p.target }

// SetValue jumps straight to v and cancels any ramp.
func (p *Param) SetValue(v float64) {
	p.value, p.target, p.coeff = v, v, 1
}

// SetTargetAtTime begins moving towards target. After tau seconds the
// remaining distance has shrunk to 1/e of where it started. tau <= 0 jumps.
func (p *Param) SetTargetAtTime(target, tau float64) {
	p.target = target
	if tau <= 0 || p.sampleRate <= 0 {
		p.coeff = 1
		return
	}
	p.coeff = 1 - math.Exp(-1/(tau*p.sampleRate))
}

// Tick advances one sample and returns the new value.
func (p *Param) Tick() float64 {
	p.value += (p.target - p.value) * p.coeff
	return p.value
}
