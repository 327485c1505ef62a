// Package synth is the bio-synth: a small subtractive voice whose pitch,
// loudness and brightness follow the plant's raw capacitance.
package synth

import (
	"errors"
	"sync"
)

const (
	DefaultSampleRate = 44100

	MinMasterVolume = 0.5
	MaxMasterVolume = 3.0

	// raw value at which the voice is fully open
	fullScaleRaw = 120.0

	gateCloseTau = 0.1
	pitchTau     = 0.1
	cutoffTau    = 0.2
	vibratoTau   = 0.5

	baseCutoff  = 800.0
	cutoffRange = 3000.0

	// filter coefficients are recomputed at this sub-rate
	controlBlock = 32
)

// ErrClosed is returned by Activate after Close.
var ErrClosed = errors.New("synth: engine closed")

// SynthParams shape the voice. Frequencies are in Hz and times in seconds.
type SynthParams struct {
	FMin         float64 `json:"f_min" toml:"f_min" yaml:"f_min"`
	FMax         float64 `json:"f_max" toml:"f_max" yaml:"f_max"`
	AmpMax       float64 `json:"amp_max" toml:"amp_max" yaml:"amp_max"`
	MinVol       float64 `json:"min_vol" toml:"min_vol" yaml:"min_vol"`
	Glide        float64 `json:"glide" toml:"glide" yaml:"glide"`
	VibratoSpeed float64 `json:"vibrato_speed" toml:"vibrato_speed" yaml:"vibrato_speed"`
	VibratoDepth float64 `json:"vibrato_depth" toml:"vibrato_depth" yaml:"vibrato_depth"`
	Brightness   float64 `json:"brightness" toml:"brightness" yaml:"brightness"`
	DetuneCents  float64 `json:"detune_cents" toml:"detune_cents" yaml:"detune_cents"`
}

func DefaultParams() SynthParams {
	return SynthParams{
		FMin:         196,
		FMax:         1000,
		AmpMax:       0.5,
		MinVol:       0.05,
		Glide:        0.2,
		VibratoSpeed: 5,
		VibratoDepth: 4,
		Brightness:   0.5,
		DetuneCents:  10,
	}
}

// State is the engine lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type voice struct {
	amp     *Param
	pitch   *Param
	cutoff  *Param
	vibrato *Param

	osc1, osc2 sawOsc
	lfo        sineOsc
	filter     biquad
	n          int
}

// Engine renders the voice into float32 blocks. Update may be called from
// the sampling loop while Render runs on the audio goroutine.
type Engine struct {
	sampleRate float64

	mu     sync.Mutex
	params SynthParams
	master float64
	state  State
	v      *voice
}

// NewEngine returns an idle engine. Nothing is allocated for the voice until
// the first Activate.
func NewEngine(sampleRate int, params SynthParams) *Engine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Engine{sampleRate: float64(sampleRate), params: params, master: 1}
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetParams replaces the voice parameters. They apply from the next Update.
func (e *Engine) SetParams(p SynthParams) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
}

func (e *Engine) Params() SynthParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetMasterVolume clamps v into [MinMasterVolume, MaxMasterVolume].
func (e *Engine) SetMasterVolume(v float64) float64 {
	v = clamp(v, MinMasterVolume, MaxMasterVolume)
	e.mu.Lock()
	e.master = v
	e.mu.Unlock()
	return v
}

func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

// Activate builds the voice on first use and starts (or resumes) output.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return nil
	}
	if e.v == nil {
		sr := e.sampleRate
		e.v = &voice{
			amp:     NewParam(sr, 0),
			pitch:   NewParam(sr, e.params.FMin),
			cutoff:  NewParam(sr, baseCutoff),
			vibrato: NewParam(sr, e.params.VibratoDepth),
		}
		e.v.filter.setLowpass(baseCutoff, e.q(), sr)
	}
	e.state = StateRunning
	return nil
}

// Suspend silences output but keeps the voice and its ramps.
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.state = StateSuspended
	}
}

// Resume continues after Suspend.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSuspended {
		e.state = StateRunning
	}
}

// Close releases the voice. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateClosed
	e.v = nil
	return nil
}

// Update maps one raw reading onto the voice. Values at or below threshold
// close the gate; everything else only moves while the gate is open.
func (e *Engine) Update(raw, threshold float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.v == nil {
		return
	}
	p := e.params
	if raw <= threshold {
		e.v.amp.SetTargetAtTime(0, gateCloseTau)
		return
	}
	n := clamp((raw-threshold)/max(1, fullScaleRaw-threshold), 0, 1)
	e.v.amp.SetTargetAtTime((p.MinVol+n*(p.AmpMax-p.MinVol))*e.master, p.Glide)
	e.v.pitch.SetTargetAtTime(p.FMin+n*(p.FMax-p.FMin), pitchTau)
	e.v.cutoff.SetTargetAtTime(baseCutoff+n*cutoffRange, cutoffTau)
	e.v.vibrato.SetTargetAtTime(p.VibratoDepth+n*2, vibratoTau)
}

// Render fills buf with the next len(buf) samples. Outside the running
// state it writes silence and leaves the ramps where they are.
func (e *Engine) Render(buf []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning || e.v == nil {
		clear(buf)
		return
	}
	v, sr, p := e.v, e.sampleRate, e.params
	q := e.q()
	half := p.DetuneCents / 2
	for i := range buf {
		amp := v.amp.Tick()
		f := v.pitch.Tick() + v.lfo.next(p.VibratoSpeed, sr)*v.vibrato.Tick()
		cut := v.cutoff.Tick()
		if v.n%controlBlock == 0 {
			v.filter.setLowpass(cut, q, sr)
		}
		v.n++
		x := 0.5 * (v.osc1.next(detune(f, half), sr) + v.osc2.next(detune(f, -half), sr))
		buf[i] = float32(clamp(v.filter.process(x)*amp, -1, 1))
	}
}

func (e *Engine) q() float64 {
	return 0.707 + e.params.Brightness*4
}
