package synth

import "math"

// sawOsc is a band-limited sawtooth using a polyBLEP correction at the wrap.
type sawOsc struct {
	phase float64
}

func (o *sawOsc) next(freq, sampleRate float64) float64 {
	dt := freq / sampleRate
	if dt <= 0 {
		return 0
	}
	if dt > 0.5 {
		dt = 0.5
	}
	v := 2*o.phase - 1 - polyBLEP(o.phase, dt)
	o.phase += dt
	if o.phase >= 1 {
		o.phase -= math.Floor(o.phase)
	}
	return v
}

func polyBLEP(t, dt float64) float64 {
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

type sineOsc struct {
	phase float64
}

func (o *sineOsc) next(freq, sampleRate float64) float64 {
	v := math.Sin(2 * math.Pi * o.phase)
	o.phase += freq / sampleRate
	if o.phase >= 1 {
		o.phase -= math.Floor(o.phase)
	}
	return v
}

// biquad is a direct form I lowpass with RBJ cookbook coefficients.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) setLowpass(cutoff, q, sampleRate float64) {
	nyq := sampleRate / 2
	if cutoff > nyq*0.99 {
		cutoff = nyq * 0.99
	}
	if cutoff < 10 {
		cutoff = 10
	}
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)
	a0 := 1 + alpha
	f.b0 = (1 - cosw) / 2 / a0
	f.b1 = (1 - cosw) / a0
	f.b2 = f.b0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func detune(freq, cents float64) float64 {
	return freq * math.Pow(2, cents/1200)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
