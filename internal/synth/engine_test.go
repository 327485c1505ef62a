package synth

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rms(buf []float32) float64 {
	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func activeEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(8000, DefaultParams())
	require.NoError(t, e.Activate())
	return e
}

func TestEngine_UpdateTargets(t *testing.T) {
	tests := []struct {
		name        string
		raw         float64
		threshold   float64
		wantAmp     float64
		wantPitch   float64
		wantCutoff  float64
		wantVibrato float64
	}{
		{"full scale", 120, 50, 0.5, 1000, 3800, 6},
		{"beyond full scale clamps", 500, 50, 0.5, 1000, 3800, 6},
		{"half way", 85, 50, 0.05 + 0.5*0.45, 196 + 0.5*804, 2300, 5},
		{"threshold above full scale uses unit span", 121, 120, 0.5, 1000, 3800, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := activeEngine(t)
			e.Update(tt.raw, tt.threshold)
			assert.InDelta(t, tt.wantAmp, e.v.amp.Target(), 1e-9)
			assert.InDelta(t, tt.wantPitch, e.v.pitch.Target(), 1e-9)
			assert.InDelta(t, tt.wantCutoff, e.v.cutoff.Target(), 1e-9)
			assert.InDelta(t, tt.wantVibrato, e.v.vibrato.Target(), 1e-9)
		})
	}
}

func TestEngine_GateClosedOnlyMovesAmplitude(t *testing.T) {
	e := activeEngine(t)
	e.Update(120, 50)
	e.Update(50, 50)

	assert.Equal(t, 0.0, e.v.amp.Target())
	assert.Equal(t, 1000.0, e.v.pitch.Target())
	assert.Equal(t, 3800.0, e.v.cutoff.Target())
}

func TestEngine_MasterVolumeScalesAndClamps(t *testing.T) {
	e := activeEngine(t)
	assert.Equal(t, MaxMasterVolume, e.SetMasterVolume(10))
	assert.Equal(t, MinMasterVolume, e.SetMasterVolume(0))

	e.SetMasterVolume(2)
	e.Update(120, 50)
	assert.InDelta(t, 1.0, e.v.amp.Target(), 1e-9)
}

func TestEngine_UpdateBeforeActivateIsIgnored(t *testing.T) {
	e := NewEngine(8000, DefaultParams())
	e.Update(120, 50)
	assert.Nil(t, e.v)
	assert.Equal(t, StateIdle, e.State())
}

func TestEngine_Lifecycle(t *testing.T) {
	e := NewEngine(8000, DefaultParams())
	buf := make([]float32, 4000)

	e.Render(buf)
	assert.Zero(t, rms(buf), "idle engine must be silent")

	require.NoError(t, e.Activate())
	e.Update(120, 50)
	e.Render(buf)
	assert.Greater(t, rms(buf), 0.01)

	e.Suspend()
	assert.Equal(t, StateSuspended, e.State())
	e.Render(buf)
	assert.Zero(t, rms(buf))

	e.Resume()
	assert.Equal(t, StateRunning, e.State())
	e.Render(buf)
	assert.Greater(t, rms(buf), 0.01)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, StateClosed, e.State())
	assert.True(t, errors.Is(e.Activate(), ErrClosed))
	e.Render(buf)
	assert.Zero(t, rms(buf))
}

func TestEngine_GateCloseFadesOut(t *testing.T) {
	e := activeEngine(t)
	buf := make([]float32, 8000)
	e.Update(120, 50)
	e.Render(buf)
	loud := rms(buf)

	e.Update(10, 50)
	e.Render(buf) // 1 s is ten time constants
	tail := rms(buf[len(buf)-800:])
	assert.Less(t, tail, loud/100)
}

func TestEngine_OutputStaysInRange(t *testing.T) {
	e := activeEngine(t)
	e.SetMasterVolume(MaxMasterVolume)
	p := DefaultParams()
	p.Brightness = 1
	e.SetParams(p)
	e.Update(120, 0)

	buf := make([]float32, 16000)
	e.Render(buf)
	for i, s := range buf {
		if s < -1 || s > 1 || math.IsNaN(float64(s)) {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestEngine_OpenGateAmplitudeBetweenBounds(t *testing.T) {
	e := activeEngine(t)
	e.SetMasterVolume(1.5)
	e.Update(90, 50)
	p := e.Params()
	got := e.v.amp.Target()
	assert.Greater(t, got, p.MinVol*1.5)
	assert.Less(t, got, p.AmpMax*1.5)

	e.Update(10, 50)
	assert.Zero(t, e.v.amp.Target())
}
