package synth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/plantconnect/internal/timeutil"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu     sync.Mutex
	blocks int
	n      int
}

func (c *captureWriter) WritePCM(s []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks++
	c.n += len(s)
	return nil
}

func (c *captureWriter) count() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks, c.n
}

func TestPlayer_RendersOneBlockPerPeriod(t *testing.T) {
	e := NewEngine(8000, DefaultParams())
	require.NoError(t, e.Activate())
	out := &captureWriter{}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := NewPlayer(e, out, clock, 400)
	require.Equal(t, 50*time.Millisecond, p.Period())

	h := p.Start(context.Background())
	clock.Advance(p.Period())
	require.Eventually(t, func() bool { b, _ := out.count(); return b == 1 }, time.Second, time.Millisecond)
	clock.Advance(p.Period())
	require.Eventually(t, func() bool { b, _ := out.count(); return b == 2 }, time.Second, time.Millisecond)

	h.Stop()
	_, n := out.count()
	require.Equal(t, 800, n)
}
