package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/banshee-data/plantconnect/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_DoublesAndCaps(t *testing.T) {
	e := &ExponentialBackoff{MinInterval: 100 * time.Millisecond, MaxInterval: time.Second, NoJitter: true}
	ctx := context.Background()
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, e.interval(ctx, i+1, true), "attempt %d", i+1)
	}
}

func TestInterval_LargeAttemptsStayCapped(t *testing.T) {
	e := &ExponentialBackoff{MinInterval: 250 * time.Millisecond, MaxInterval: 8 * time.Second, NoJitter: true}
	for _, attempt := range []int{6, 7, 40, 63, 64, 200} {
		assert.Equal(t, 8*time.Second, e.interval(context.Background(), attempt, true), "attempt %d", attempt)
	}
}

func TestInterval_StopConditions(t *testing.T) {
	e := &ExponentialBackoff{MaxAttempts: 3, NoJitter: true}
	ctx, cancel := context.WithCancel(context.Background())

	assert.Zero(t, e.interval(ctx, 1, false))
	assert.Zero(t, e.interval(ctx, 3, true))
	assert.NotZero(t, e.interval(ctx, 2, true))
	cancel()
	assert.Zero(t, e.interval(ctx, 1, true))
}

func TestInterval_Jitter(t *testing.T) {
	e := &ExponentialBackoff{MinInterval: time.Second}
	for range 50 {
		d := e.interval(context.Background(), 1, true)
		assert.GreaterOrEqual(t, d, 950*time.Millisecond)
		assert.LessOrEqual(t, d, 1050*time.Millisecond)
	}
}

func TestStart_RetriesUntilSuccess(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	e := &ExponentialBackoff{MaxAttempts: 5, MinInterval: time.Second, NoJitter: true, Clock: clock}

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- e.Start(context.Background(), "test", func(context.Context) (bool, error) {
			if calls.Add(1) < 3 {
				return true, errors.New("transient")
			}
			return false, nil
		})
	}()

	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.EqualValues(t, 3, calls.Load())
			return
		case <-time.After(time.Millisecond):
			clock.Advance(time.Second)
		}
	}
}

func TestStart_NonRetryableFailsFast(t *testing.T) {
	e := &ExponentialBackoff{MaxAttempts: 5}
	boom := errors.New("bad credentials")
	calls := 0
	err := e.Start(context.Background(), "test", func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestStart_ExhaustsAttempts(t *testing.T) {
	e := &ExponentialBackoff{MaxAttempts: 3, MinInterval: time.Microsecond, MaxInterval: time.Microsecond}
	boom := errors.New("overloaded")
	calls := 0
	err := e.Start(context.Background(), "test", func(context.Context) (bool, error) {
		calls++
		return true, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestStart_ContextCancelledWhileWaiting(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	e := &ExponentialBackoff{MinInterval: time.Hour, Clock: clock}
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- e.Start(ctx, "test", func(context.Context) (bool, error) {
			started <- struct{}{}
			return true, errors.New("again")
		})
	}()
	<-started
	// the first attempt has failed; Start is now waiting on the hour-long timer
	require.Eventually(t, func() bool { return clock.ActiveTimers() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
