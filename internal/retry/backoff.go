// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package retry runs a task with bounded exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// Task is one attempt. Returning retry=false stops immediately with err.
type Task func(ctx context.Context) (retry bool, err error)

// ExponentialBackoff retries a Task, doubling the wait after each failure.
type ExponentialBackoff struct {
	// MaxAttempts caps attempts. 0 means unlimited; 1 disables retries.
	MaxAttempts int

	// MinInterval is the first wait. Defaults to 250ms.
	MinInterval time.Duration

	// MaxInterval caps the wait before jitter. Defaults to 8s.
	MaxInterval time.Duration

	// Timeout bounds all attempts together.
	Timeout time.Duration

	// NoJitter disables the ±5% jitter.
	NoJitter bool

	Logger *slog.Logger
	Clock  timeutil.Clock
}

// Start runs task until it succeeds, asks not to be retried, runs out of
// attempts or ctx ends. The last error is returned.
func (e *ExponentialBackoff) Start(ctx context.Context, name string, task Task) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	clock := e.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	log := e.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	for attempt := 1; ; attempt++ {
		log.DebugContext(ctx, "retry attempt", "name", name, "attempt", attempt)
		retry, err := task(ctx)
		if err == nil {
			return nil
		}

		wait := e.interval(ctx, attempt, retry)
		if wait == 0 {
			log.InfoContext(ctx, "retry gave up", "name", name, "attempt", attempt, "error", err)
			return err
		}
		log.DebugContext(ctx, "retry backing off", "name", name, "attempt", attempt, "wait", wait, "error", err)

		t := clock.NewTimer(wait)
		select {
		case <-t.C():
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// interval returns the wait before the next attempt, or 0 to stop.
func (e *ExponentialBackoff) interval(ctx context.Context, attempt int, retry bool) time.Duration {
	if !retry || attempt == e.MaxAttempts || ctx.Err() != nil {
		return 0
	}
	lo := e.MinInterval
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	hi := e.MaxInterval
	if hi <= 0 {
		hi = 8 * time.Second
	}
	if hi < lo {
		hi = lo
	}
	wait := hi
	// shifting past hi/lo would only be capped again, or overflow
	if shift := attempt - 1; shift < 62 && lo<<shift>>shift == lo && lo<<shift < hi {
		wait = lo << shift
	}
	if !e.NoJitter {
		// #nosec G404
		wait = time.Duration(float64(wait) * (.95 + .1*rand.Float64()))
	}
	return wait
}
