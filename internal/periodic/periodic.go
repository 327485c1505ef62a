// Package periodic runs fixed-rate loops with an explicit stop handle.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// Handle controls one running loop. Stop cancels the loop, stops its ticker
// and waits for the goroutine to exit. Stop is safe to call more than once.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Run calls fn on every tick of a period-length ticker from clock until ctx is
// cancelled or the returned handle is stopped. fn runs on the loop goroutine,
// so ticks never overlap.
func Run(ctx context.Context, clock timeutil.Clock, period time.Duration, fn func(now time.Time)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	ticker := clock.NewTicker(period)

	go func() {
		defer close(h.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C():
				fn(now)
			}
		}
	}()

	return h
}

// Stop halts the loop and blocks until it has exited.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
