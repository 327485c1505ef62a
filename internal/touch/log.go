package touch

import (
	"sync"
	"time"
)

// Log remembers when touches started so other goroutines can ask how many
// happened recently. Entries older than the horizon are pruned on Add.
type Log struct {
	horizon time.Duration

	mu     sync.Mutex
	starts []time.Time
}

// NewLog keeps starts for horizon, one minute if zero.
func NewLog(horizon time.Duration) *Log {
	if horizon <= 0 {
		horizon = time.Minute
	}
	return &Log{horizon: horizon}
}

func (l *Log) Add(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, at)
	cut := 0
	for cut < len(l.starts) && at.Sub(l.starts[cut]) > l.horizon {
		cut++
	}
	l.starts = l.starts[cut:]
}

// Since counts starts in (now-horizon, now].
func (l *Log) Since(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.starts {
		if now.Sub(t) < l.horizon && !t.After(now) {
			n++
		}
	}
	return n
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = nil
}
