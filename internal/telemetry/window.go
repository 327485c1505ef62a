package telemetry

import "sync"

// DefaultWindowSize is how many events an analysis sees.
const DefaultWindowSize = 20

// Window is a bounded FIFO of the most recent events.
type Window struct {
	mu     sync.Mutex
	size   int
	events []SensorEvent
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{size: size, events: make([]SensorEvent, 0, size)}
}

// Push appends ev, evicting the oldest event when full.
func (w *Window) Push(ev SensorEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.events) == w.size {
		copy(w.events, w.events[1:])
		w.events = w.events[:w.size-1]
	}
	w.events = append(w.events, ev)
}

// Events returns a copy, oldest first.
func (w *Window) Events() []SensorEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]SensorEvent(nil), w.events...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = w.events[:0]
}
