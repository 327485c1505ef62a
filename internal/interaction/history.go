package interaction

import (
	"sync"
	"time"

	"github.com/banshee-data/plantconnect/internal/llm"
)

// Entry is one line of the conversation.
type Entry struct {
	ID        string    `json:"id"`
	Role      llm.Role  `json:"role"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// History is the append-only conversation log. Observers run synchronously
// after each append, outside the lock.
type History struct {
	mu        sync.RWMutex
	entries   []Entry
	observers []func(Entry)
}

func NewHistory() *History { return &History{} }

func (h *History) Append(e Entry) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	obs := h.observers
	h.mu.Unlock()
	for _, fn := range obs {
		fn(e)
	}
}

// Observe registers fn for every future append.
func (h *History) Observe(fn func(Entry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Last returns a copy of the newest n entries, oldest first. n <= 0 returns
// everything.
func (h *History) Last(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := 0
	if n > 0 && n < len(h.entries) {
		start = len(h.entries) - n
	}
	return append([]Entry(nil), h.entries[start:]...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
