package sensor

import (
	"context"
	"sync"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/serialmux"
)

// Source yields the most recent reading from wherever raw values come from.
// ok is false until the source has produced anything.
type Source interface {
	Name() string
	Latest() (r serialmux.Reading, ok bool)
}

// SerialSource keeps the last well-formed line seen on a serial mux.
type SerialSource struct {
	mux serialmux.SerialMuxInterface

	mu     sync.Mutex
	latest serialmux.Reading
	seen   bool
}

// NewSerialSource wraps mux. Call Run to start consuming lines.
func NewSerialSource(mux serialmux.SerialMuxInterface) *SerialSource {
	return &SerialSource{mux: mux}
}

func (s *SerialSource) Name() string { return "serial" }

// Latest returns the newest parsed reading.
func (s *SerialSource) Latest() (serialmux.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seen
}

// Run subscribes to the mux and records every parsable line until ctx is
// done or the mux closes the subscription. Malformed lines are dropped.
func (s *SerialSource) Run(ctx context.Context) {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				monitoring.Logf("serial source: subscription closed")
				return
			}
			r, ok := serialmux.ParseLine(line)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.latest = r
			s.seen = true
			s.mu.Unlock()
		}
	}
}
