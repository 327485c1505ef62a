// Package serialmux owns the touch sensor's serial line. One reader fans
// every line out to any number of subscribers, and commands from any caller
// are serialized onto the port.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrShortWrite = errors.New("serialmux: short write to serial port")
	ErrClosed     = errors.New("serialmux: closed")
)

// subscriberBuffer is the per-subscriber line backlog. A subscriber that falls
// further behind than this misses lines rather than stalling the port.
const subscriberBuffer = 16

// Stats counts traffic through a mux since it was opened.
type Stats struct {
	Lines       uint64    `json:"lines"`
	Dropped     uint64    `json:"dropped"`
	Commands    uint64    `json:"commands"`
	Subscribers int       `json:"subscribers"`
	LastLine    time.Time `json:"last_line,omitzero"`
}

// SerialMuxInterface is what the rest of the daemon needs from a sensor link.
type SerialMuxInterface interface {
	// Subscribe returns a channel of raw lines and the id to unsubscribe
	// with. After Close the channel comes back already closed.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command.
	SendCommand(string) error
	// Monitor reads the port until ctx is done, the port hits EOF or Close
	// is called.
	Monitor(context.Context) error
	Stats() Stats
	Close() error

	// AttachAdminRoutes mounts the serial pages on the tsweb debug index.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux multiplexes a single port of type T.
type SerialMux[T SerialPorter] struct {
	port T

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool

	writeMu sync.Mutex

	lines    atomic.Uint64
	dropped  atomic.Uint64
	commands atomic.Uint64
	lastLine atomic.Int64
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port: port,
		subs: make(map[string]chan string),
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *SerialMux[T]) SendCommand(command string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrShortWrite
	}
	s.commands.Add(1)
	return nil
}

func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks in Read, so it gets its own goroutine and the loop below
	// stays responsive to ctx.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.port)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if !s.deliver(line) {
				return nil
			}
		}
	}
}

// deliver hands line to every subscriber without blocking. It reports false
// once the mux is closed.
func (s *SerialMux[T]) deliver(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.lines.Add(1)
	s.lastLine.Store(time.Now().UnixNano())
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
	return true
}

func (s *SerialMux[T]) Stats() Stats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()

	st := Stats{
		Lines:       s.lines.Load(),
		Dropped:     s.dropped.Load(),
		Commands:    s.commands.Load(),
		Subscribers: n,
	}
	if ns := s.lastLine.Load(); ns != 0 {
		st.LastLine = time.Unix(0, ns)
	}
	return st
}

// Close closes every subscription and then the port. Further calls are
// no-ops.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}
