package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

var errFakeClosed = errors.New("fake port closed")

// FakePort is an in-memory sensor link for tests. Reads block until a line
// is fed or the port is closed; writes are captured.
type FakePort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      bytes.Buffer
	out     bytes.Buffer
	failErr error
	closed  bool
}

func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, errFakeClosed
	}
	return p.in.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errFakeClosed
	}
	if err := p.failErr; err != nil {
		p.failErr = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Feed queues raw bytes exactly as given.
func (p *FakePort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(data)
	p.cond.Signal()
}

// FeedLine queues one protocol line.
func (p *FakePort) FeedLine(line string) { p.Feed(line + "\n") }

// FeedReading queues r in the sensor's wire format.
func (p *FakePort) FeedReading(r Reading) {
	p.FeedLine(fmt.Sprintf("TOP:%.1f,VAL:%.1f,INT:%d", r.TopPoint, r.Interpolated, r.Raw))
}

// Pending is the number of fed bytes not yet read.
func (p *FakePort) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in.Len()
}

// FailNextWrite makes the next Write return err.
func (p *FakePort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
