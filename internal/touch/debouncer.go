// Package touch turns the continuous deviation signal into touch edges and
// delayed interaction triggers.
package touch

import "time"

const (
	DefaultThreshold = 15
	DefaultDelay     = 400 * time.Millisecond
	MinDelay         = 300 * time.Millisecond
	MaxDelay         = 500 * time.Millisecond
)

type EdgeKind int

const (
	// Start is the first tick above the threshold.
	Start EdgeKind = iota + 1
	// End is the first tick back at or below it.
	End
	// Fire is the delayed interaction trigger that follows a Start.
	Fire
)

func (k EdgeKind) String() string {
	switch k {
	case Start:
		return "start"
	case End:
		return "end"
	case Fire:
		return "fire"
	}
	return "unknown"
}

// Edge is one event produced by Observe. Value is the deviation on the tick
// that produced it.
type Edge struct {
	Kind  EdgeKind
	Value int
	Time  time.Time
}

// ReadyFunc reports whether a touch may schedule an interaction right now,
// typically "session active and nothing in flight".
type ReadyFunc func() bool

// Debouncer is driven by the sampling loop; it owns no timers. It is not
// safe for concurrent use.
type Debouncer struct {
	threshold int
	delay     time.Duration
	ready     ReadyFunc

	touching bool
	pending  bool
	deadline time.Time
}

// NewDebouncer returns a debouncer. threshold <= 0 uses DefaultThreshold and
// delay is clamped into [MinDelay, MaxDelay], zero meaning DefaultDelay.
// A nil ready always allows scheduling.
func NewDebouncer(threshold int, delay time.Duration, ready ReadyFunc) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	switch {
	case delay == 0:
		delay = DefaultDelay
	case delay < MinDelay:
		delay = MinDelay
	case delay > MaxDelay:
		delay = MaxDelay
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Debouncer{threshold: threshold, delay: delay, ready: ready}
}

func (d *Debouncer) Touching() bool { return d.touching }

// Pending reports whether a Fire is scheduled.
func (d *Debouncer) Pending() bool { return d.pending }

// Observe feeds one tick. At most one Start or End is produced per
// crossing; a scheduled Fire is emitted on the first tick at or after its
// deadline if the latch is still set, and discarded otherwise.
func (d *Debouncer) Observe(value int, now time.Time) []Edge {
	var edges []Edge

	above := value > d.threshold
	switch {
	case above && !d.touching:
		d.touching = true
		edges = append(edges, Edge{Kind: Start, Value: value, Time: now})
		if !d.pending && d.ready() {
			d.pending = true
			d.deadline = now.Add(d.delay)
		}
	case !above && d.touching:
		d.touching = false
		edges = append(edges, Edge{Kind: End, Value: value, Time: now})
	}

	if d.pending && !now.Before(d.deadline) {
		d.pending = false
		if d.touching {
			edges = append(edges, Edge{Kind: Fire, Value: value, Time: now})
		}
	}
	return edges
}

// Reset clears the latch and any scheduled Fire.
func (d *Debouncer) Reset() {
	d.touching = false
	d.pending = false
	d.deadline = time.Time{}
}
