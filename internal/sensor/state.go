package sensor

import (
	"sync"
	"time"
)

// HardwareState is the derived sensor state published on every sample tick.
type HardwareState struct {
	TopPoint     float64   `json:"top_point"`
	Interpolated float64   `json:"interpolated"`
	Baseline     float64   `json:"baseline"`
	Value        int       `json:"value"`
	Raw          int       `json:"raw"`
	Source       string    `json:"source"`
	Time         time.Time `json:"time"`
	// SourceChanged marks the first tick after the source was swapped.
	SourceChanged bool `json:"source_changed,omitempty"`
}

// ChartPoint is one raw sample kept for display.
type ChartPoint struct {
	Time time.Time `json:"time"`
	Val  int       `json:"val"`
}

// DefaultChartPoints is the display window length.
const DefaultChartPoints = 50

// ChartWindow is a capped, ordered window of recent raw values.
type ChartWindow struct {
	mu     sync.Mutex
	points []ChartPoint
	limit  int
}

// NewChartWindow returns a window holding at most limit points.
func NewChartWindow(limit int) *ChartWindow {
	if limit <= 0 {
		limit = DefaultChartPoints
	}
	return &ChartWindow{limit: limit, points: make([]ChartPoint, 0, limit)}
}

// Append adds p, dropping the oldest point when full.
func (w *ChartWindow) Append(p ChartPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.points) == w.limit {
		copy(w.points, w.points[1:])
		w.points = w.points[:w.limit-1]
	}
	w.points = append(w.points, p)
}

// Points returns a copy of the window, oldest first.
func (w *ChartWindow) Points() []ChartPoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ChartPoint(nil), w.points...)
}
