package detection

import (
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultHistorySize bounds the number of buffered magnitudes.
	DefaultHistorySize = 10
	// DefaultAverageWindow is the number of newest magnitudes averaged.
	DefaultAverageWindow = 5
)

// SmoothedStatistic is the value compared against the threshold.
type SmoothedStatistic struct {
	Value float64
}

// SmoothingWindow is a fixed-capacity ring of recent jolt magnitudes.
type SmoothingWindow struct {
	data    []float64
	pos     int
	full    bool
	average int
}

// NewSmoothingWindow creates a window holding up to capacity magnitudes and
// averaging the newest average of them.
func NewSmoothingWindow(capacity, average int) *SmoothingWindow {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if average <= 0 {
		average = DefaultAverageWindow
	}
	if average > capacity {
		average = capacity
	}
	return &SmoothingWindow{
		data:    make([]float64, capacity),
		average: average,
	}
}

// Push appends a magnitude, evicting the oldest when full, and returns the
// current statistic. Until average values are buffered the newest raw value
// is reported as is.
func (w *SmoothingWindow) Push(m JoltMagnitude) SmoothedStatistic {
	w.data[w.pos] = m.Value
	w.pos++
	if w.pos >= len(w.data) {
		w.pos = 0
		w.full = true
	}

	if w.Len() < w.average {
		return SmoothedStatistic{Value: m.Value}
	}
	return SmoothedStatistic{Value: stat.Mean(w.Newest(w.average), nil)}
}

// Len returns the number of buffered magnitudes.
func (w *SmoothingWindow) Len() int {
	if w.full {
		return len(w.data)
	}
	return w.pos
}

// Newest returns up to n of the most recent magnitudes, oldest first.
func (w *SmoothingWindow) Newest(n int) []float64 {
	all := w.Slice()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Slice returns the buffer contents in insertion order.
func (w *SmoothingWindow) Slice() []float64 {
	out := make([]float64, w.Len())
	if w.full {
		copy(out, w.data[w.pos:])
		copy(out[len(w.data)-w.pos:], w.data[:w.pos])
	} else {
		copy(out, w.data[:w.pos])
	}
	return out
}

// Clear empties the window.
func (w *SmoothingWindow) Clear() {
	w.pos = 0
	w.full = false
}
