package detection

import (
	"math"
	"sync/atomic"
)

const (
	MinThreshold     = 1000.0
	MaxThreshold     = 5000.0
	DefaultThreshold = 2500.0
)

// ThresholdStore holds the active sensitivity threshold. Reads never block
// and always observe a value that was stored at some point.
type ThresholdStore struct {
	bits atomic.Uint64
}

// NewThresholdStore returns a store initialised with the clamped initial value.
func NewThresholdStore(initial float64) *ThresholdStore {
	s := &ThresholdStore{}
	s.bits.Store(math.Float64bits(DefaultThreshold))
	s.Set(initial)
	return s
}

// Get returns the current threshold.
func (s *ThresholdStore) Get() float64 {
	return math.Float64frombits(s.bits.Load())
}

// Set clamps v into [MinThreshold, MaxThreshold] and stores it. NaN leaves the
// current value untouched. The stored value is returned.
func (s *ThresholdStore) Set(v float64) float64 {
	if math.IsNaN(v) {
		return s.Get()
	}
	v = ClampThreshold(v)
	s.bits.Store(math.Float64bits(v))
	return v
}

// ClampThreshold bounds v to the supported threshold range.
func ClampThreshold(v float64) float64 {
	return math.Max(MinThreshold, math.Min(MaxThreshold, v))
}

// SensitivityLabel describes a threshold in human terms; lower thresholds are
// more sensitive.
func SensitivityLabel(threshold float64) string {
	switch {
	case threshold < 1800:
		return "Very High"
	case threshold < 2200:
		return "High"
	case threshold < 2800:
		return "Moderate"
	case threshold < 3500:
		return "Low"
	default:
		return "Very Low"
	}
}
