package detection

import (
	"math"
	"time"
)

// Params tune the detection gates. Zero fields fall back to defaults.
type Params struct {
	ZAxisWeight       float64
	MinSampleInterval time.Duration
	Refractory        time.Duration
	VerticalGate      float64
	HistorySize       int
	AverageWindow     int
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		ZAxisWeight:       DefaultZAxisWeight,
		MinSampleInterval: 50 * time.Millisecond,
		Refractory:        2 * time.Second,
		VerticalGate:      2.0,
		HistorySize:       DefaultHistorySize,
		AverageWindow:     DefaultAverageWindow,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.ZAxisWeight <= 0 {
		p.ZAxisWeight = def.ZAxisWeight
	}
	if p.MinSampleInterval <= 0 {
		p.MinSampleInterval = def.MinSampleInterval
	}
	if p.Refractory <= 0 {
		p.Refractory = def.Refractory
	}
	if p.VerticalGate <= 0 {
		p.VerticalGate = def.VerticalGate
	}
	if p.HistorySize <= 0 {
		p.HistorySize = def.HistorySize
	}
	if p.AverageWindow <= 0 {
		p.AverageWindow = def.AverageWindow
	}
	return p
}

// Detector applies the sampling, threshold, refractory and vertical gates to
// a sample stream. It is owned by a single goroutine; only the threshold is
// shared.
type Detector struct {
	params    Params
	threshold *ThresholdStore
	window    *SmoothingWindow

	minIntervalMs int64
	refractoryMs  int64

	lastSample      *RawSample
	lastDetectionMs int64
	detected        bool
	sequence        uint64
}

// NewDetector wires a detector to the shared threshold store.
func NewDetector(params Params, threshold *ThresholdStore) *Detector {
	params = params.withDefaults()
	if threshold == nil {
		threshold = NewThresholdStore(DefaultThreshold)
	}
	return &Detector{
		params:        params,
		threshold:     threshold,
		window:        NewSmoothingWindow(params.HistorySize, params.AverageWindow),
		minIntervalMs: params.MinSampleInterval.Milliseconds(),
		refractoryMs:  params.Refractory.Milliseconds(),
	}
}

// OnSample ingests one sample and reports a detection when every gate passes.
// Samples arriving within the minimum interval of the previous accepted
// sample, and samples with non-finite axes or magnitude, are dropped without
// touching any state.
func (d *Detector) OnSample(sample RawSample) (Event, bool) {
	if d.lastSample != nil && sample.TimestampMillis-d.lastSample.TimestampMillis <= d.minIntervalMs {
		return Event{}, false
	}

	if !finite(sample.X) || !finite(sample.Y) || !finite(sample.Z) {
		return Event{}, false
	}

	prev := d.lastSample
	magnitude := ComputeMagnitude(prev, sample, d.params.ZAxisWeight)
	// Overflowing readings are dropped like gated ones so they cannot poison
	// the window or the next delta.
	if !finite(magnitude.Value) {
		return Event{}, false
	}

	current := sample
	d.lastSample = &current

	smoothed := d.window.Push(magnitude)
	threshold := d.threshold.Get()

	if !finite(smoothed.Value) || smoothed.Value <= threshold {
		return Event{}, false
	}
	if d.detected && sample.TimestampMillis-d.lastDetectionMs <= d.refractoryMs {
		return Event{}, false
	}
	if prev == nil || math.Abs(sample.Z-prev.Z) <= d.params.VerticalGate {
		return Event{}, false
	}

	d.sequence++
	d.detected = true
	d.lastDetectionMs = sample.TimestampMillis
	d.window.Clear()

	return Event{
		Sequence:        d.sequence,
		TimestampMillis: sample.TimestampMillis,
		Magnitude:       smoothed.Value,
		Threshold:       threshold,
		Severity:        Classify(smoothed.Value, threshold),
	}, true
}

// Warm reports whether at least one sample has been accepted.
func (d *Detector) Warm() bool {
	return d.lastSample != nil
}

// Detections returns the number of events emitted so far.
func (d *Detector) Detections() uint64 {
	return d.sequence
}

// Buffered returns the number of magnitudes currently in the smoothing window.
func (d *Detector) Buffered() int {
	return d.window.Len()
}

// Threshold exposes the shared threshold store.
func (d *Detector) Threshold() *ThresholdStore {
	return d.threshold
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
