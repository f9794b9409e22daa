// Package detection turns a raw accelerometer stream into pothole detections.
package detection

import (
	"math"
	"time"
)

// magnitudeScale puts typical road shocks in the 1000-5000 threshold range.
const magnitudeScale = 10000.0

// DefaultZAxisWeight emphasises vertical movement over the horizontal plane.
const DefaultZAxisWeight = 2.0

// RawSample is a single tri-axis accelerometer reading.
type RawSample struct {
	X               float64
	Y               float64
	Z               float64
	TimestampMillis int64
}

// Time returns the sample timestamp as wall-clock time.
func (s RawSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMillis)
}

// JoltMagnitude is the weighted rate of change between two samples.
type JoltMagnitude struct {
	Value           float64
	TimestampMillis int64
}

// ComputeMagnitude derives the jolt magnitude of current relative to previous.
// A nil previous is treated as an all-zero sample taken at t=0.
func ComputeMagnitude(previous *RawSample, current RawSample, zAxisWeight float64) JoltMagnitude {
	var prev RawSample
	if previous != nil {
		prev = *previous
	}

	dx := current.X - prev.X
	dy := current.Y - prev.Y
	dz := (current.Z - prev.Z) * zAxisWeight

	elapsed := current.TimestampMillis - prev.TimestampMillis
	if elapsed < 1 {
		elapsed = 1
	}

	value := math.Sqrt(dx*dx+dy*dy+dz*dz) / float64(elapsed) * magnitudeScale
	return JoltMagnitude{Value: value, TimestampMillis: current.TimestampMillis}
}
