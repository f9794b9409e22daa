package service

import (
	"sync/atomic"
	"time"
)

// State is the process-wide run handle shared between the service and
// whoever reports on it. The zero value is ready to use.
type State struct {
	running    atomic.Bool
	startedAt  atomic.Int64
	samples    atomic.Uint64
	detections atomic.Uint64
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Running    bool
	StartedAt  time.Time
	Samples    uint64
	Detections uint64
}

func (s *State) start(now time.Time) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.startedAt.Store(now.UnixMilli())
	s.samples.Store(0)
	s.detections.Store(0)
	return true
}

func (s *State) stop() {
	s.running.Store(false)
}

// Running reports whether a service currently owns the state.
func (s *State) Running() bool {
	return s.running.Load()
}

// Snapshot copies the counters.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Running:    s.running.Load(),
		Samples:    s.samples.Load(),
		Detections: s.detections.Load(),
	}
	if ms := s.startedAt.Load(); ms > 0 {
		snap.StartedAt = time.UnixMilli(ms)
	}
	return snap
}
