package render

import (
	"math"
	"sync/atomic"
	"time"
)

// uninitOffset marks that no record has been rendered yet.
const uninitOffset = math.MinInt64

// State is the cross-record memory of a renderer: the instant and zone offset
// of the last rendered timestamp and the widest source path seen so far.
//
// Each field is an independent atomic cell. Concurrent renders never tear a
// value but may diff against a record written by another goroutine.
type State struct {
	lastTimestamp  atomic.Int64 // unix nanoseconds
	lastOffset     atomic.Int64 // seconds east of UTC, uninitOffset before the first record
	maxTargetWidth atomic.Int64
}

// StateSnapshot is a point-in-time copy of a State.
type StateSnapshot struct {
	LastTimestamp  time.Time
	LastOffset     int
	OffsetSet      bool
	MaxTargetWidth int
}

// NewState returns a State with no record rendered yet. The first timestamp
// is always painted as moving forward.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset returns s to its initial values.
func (s *State) Reset() {
	s.lastTimestamp.Store(0)
	s.lastOffset.Store(uninitOffset)
	s.maxTargetWidth.Store(0)
}

// LastTimestamp returns the instant of the last rendered record.
func (s *State) LastTimestamp() time.Time {
	return time.Unix(0, s.lastTimestamp.Load())
}

// LastOffset returns the zone offset of the last rendered record. ok is false
// until a record has been rendered.
func (s *State) LastOffset() (offset int, ok bool) {
	off := s.lastOffset.Load()
	if off == uninitOffset {
		return 0, false
	}
	return int(off), true
}

// MaxTargetWidth returns the widest source path rendered so far.
func (s *State) MaxTargetWidth() int {
	return int(s.maxTargetWidth.Load())
}

// Snapshot copies the current values of s.
func (s *State) Snapshot() StateSnapshot {
	off, ok := s.LastOffset()
	return StateSnapshot{
		LastTimestamp:  s.LastTimestamp(),
		LastOffset:     off,
		OffsetSet:      ok,
		MaxTargetWidth: s.MaxTargetWidth(),
	}
}

// commit records a fully rendered line.
func (s *State) commit(ts time.Time, offset, width int) {
	s.lastTimestamp.Store(ts.UnixNano())
	s.lastOffset.Store(int64(offset))
	s.observeWidth(width)
}

// observeWidth raises the max width to w.
func (s *State) observeWidth(w int) {
	for {
		cur := s.maxTargetWidth.Load()
		if int64(w) <= cur || s.maxTargetWidth.CompareAndSwap(cur, int64(w)) {
			return
		}
	}
}
