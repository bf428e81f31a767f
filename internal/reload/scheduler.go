// Package reload decides when the live controller re-resolves its checkpoint.
package reload

import (
	"sync/atomic"
	"time"
)

// Scheduler fires once per elapsed interval since the last successful reload.
// A failed attempt does not move the reload timestamp; the next attempt
// happens at the following interval boundary rather than on the next check.
//
// Times are stored as atomics because load outcomes are reported from the
// loader goroutine while the step loop polls ShouldReload.
type Scheduler struct {
	interval time.Duration
	last     atomic.Int64
	next     atomic.Int64
}

// New creates a scheduler whose first reload is due one interval after start.
func New(interval time.Duration, start time.Time) *Scheduler {
	s := &Scheduler{interval: interval}
	s.Succeeded(start)
	return s
}

// Interval returns the configured reload interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// LastReload returns the time of the last successful reload.
func (s *Scheduler) LastReload() time.Time {
	return time.Unix(0, s.last.Load())
}

// ShouldReload reports whether a reload attempt is due at now. It performs
// no I/O.
func (s *Scheduler) ShouldReload(now time.Time) bool {
	n := now.UnixNano()
	return n-s.last.Load() >= int64(s.interval) && n >= s.next.Load()
}

// Succeeded records a successful reload at now.
func (s *Scheduler) Succeeded(now time.Time) {
	n := now.UnixNano()
	s.last.Store(n)
	s.next.Store(n + int64(s.interval))
}

// Failed records a failed attempt started at at. The reload timestamp is kept
// and the next attempt is deferred to the next interval boundary after at.
func (s *Scheduler) Failed(at time.Time) {
	last := s.last.Load()
	elapsed := at.UnixNano() - last
	if elapsed < 0 {
		elapsed = 0
	}
	periods := elapsed/int64(s.interval) + 1
	s.next.Store(last + periods*int64(s.interval))
}

// Until returns how long until the next attempt is due, never negative.
func (s *Scheduler) Until(now time.Time) time.Duration {
	d := time.Duration(s.next.Load() - now.UnixNano())
	if d < 0 {
		return 0
	}
	return d
}
