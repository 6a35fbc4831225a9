// Package tickertest provides a manually advanced ticker.Driver for tests.
package tickertest

import (
	"sync"
	"time"

	"github.com/osa030/routinetimer/internal/app/ticker"
)

type stream struct {
	countdown ticker.Countdown
	remaining time.Duration
	carry     time.Duration // time advanced but not yet a full tick
	done      bool
}

// Driver fires ticks synchronously from Advance, on the caller's goroutine.
// Time only moves when the test says so, which makes traces reproducible.
type Driver struct {
	mu      sync.Mutex
	current *stream
	starts  int
	cancels int
}

// New creates a manual driver.
func New() *Driver {
	return &Driver{}
}

// Start implements ticker.Driver.
func (d *Driver) Start(c ticker.Countdown) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil && !d.current.done {
		d.cancels++
	}
	remaining := c.Duration
	if remaining < 0 {
		remaining = 0
	}
	d.current = &stream{countdown: c, remaining: remaining}
	d.starts++
}

// Cancel implements ticker.Driver.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil && !d.current.done {
		d.cancels++
	}
	d.current = nil
}

// Active reports whether a countdown is running.
func (d *Driver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil && !d.current.done
}

// Resolution returns the tick interval of the active countdown, or 0.
func (d *Driver) Resolution() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.done {
		return 0
	}
	return d.current.countdown.Resolution
}

// Starts returns how many countdowns have been started.
func (d *Driver) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Cancels returns how many unfinished countdowns were replaced or cancelled.
func (d *Driver) Cancels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancels
}

// Advance moves time forward by elapsed, firing every tick that falls inside
// it. When a callback starts a new countdown, the rest of elapsed is applied
// to the new one. Zero-length countdowns finish even when elapsed is 0.
func (d *Driver) Advance(elapsed time.Duration) {
	for {
		d.mu.Lock()
		s := d.current
		if s == nil || s.done {
			d.mu.Unlock()
			return
		}

		if s.remaining == 0 {
			s.done = true
			d.mu.Unlock()
			s.countdown.OnTick(0)
			if d.isCurrent(s) {
				s.countdown.OnFinish()
			}
			continue
		}

		res := s.countdown.Resolution
		if res <= 0 {
			res = s.remaining
		}
		if s.carry+elapsed < res {
			s.carry += elapsed
			d.mu.Unlock()
			return
		}

		elapsed -= res - s.carry
		s.carry = 0
		s.remaining -= res
		if s.remaining < 0 {
			s.remaining = 0
		}
		remaining := s.remaining
		finished := remaining == 0
		if finished {
			s.done = true
		}
		d.mu.Unlock()

		s.countdown.OnTick(remaining)
		if finished && d.isCurrent(s) {
			s.countdown.OnFinish()
		}
	}
}

func (d *Driver) isCurrent(s *stream) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current == s
}
