// Package ticker provides cancellable countdown tick streams.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown describes one tick stream.
type Countdown struct {
	Duration   time.Duration                 // Length of the countdown
	Resolution time.Duration                 // Interval between ticks
	OnTick     func(remaining time.Duration) // Called every Resolution with the time left, clamped at 0
	OnFinish   func()                        // Called once, after OnTick reported 0
}

// Driver runs at most one countdown at a time.
// Starting a countdown cancels the previous one. Callbacks never run on the
// goroutine that called Start or Cancel.
type Driver interface {
	Start(c Countdown)
	Cancel()
}

// ClockDriver is a Driver backed by a clockwork clock.
// Remaining time is computed from a deadline, so missed or late ticks do
// not accumulate drift.
type ClockDriver struct {
	clock clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewClockDriver creates a driver. A nil clock means the real clock.
func NewClockDriver(clock clockwork.Clock) *ClockDriver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockDriver{clock: clock}
}

// Start begins a new countdown, cancelling any active one.
func (d *ClockDriver) Start(c Countdown) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if c.Duration <= 0 {
		go func() {
			if ctx.Err() != nil {
				return
			}
			c.OnTick(0)
			if ctx.Err() == nil {
				c.OnFinish()
			}
		}()
		return
	}

	resolution := c.Resolution
	if resolution <= 0 {
		resolution = c.Duration
	}

	// Deadline and ticker are fixed here, not in the goroutine, so the stream
	// is anchored to the moment Start was called.
	deadline := d.clock.Now().Add(c.Duration)
	tk := d.clock.NewTicker(resolution)

	go d.run(ctx, tk, deadline, c)
}

// Cancel stops the active countdown, if any. It does not wait for an
// in-flight callback to return.
func (d *ClockDriver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *ClockDriver) run(ctx context.Context, tk clockwork.Ticker, deadline time.Time, c Countdown) {
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.Chan():
			remaining := deadline.Sub(d.clock.Now())
			if remaining < 0 {
				remaining = 0
			}
			if ctx.Err() != nil {
				return
			}
			c.OnTick(remaining)
			if remaining == 0 {
				if ctx.Err() == nil {
					c.OnFinish()
				}
				return
			}
		}
	}
}
