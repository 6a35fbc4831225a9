package tickertest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/routinetimer/internal/app/ticker"
)

func TestDriver_AdvanceFiresWholeTicks(t *testing.T) {
	d := New()
	var ticks []time.Duration
	finished := 0

	d.Start(ticker.Countdown{
		Duration:   30 * time.Millisecond,
		Resolution: 10 * time.Millisecond,
		OnTick:     func(r time.Duration) { ticks = append(ticks, r) },
		OnFinish:   func() { finished++ },
	})

	d.Advance(15 * time.Millisecond)
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, ticks)

	// The 5ms carried over completes the next tick.
	d.Advance(5 * time.Millisecond)
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 10 * time.Millisecond}, ticks)
	assert.True(t, d.Active())

	d.Advance(time.Second)
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 10 * time.Millisecond, 0}, ticks)
	assert.Equal(t, 1, finished)
	assert.False(t, d.Active())
}

func TestDriver_CancelStopsTicks(t *testing.T) {
	d := New()
	ticks := 0
	finished := 0

	d.Start(ticker.Countdown{
		Duration:   30 * time.Millisecond,
		Resolution: 10 * time.Millisecond,
		OnTick:     func(time.Duration) { ticks++ },
		OnFinish:   func() { finished++ },
	})
	d.Advance(10 * time.Millisecond)
	d.Cancel()
	d.Advance(time.Second)

	assert.Equal(t, 1, ticks)
	assert.Equal(t, 0, finished)
	assert.Equal(t, 1, d.Cancels())
}

func TestDriver_CallbackChainsIntoNewStream(t *testing.T) {
	d := New()
	var order []string

	var startSecond func()
	startSecond = func() {
		d.Start(ticker.Countdown{
			Duration:   20 * time.Millisecond,
			Resolution: 10 * time.Millisecond,
			OnTick:     func(time.Duration) { order = append(order, "b-tick") },
			OnFinish:   func() { order = append(order, "b-finish") },
		})
	}

	d.Start(ticker.Countdown{
		Duration:   10 * time.Millisecond,
		Resolution: 10 * time.Millisecond,
		OnTick:     func(time.Duration) { order = append(order, "a-tick") },
		OnFinish: func() {
			order = append(order, "a-finish")
			startSecond()
		},
	})

	d.Advance(30 * time.Millisecond)

	assert.Equal(t, []string{"a-tick", "a-finish", "b-tick", "b-tick", "b-finish"}, order)
	assert.Equal(t, 2, d.Starts())
	assert.Equal(t, 0, d.Cancels())
}

func TestDriver_ZeroDurationFinishesWithoutTime(t *testing.T) {
	d := New()
	finished := 0

	d.Start(ticker.Countdown{
		Duration:   0,
		Resolution: 10 * time.Millisecond,
		OnTick:     func(time.Duration) {},
		OnFinish:   func() { finished++ },
	})
	d.Advance(0)

	assert.Equal(t, 1, finished)
}
