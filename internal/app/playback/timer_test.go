package playback

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/routinetimer/internal/app/ticker"
	"github.com/osa030/routinetimer/internal/app/ticker/tickertest"
	"github.com/osa030/routinetimer/internal/domain/sequence"
)

func mustSession(t *testing.T, durations ...time.Duration) *sequence.Session {
	t.Helper()
	labels := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	steps := make([]sequence.Step, len(durations))
	for i, d := range durations {
		steps[i] = sequence.Step{Label: labels[i%len(labels)], Duration: d}
	}
	s, err := sequence.New("test routine", steps, 0)
	require.NoError(t, err)
	return s
}

func newTestTimer(t *testing.T, durations ...time.Duration) (*Timer, *tickertest.Driver) {
	t.Helper()
	driver := tickertest.New()
	timer := NewTimer(DefaultConfig(), driver)
	timer.Load(mustSession(t, durations...))
	t.Cleanup(timer.Close)
	return timer, driver
}

// collect closes the timer and returns every event the subscription received.
func collect(timer *Timer, ch <-chan Event) []Event {
	timer.Close()
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func countType(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func firstOfType(t *testing.T, events []Event, typ EventType) Event {
	t.Helper()
	for _, e := range events {
		if e.Type == typ {
			return e
		}
	}
	t.Fatalf("no %s event in %d events", typ, len(events))
	return Event{}
}

func assertInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	assert.GreaterOrEqual(t, s.Remaining, time.Duration(0), "remaining must not be negative")
	assert.LessOrEqual(t, s.Remaining, s.Total, "remaining must not exceed total")
	if s.State != StateStopped {
		assert.GreaterOrEqual(t, s.Index, 0)
		assert.Less(t, s.Index, s.StepCount)
	}
}

func TestTimer_TwoStepScenario(t *testing.T) {
	timer, driver := newTestTimer(t, 2000*time.Millisecond, 3000*time.Millisecond)
	_, ch := timer.Subscribe(4096)

	timer.Start(0)
	driver.Advance(2000 * time.Millisecond)

	s := timer.Snapshot()
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, 3000*time.Millisecond, s.Remaining)
	assert.Equal(t, "B", s.Label)

	driver.Advance(3000 * time.Millisecond)

	s = timer.Snapshot()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 2000*time.Millisecond, s.Remaining)
	assert.False(t, driver.Active())

	events := collect(timer, ch)
	assert.Equal(t, 1, countType(events, EventStepComplete))
	assert.Equal(t, 1, countType(events, EventSessionComplete))

	stepDone := firstOfType(t, events, EventStepComplete)
	assert.Equal(t, 0, stepDone.Step)
	assert.Equal(t, time.Duration(0), stepDone.Snapshot.Remaining)

	sessionDone := firstOfType(t, events, EventSessionComplete)
	assert.Equal(t, 1, sessionDone.Step)
	assert.Equal(t, "test routine", sessionDone.Snapshot.Title)
}

func TestTimer_DelayedStartScenario(t *testing.T) {
	timer, driver := newTestTimer(t, 1000*time.Millisecond)

	timer.DelayedStart(5, 0)

	s := timer.Snapshot()
	assert.Equal(t, StateDelayed, s.State)
	assert.Equal(t, 5*time.Second, s.Remaining)
	assert.Equal(t, time.Second, driver.Resolution())

	driver.Advance(4 * time.Second)
	assert.Equal(t, StateDelayed, timer.Snapshot().State)
	assert.Equal(t, time.Second, timer.Snapshot().Remaining)

	driver.Advance(time.Second)

	s = timer.Snapshot()
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 1000*time.Millisecond, s.Remaining)
	assert.Equal(t, 10*time.Millisecond, driver.Resolution())
}

func TestTimer_DelayedStartWithoutDelayStartsImmediately(t *testing.T) {
	for _, delay := range []int{0, -3} {
		timer, driver := newTestTimer(t, time.Second, 2*time.Second)

		timer.DelayedStart(delay, 1)

		s := timer.Snapshot()
		assert.Equal(t, StateRunning, s.State)
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, 2*time.Second, s.Remaining)
		assert.Equal(t, 10*time.Millisecond, driver.Resolution())
	}
}

func TestTimer_DelayedStartInvalidIndexStops(t *testing.T) {
	timer, driver := newTestTimer(t, time.Second, 2*time.Second)
	timer.Start(1)

	timer.DelayedStart(3, 5)

	s := timer.Snapshot()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 0, s.Index)
	assert.False(t, driver.Active())
}

func TestTimer_Chaining(t *testing.T) {
	durations := []time.Duration{time.Second, 1500 * time.Millisecond, 0, 700 * time.Millisecond}
	n := len(durations)

	for i := 0; i < n; i++ {
		timer, driver := newTestTimer(t, durations...)
		_, ch := timer.Subscribe(4096)

		timer.Start(i)
		driver.Advance(10 * time.Second)

		s := timer.Snapshot()
		assert.Equal(t, StateStopped, s.State, "start %d", i)
		assert.Equal(t, 0, s.Index, "start %d", i)

		events := collect(timer, ch)
		assert.Equal(t, n-i, countType(events, EventStepStarted), "start %d", i)
		assert.Equal(t, n-1-i, countType(events, EventStepComplete), "start %d", i)
		assert.Equal(t, 1, countType(events, EventSessionComplete), "start %d", i)
		assert.Equal(t, EventSessionComplete, events[len(events)-2].Type)
		assert.Equal(t, EventStateChanged, events[len(events)-1].Type)
	}
}

func TestTimer_ZeroDurationStepAdvancesImmediately(t *testing.T) {
	timer, driver := newTestTimer(t, 0, time.Second)

	timer.Start(0)
	driver.Advance(0)

	s := timer.Snapshot()
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, time.Second, s.Remaining)
	assert.Equal(t, float64(0), s.Progress())
}

func TestTimer_PauseResumeFidelity(t *testing.T) {
	timer, driver := newTestTimer(t, 2*time.Second, time.Second)

	timer.Start(0)
	driver.Advance(730 * time.Millisecond)
	captured := timer.Snapshot().Remaining
	require.Equal(t, 1270*time.Millisecond, captured)

	timer.Pause()
	s := timer.Snapshot()
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, captured, s.Remaining)
	assert.False(t, driver.Active())

	// Time passing while paused changes nothing.
	driver.Advance(5 * time.Second)
	assert.Equal(t, captured, timer.Snapshot().Remaining)

	timer.Start(0)
	s = timer.Snapshot()
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, captured, s.Remaining)
	assert.Equal(t, 2*time.Second, s.Total)

	driver.Advance(captured - 10*time.Millisecond)
	assert.Equal(t, 0, timer.Snapshot().Index)
	driver.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, timer.Snapshot().Index)
}

func TestTimer_PauseAt(t *testing.T) {
	timer, driver := newTestTimer(t, 2*time.Second)

	timer.Start(0)
	driver.Advance(500 * time.Millisecond)

	timer.PauseAt(1600 * time.Millisecond)
	assert.Equal(t, 1600*time.Millisecond, timer.Snapshot().Remaining)

	timer.Resume()
	assert.Equal(t, StateRunning, timer.Snapshot().State)
	assert.Equal(t, 1600*time.Millisecond, timer.Snapshot().Remaining)

	timer.PauseAt(time.Hour)
	assert.Equal(t, 2*time.Second, timer.Snapshot().Remaining)

	timer.Resume()
	timer.PauseAt(-time.Second)
	assert.Equal(t, time.Duration(0), timer.Snapshot().Remaining)
}

func TestTimer_StartOtherIndexWhilePausedRestarts(t *testing.T) {
	timer, driver := newTestTimer(t, 2*time.Second, 3*time.Second)

	timer.Start(0)
	driver.Advance(500 * time.Millisecond)
	timer.Pause()

	timer.Start(1)
	s := timer.Snapshot()
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, 3*time.Second, s.Remaining)

	timer.Start(0)
	assert.Equal(t, 2*time.Second, timer.Snapshot().Remaining)
}

func TestTimer_PauseWhenNotRunningIsNoop(t *testing.T) {
	timer, driver := newTestTimer(t, 2*time.Second)

	timer.Pause()
	assert.Equal(t, StateStopped, timer.Snapshot().State)

	timer.DelayedStart(3, 0)
	timer.Pause()
	assert.Equal(t, StateDelayed, timer.Snapshot().State)
	assert.True(t, driver.Active())

	timer.Start(0)
	timer.Pause()
	before := timer.Snapshot()
	timer.Pause()
	timer.PauseAt(time.Millisecond)
	assert.Equal(t, before, timer.Snapshot())

	timer.Stop(0)
	timer.Resume()
	assert.Equal(t, StateStopped, timer.Snapshot().State)
}

func TestTimer_IdempotentStop(t *testing.T) {
	want := func(s Snapshot) {
		t.Helper()
		assert.Equal(t, StateStopped, s.State)
		assert.Equal(t, 0, s.Index)
		assert.Equal(t, 2*time.Second, s.Remaining)
		assert.Equal(t, 2*time.Second, s.Total)
	}

	setups := map[string]func(*Timer, *tickertest.Driver){
		"stopped": func(*Timer, *tickertest.Driver) {},
		"running": func(tm *Timer, d *tickertest.Driver) {
			tm.Start(1)
			d.Advance(300 * time.Millisecond)
		},
		"paused": func(tm *Timer, d *tickertest.Driver) {
			tm.Start(2)
			d.Advance(300 * time.Millisecond)
			tm.Pause()
		},
		"delayed": func(tm *Timer, d *tickertest.Driver) {
			tm.DelayedStart(10, 1)
			d.Advance(time.Second)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			timer, driver := newTestTimer(t, 2*time.Second, 3*time.Second, 4*time.Second)
			setup(timer, driver)

			for i := 0; i < 3; i++ {
				timer.Stop(0)
				want(timer.Snapshot())
				assert.False(t, driver.Active())
			}
		})
	}
}

func TestTimer_RepeatedStopEmitsOnce(t *testing.T) {
	timer, _ := newTestTimer(t, time.Second, time.Second)
	_, ch := timer.Subscribe(64)

	timer.Start(1)
	timer.Stop(0)
	timer.Stop(0)
	timer.Stop(-4)

	events := collect(timer, ch)
	assert.Equal(t, 1, countType(events, EventStateChanged))
}

func TestTimer_StopInvalidIndexRestsOnFirstStep(t *testing.T) {
	timer, _ := newTestTimer(t, time.Second, 2*time.Second)

	timer.Stop(1)
	assert.Equal(t, 1, timer.Snapshot().Index)

	timer.Stop(9)
	assert.Equal(t, 0, timer.Snapshot().Index)
	assert.Equal(t, time.Second, timer.Snapshot().Remaining)
}

func TestTimer_StartOutOfRangeStops(t *testing.T) {
	for _, idx := range []int{-1, 3, 100} {
		timer, driver := newTestTimer(t, time.Second, 2*time.Second, 3*time.Second)
		timer.Start(2)

		timer.Start(idx)

		s := timer.Snapshot()
		assert.Equal(t, StateStopped, s.State, "index %d", idx)
		assert.Equal(t, 0, s.Index, "index %d", idx)
		assert.Equal(t, time.Second, s.Remaining, "index %d", idx)
		assert.False(t, driver.Active())
	}
}

func TestTimer_SkipClamping(t *testing.T) {
	setups := map[string]func(*Timer){
		"stopped": func(*Timer) {},
		"running": func(tm *Timer) { tm.Start(1) },
		"paused":  func(tm *Timer) { tm.Start(1); tm.Pause() },
		"delayed": func(tm *Timer) { tm.DelayedStart(5, 1) },
	}

	for name, setup := range setups {
		for _, idx := range []int{-1, 3} {
			timer, driver := newTestTimer(t, time.Second, 2*time.Second, 3*time.Second)
			setup(timer)

			timer.Skip(idx)

			s := timer.Snapshot()
			assert.Equal(t, StateStopped, s.State, "%s skip(%d)", name, idx)
			assert.Equal(t, 0, s.Index, "%s skip(%d)", name, idx)
			assert.False(t, driver.Active(), "%s skip(%d)", name, idx)
		}
	}
}

func TestTimer_SkipKeepsPlayingOnlyWhenRunning(t *testing.T) {
	t.Run("running continues", func(t *testing.T) {
		timer, driver := newTestTimer(t, time.Second, 2*time.Second, 3*time.Second)
		timer.Start(0)
		driver.Advance(400 * time.Millisecond)

		timer.Next()
		s := timer.Snapshot()
		assert.Equal(t, StateRunning, s.State)
		assert.Equal(t, 1, s.Index)
		assert.Equal(t, 2*time.Second, s.Remaining)

		timer.Previous()
		assert.Equal(t, 0, timer.Snapshot().Index)
		assert.Equal(t, StateRunning, timer.Snapshot().State)
	})

	t.Run("paused lands at rest", func(t *testing.T) {
		timer, driver := newTestTimer(t, time.Second, 2*time.Second, 3*time.Second)
		timer.Start(0)
		driver.Advance(400 * time.Millisecond)
		timer.Pause()

		timer.Skip(2)
		s := timer.Snapshot()
		assert.Equal(t, StateStopped, s.State)
		assert.Equal(t, 2, s.Index)
		assert.Equal(t, 3*time.Second, s.Remaining)
		assert.False(t, driver.Active())
	})

	t.Run("next past the end resets", func(t *testing.T) {
		timer, _ := newTestTimer(t, time.Second, 2*time.Second)
		timer.Start(1)

		timer.Next()
		s := timer.Snapshot()
		assert.Equal(t, StateStopped, s.State)
		assert.Equal(t, 0, s.Index)
	})
}

func TestTimer_StartCancelsPreviousStream(t *testing.T) {
	timer, driver := newTestTimer(t, time.Second, 2*time.Second)

	timer.Start(0)
	timer.Start(1)
	timer.DelayedStart(3, 0)

	assert.Equal(t, 3, driver.Starts())
	assert.Equal(t, 2, driver.Cancels())
	assert.True(t, driver.Active())
}

// capturingDriver records every countdown so a test can fire stale callbacks.
type capturingDriver struct {
	countdowns []ticker.Countdown
}

func (d *capturingDriver) Start(c ticker.Countdown) { d.countdowns = append(d.countdowns, c) }
func (d *capturingDriver) Cancel()                  {}

func TestTimer_IgnoresStaleCallbacks(t *testing.T) {
	driver := &capturingDriver{}
	timer := NewTimer(DefaultConfig(), driver)
	t.Cleanup(timer.Close)
	timer.Load(mustSession(t, time.Second, 2*time.Second))

	timer.Start(0)
	timer.Start(1)
	require.Len(t, driver.countdowns, 2)

	stale := driver.countdowns[0]
	stale.OnTick(100 * time.Millisecond)
	stale.OnFinish()

	s := timer.Snapshot()
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, 2*time.Second, s.Remaining)

	live := driver.countdowns[1]
	live.OnTick(0)
	live.OnFinish()
	live.OnFinish()

	s = timer.Snapshot()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 0, s.Index)
	assert.Len(t, driver.countdowns, 2, "finishing the last step must not start another stream")
}

func TestTimer_TickEventsOnWholeSeconds(t *testing.T) {
	timer, driver := newTestTimer(t, 3*time.Second, time.Second)
	_, ch := timer.Subscribe(4096)

	timer.Start(0)
	driver.Advance(3 * time.Second)

	events := collect(timer, ch)
	var ticks []time.Duration
	for _, e := range events {
		if e.Type == EventTick && e.Snapshot.Index == 0 {
			ticks = append(ticks, e.Snapshot.Remaining)
		}
	}
	assert.Equal(t, []time.Duration{1990 * time.Millisecond, 990 * time.Millisecond}, ticks)
}

func TestTimer_LoadReplacesSession(t *testing.T) {
	timer, driver := newTestTimer(t, time.Second, 2*time.Second)
	_, ch := timer.Subscribe(64)
	timer.Start(1)

	steps := []sequence.Step{{Label: "X", Duration: 5 * time.Second}, {Label: "Y", Duration: 6 * time.Second}}
	next, err := sequence.New("other", steps, 1)
	require.NoError(t, err)
	timer.Load(next)

	s := timer.Snapshot()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, 6*time.Second, s.Remaining)
	assert.Equal(t, "other", s.Title)
	assert.Equal(t, "Y", s.Label)
	assert.False(t, driver.Active())

	events := collect(timer, ch)
	assert.Equal(t, EventSessionLoaded, events[len(events)-1].Type)
}

func TestTimer_OperationsBeforeLoadAreNoops(t *testing.T) {
	driver := tickertest.New()
	timer := NewTimer(Config{}, driver)
	t.Cleanup(timer.Close)

	timer.Start(0)
	timer.DelayedStart(3, 0)
	timer.Pause()
	timer.Resume()
	timer.Stop(0)
	timer.Skip(1)
	timer.Next()
	timer.Previous()

	assert.Equal(t, Snapshot{State: StateStopped}, timer.Snapshot())
	assert.Equal(t, 0, driver.Starts())
}

func TestTimer_OperationsAfterCloseAreNoops(t *testing.T) {
	timer, driver := newTestTimer(t, 5*time.Second, 5*time.Second)
	timer.Start(0)
	driver.Advance(2 * time.Second)
	_, ch := timer.Subscribe(16)

	timer.Close()
	require.False(t, driver.Active())
	starts := driver.Starts()
	before := timer.Snapshot()

	timer.Load(mustSession(t, time.Second))
	timer.Start(1)
	timer.DelayedStart(3, 0)
	timer.Pause()
	timer.PauseAt(time.Second)
	timer.Resume()
	timer.Stop(1)
	timer.Skip(1)
	timer.Next()
	timer.Previous()

	assert.Equal(t, starts, driver.Starts(), "no tick stream after close")
	assert.False(t, driver.Active())
	assert.Equal(t, before, timer.Snapshot())

	_, open := <-ch
	assert.False(t, open)
}

func TestSnapshot_Progress(t *testing.T) {
	assert.Equal(t, float64(1), Snapshot{Total: 0}.Progress())
	assert.Equal(t, float64(0), Snapshot{Total: time.Second, Remaining: time.Second}.Progress())
	assert.InDelta(t, 0.25, Snapshot{Total: 4 * time.Second, Remaining: 3 * time.Second}.Progress(), 1e-9)
}

// randomTrace applies a seeded sequence of operations and tick advances and
// returns the snapshot after each step.
func randomTrace(t *testing.T, seed uint64) ([]Snapshot, []Event) {
	timer, driver := newTestTimer(t, 1200*time.Millisecond, 0, 2500*time.Millisecond, 800*time.Millisecond)
	_, ch := timer.Subscribe(1 << 16)
	rng := rand.New(rand.NewPCG(seed, seed))

	var trace []Snapshot
	for i := 0; i < 400; i++ {
		switch rng.IntN(10) {
		case 0:
			timer.Start(rng.IntN(6) - 1)
		case 1:
			timer.DelayedStart(rng.IntN(4), rng.IntN(6)-1)
		case 2:
			timer.Pause()
		case 3:
			timer.Resume()
		case 4:
			timer.Stop(rng.IntN(6) - 1)
		case 5:
			timer.Skip(rng.IntN(6) - 1)
		case 6:
			timer.Next()
		case 7:
			timer.Previous()
		default:
			driver.Advance(time.Duration(rng.IntN(1500)) * time.Millisecond)
		}
		s := timer.Snapshot()
		assertInvariants(t, s)
		trace = append(trace, s)
	}
	return trace, collect(timer, ch)
}

func TestTimer_InvariantsAndDeterminism(t *testing.T) {
	for _, seed := range []uint64{1, 42, 2024} {
		traceA, eventsA := randomTrace(t, seed)
		traceB, eventsB := randomTrace(t, seed)

		assert.Equal(t, traceA, traceB, "seed %d", seed)
		assert.Equal(t, eventsA, eventsB, "seed %d", seed)
		for _, e := range eventsA {
			assertInvariants(t, e.Snapshot)
		}
	}
}

func TestTimer_ConcurrentOperationsWithClockDriver(t *testing.T) {
	clock := clockwork.NewFakeClock()
	timer := NewTimer(Config{TickResolution: 10 * time.Millisecond, DelayResolution: 20 * time.Millisecond}, ticker.NewClockDriver(clock))
	t.Cleanup(timer.Close)
	timer.Load(mustSession(t, 50*time.Millisecond, 30*time.Millisecond, 0, 40*time.Millisecond))
	_, ch := timer.Subscribe(1 << 16)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 99))
			for i := 0; i < 200; i++ {
				switch rng.IntN(6) {
				case 0:
					timer.Start(rng.IntN(5))
				case 1:
					timer.Pause()
				case 2:
					timer.Resume()
				case 3:
					timer.Skip(rng.IntN(6) - 1)
				case 4:
					timer.DelayedStart(rng.IntN(2), rng.IntN(4))
				default:
					clock.Advance(10 * time.Millisecond)
				}
				assertInvariants(t, timer.Snapshot())
			}
		}(g)
	}
	wg.Wait()

	timer.Stop(0)
	s := timer.Snapshot()
	assert.Equal(t, StateStopped, s.State)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 50*time.Millisecond, s.Remaining)

	for _, e := range collect(timer, ch) {
		assertInvariants(t, e.Snapshot)
	}
}
