package playback

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/app/ticker"
	"github.com/osa030/routinetimer/internal/domain/sequence"
)

// Config holds timer configuration.
type Config struct {
	TickResolution  time.Duration // Tick interval while running
	DelayResolution time.Duration // Tick interval during the pre-start delay
	SendTimeout     time.Duration // How long a slow subscriber may block one event
}

// DefaultConfig returns the reference resolutions: 10ms running, 1s delayed.
func DefaultConfig() Config {
	return Config{
		TickResolution:  10 * time.Millisecond,
		DelayResolution: time.Second,
		SendTimeout:     500 * time.Millisecond,
	}
}

// Timer is the countdown state machine for one playback session.
//
// Every operation and every tick callback runs under one mutex, so updates
// never interleave. Operations are total: out-of-range indexes and calls in
// the wrong state resolve to defined transitions rather than errors.
type Timer struct {
	mu sync.Mutex

	driver ticker.Driver
	config Config
	hub    *Hub

	session *sequence.Session
	closed  bool

	state     State
	index     int
	remaining time.Duration
	total     time.Duration

	// generation identifies the live tick stream; callbacks carrying an
	// older value come from a cancelled stream and are ignored.
	generation uint64
	lastSecond int64
}

// NewTimer creates a timer driven by driver.
func NewTimer(config Config, driver ticker.Driver) *Timer {
	def := DefaultConfig()
	if config.TickResolution <= 0 {
		config.TickResolution = def.TickResolution
	}
	if config.DelayResolution <= 0 {
		config.DelayResolution = def.DelayResolution
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = def.SendTimeout
	}
	return &Timer{
		driver: driver,
		config: config,
		hub:    NewHub(config.SendTimeout),
		state:  StateStopped,
	}
}

// Subscribe registers an event subscriber.
func (t *Timer) Subscribe(buffer int) (string, <-chan Event) {
	return t.hub.Subscribe(buffer)
}

// Unsubscribe removes an event subscriber.
func (t *Timer) Unsubscribe(subscriptionID string) {
	t.hub.Unsubscribe(subscriptionID)
}

// Load replaces the session wholesale. Any running countdown is cancelled and
// the timer rests at the session's start index.
func (t *Timer) Load(s *sequence.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.cancelLocked()
	t.session = s
	t.index = s.StartIndex()
	t.total = s.Step(t.index).Duration
	t.remaining = t.total
	t.state = StateStopped

	zlog.Debug().Msgf("playback: session loaded: title=%s steps=%d start=%d", s.Title(), s.Len(), t.index)
	t.emitLocked(EventSessionLoaded, t.index)
}

// Start runs step i from its full duration, or resumes it when the timer is
// paused on i. An out-of-range index behaves as Stop(0).
func (t *Timer) Start(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.startLocked(i)
}

// DelayedStart waits delaySeconds before starting step i.
// A non-positive delay starts immediately.
func (t *Timer) DelayedStart(delaySeconds int, i int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if t.session == nil {
		return
	}
	if delaySeconds <= 0 {
		t.startLocked(i)
		return
	}
	if !t.session.Valid(i) {
		t.stopLocked(0)
		return
	}

	t.index = i
	t.total = time.Duration(delaySeconds) * time.Second
	t.remaining = t.total
	t.state = StateDelayed
	t.startStreamLocked(t.remaining, t.config.DelayResolution)

	zlog.Debug().Msgf("playback: delayed start: delay=%ds step=%d", delaySeconds, i)
	t.emitLocked(EventStateChanged, i)
}

// Pause suspends a running countdown and keeps the remaining time.
// It does nothing unless the timer is running.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if t.state != StateRunning {
		return
	}
	t.pauseLocked(t.remaining)
}

// PauseAt is Pause with the remaining time the caller last displayed.
// The value is clamped to [0, total].
func (t *Timer) PauseAt(remaining time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if t.state != StateRunning {
		return
	}
	t.pauseLocked(clamp(remaining, t.total))
}

// Resume continues a paused countdown. It does nothing unless paused.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if t.state != StatePaused {
		return
	}
	t.startLocked(t.index)
}

// Stop cancels any countdown and rests on step i with its full duration.
// An invalid index rests on step 0.
func (t *Timer) Stop(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked(i)
}

// Skip moves to step i: it keeps playing when running and rests otherwise.
// Skipping outside the session resets to step 0 at rest.
func (t *Timer) Skip(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.skipLocked(i)
}

// Next skips to the following step.
func (t *Timer) Next() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.skipLocked(t.index + 1)
}

// Previous skips to the preceding step.
func (t *Timer) Previous() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.skipLocked(t.index - 1)
}

// Snapshot returns the current timer state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Close cancels the countdown and closes all subscriber channels. Operations
// after Close do nothing.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	t.cancelLocked()
	t.mu.Unlock()

	t.hub.Close()
}

func (t *Timer) startLocked(i int) {
	if t.session == nil {
		return
	}
	if !t.session.Valid(i) {
		t.stopLocked(0)
		return
	}

	resume := t.state == StatePaused && i == t.index
	t.index = i
	t.total = t.session.Step(i).Duration
	if !resume {
		t.remaining = t.total
	}
	t.state = StateRunning
	t.startStreamLocked(t.remaining, t.config.TickResolution)

	if resume {
		zlog.Debug().Msgf("playback: resumed: step=%d remaining=%v", i, t.remaining)
		t.emitLocked(EventStateChanged, i)
		return
	}
	zlog.Debug().Msgf("playback: step started: step=%d label=%s duration=%v", i, t.session.Step(i).Label, t.total)
	t.emitLocked(EventStepStarted, i)
}

func (t *Timer) pauseLocked(remaining time.Duration) {
	t.cancelLocked()
	t.remaining = remaining
	t.state = StatePaused

	zlog.Debug().Msgf("playback: paused: step=%d remaining=%v", t.index, t.remaining)
	t.emitLocked(EventStateChanged, t.index)
}

func (t *Timer) stopLocked(i int) {
	if t.session == nil {
		return
	}
	t.cancelLocked()
	if !t.session.Valid(i) {
		i = 0
	}

	before := t.snapshotLocked()
	t.index = i
	t.total = t.session.Step(i).Duration
	t.remaining = t.total
	t.state = StateStopped

	if t.snapshotLocked() != before {
		zlog.Debug().Msgf("playback: stopped: step=%d", i)
		t.emitLocked(EventStateChanged, i)
	}
}

func (t *Timer) skipLocked(i int) {
	if t.session == nil {
		return
	}
	if !t.session.Valid(i) {
		t.stopLocked(0)
		return
	}
	if t.state == StateRunning {
		t.startLocked(i)
		return
	}
	t.stopLocked(i)
}

// startStreamLocked replaces the live tick stream.
func (t *Timer) startStreamLocked(d, resolution time.Duration) {
	t.generation++
	gen := t.generation
	t.lastSecond = ceilSeconds(d)

	t.driver.Start(ticker.Countdown{
		Duration:   d,
		Resolution: resolution,
		OnTick:     func(remaining time.Duration) { t.onTick(gen, remaining) },
		OnFinish:   func() { t.onFinish(gen) },
	})
}

func (t *Timer) cancelLocked() {
	t.generation++
	t.driver.Cancel()
}

func (t *Timer) onTick(gen uint64, remaining time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation || (t.state != StateRunning && t.state != StateDelayed) {
		return
	}

	t.remaining = clamp(remaining, t.total)
	if t.remaining == 0 {
		return
	}
	if sec := ceilSeconds(t.remaining); sec != t.lastSecond {
		t.lastSecond = sec
		t.emitLocked(EventTick, t.index)
	}
}

func (t *Timer) onFinish(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation {
		return
	}
	// The stream is spent; nothing from it may act again.
	t.generation++
	t.remaining = 0

	switch t.state {
	case StateRunning:
		completed := t.index
		if t.session.IsLast(completed) {
			zlog.Debug().Msgf("playback: session complete: title=%s", t.session.Title())
			t.emitLocked(EventSessionComplete, completed)
			t.stopLocked(0)
			return
		}
		t.emitLocked(EventStepComplete, completed)
		t.startLocked(completed + 1)

	case StateDelayed:
		t.startLocked(t.index)
	}
}

func (t *Timer) snapshotLocked() Snapshot {
	if t.session == nil {
		return Snapshot{State: t.state}
	}
	return Snapshot{
		State:     t.state,
		Index:     t.index,
		Remaining: t.remaining,
		Total:     t.total,
		StepCount: t.session.Len(),
		Title:     t.session.Title(),
		Label:     t.session.Step(t.index).Label,
	}
}

func (t *Timer) emitLocked(typ EventType, step int) {
	t.hub.Publish(Event{
		Type:     typ,
		Snapshot: t.snapshotLocked(),
		Step:     step,
	})
}

func clamp(d, upper time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > upper {
		return upper
	}
	return d
}

// ceilSeconds returns d rounded up to whole seconds, the value a countdown
// display shows.
func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
