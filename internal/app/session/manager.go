// Package session provides the playback session manager.
package session

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/app/notification"
	"github.com/osa030/routinetimer/internal/app/playback"
	"github.com/osa030/routinetimer/internal/app/session/state"
	"github.com/osa030/routinetimer/internal/app/ticker"
	"github.com/osa030/routinetimer/internal/domain/cue"
	"github.com/osa030/routinetimer/internal/domain/preference"
	"github.com/osa030/routinetimer/internal/domain/routine"
	"github.com/osa030/routinetimer/internal/domain/sequence"
	"github.com/osa030/routinetimer/internal/infra/store"
)

var (
	ErrRoutineNotFound = errors.New("routine not found")
	ErrClosed          = errors.New("session manager is closed")
	ErrRunning         = errors.New("session manager is already running")
)

// RoutineStore provides stored routines.
type RoutineStore interface {
	Get(ctx context.Context, id string) (*routine.Routine, error)
}

// Recorder records playback activity. *metrics.Recorder implements it.
type Recorder interface {
	notification.Recorder
	IncOperation(name string)
	SetState(state string)
	SetRemaining(d time.Duration)
	IncStepCompleted()
	IncSessionCompleted()
	IncSessionLoaded(source string)
}

// Config holds session manager configuration.
type Config struct {
	Timer       playback.Config
	EventBuffer int           // Buffer of the internal event subscriptions
	SinkTimeout time.Duration // Per-sink cue delivery timeout
}

// Dependencies are the collaborators of a Manager.
type Dependencies struct {
	Routines    RoutineStore
	Preferences preference.Source
	Targets     []notification.Target
	Recorder    Recorder        // Optional
	Clock       clockwork.Clock // Optional; real clock by default
	Driver      ticker.Driver   // Optional; a clock driver on Clock by default
	Rand        *rand.Rand      // Optional; shuffle source
}

// PlayOptions controls how a routine is played.
type PlayOptions struct {
	StartIndex   int
	Shuffle      bool
	Count        int  // With Shuffle, play only this many items (0 = all)
	DelaySeconds *int // Overrides the pre-start delay preference when set
}

// Status is a consistent view of the timer plus what is loaded.
type Status struct {
	playback.Snapshot
	Loaded            state.Loaded
	SessionsCompleted int
}

// Manager owns the single playback timer of the process.
type Manager struct {
	mu sync.Mutex // Serialises loads and the shuffle source

	config   Config
	timer    *playback.Timer
	stateMgr *state.Manager
	routines RoutineStore
	prefs    preference.Source
	notifier *notification.Notifier
	recorder Recorder
	clock    clockwork.Clock
	rng      *rand.Rand

	// Internal subscriptions, registered at construction so no event is
	// missed before Run.
	cues   <-chan playback.Event
	events <-chan playback.Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	closed  bool
}

// NewManager creates a new session manager.
func NewManager(cfg Config, deps Dependencies) *Manager {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	driver := deps.Driver
	if driver == nil {
		driver = ticker.NewClockDriver(clock)
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	prefs := deps.Preferences
	if prefs == nil {
		prefs = preference.Static(preference.Default())
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   cfg,
		timer:    playback.NewTimer(cfg.Timer, driver),
		stateMgr: state.New(),
		routines: deps.Routines,
		prefs:    prefs,
		notifier: notification.NewNotifier(prefs, deps.Targets, cfg.SinkTimeout,
			notification.WithClock(clock), notification.WithRecorder(recorder)),
		recorder: recorder,
		clock:    clock,
		rng:      rng,
		ctx:      ctx,
		cancel:   cancel,
	}
	_, m.cues = m.timer.Subscribe(cfg.EventBuffer)
	_, m.events = m.timer.Subscribe(cfg.EventBuffer)
	return m
}

// Run starts the cue notifier and the bookkeeping loop, and blocks until ctx
// is done or the manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.notifier.Run(m.ctx, m.cues)
	}()
	go func() {
		defer m.wg.Done()
		m.eventLoop(m.events)
	}()

	zlog.Info().Msg("session: manager running")
	select {
	case <-ctx.Done():
	case <-m.ctx.Done():
	}
	return nil
}

// PlayRoutine loads a stored routine and starts it after the pre-start delay.
func (m *Manager) PlayRoutine(ctx context.Context, id string, opts PlayOptions) (playback.Snapshot, error) {
	r, err := m.routines.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return m.timer.Snapshot(), errors.Wrapf(ErrRoutineNotFound, "id=%s", id)
	}
	if err != nil {
		return m.timer.Snapshot(), errors.Wrap(err, "failed to load routine")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.buildSession(r, opts)
	if err != nil {
		return m.timer.Snapshot(), err
	}
	m.loadLocked(s, state.Loaded{Source: state.SourceRoutine, RoutineID: r.ID, Shuffled: opts.Shuffle})
	m.timer.DelayedStart(m.delaySeconds(opts.DelaySeconds), s.StartIndex())

	zlog.Info().Msgf("session: playing routine: id=%s title=%s steps=%d start=%d shuffle=%t", r.ID, r.Title, s.Len(), s.StartIndex(), opts.Shuffle)
	return m.timer.Snapshot(), nil
}

// PlayDuration plays a single ad-hoc countdown after the pre-start delay.
func (m *Manager) PlayDuration(label string, amount int64, unit routine.Unit, delaySeconds *int) (playback.Snapshot, error) {
	s, err := sequence.Single(label, amount, unit)
	if err != nil {
		return m.timer.Snapshot(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadLocked(s, state.Loaded{Source: state.SourceDuration})
	m.timer.DelayedStart(m.delaySeconds(delaySeconds), 0)

	zlog.Info().Msgf("session: playing duration: label=%s duration=%v", s.Title(), s.TotalDuration())
	return m.timer.Snapshot(), nil
}

func (m *Manager) buildSession(r *routine.Routine, opts PlayOptions) (*sequence.Session, error) {
	if !opts.Shuffle {
		return sequence.FromRoutine(r, opts.StartIndex)
	}
	s, err := sequence.Shuffled(r, opts.Count, m.rng)
	if err != nil {
		return nil, err
	}
	if opts.StartIndex == 0 {
		return s, nil
	}
	return sequence.New(s.Title(), s.Steps(), opts.StartIndex)
}

func (m *Manager) loadLocked(s *sequence.Session, l state.Loaded) {
	l.Title = s.Title()
	l.Steps = s.Steps()
	l.LoadedAt = m.clock.Now()
	m.stateMgr.SetLoaded(l)
	m.timer.Load(s)
	m.recorder.IncSessionLoaded(l.Source.String())
}

func (m *Manager) delaySeconds(override *int) int {
	if override != nil {
		return *override
	}
	return m.prefs.Current().PreStartDelaySeconds
}

// Start starts (or resumes) step i.
func (m *Manager) Start(i int) playback.Snapshot {
	m.recorder.IncOperation("start")
	m.timer.Start(i)
	return m.timer.Snapshot()
}

// DelayedStart starts step i after delaySeconds.
func (m *Manager) DelayedStart(delaySeconds, i int) playback.Snapshot {
	m.recorder.IncOperation("delayed_start")
	m.timer.DelayedStart(delaySeconds, i)
	return m.timer.Snapshot()
}

// Pause pauses the running step. A non-nil remaining is the value the
// caller displayed when the user paused.
func (m *Manager) Pause(remaining *time.Duration) playback.Snapshot {
	m.recorder.IncOperation("pause")
	if remaining != nil {
		m.timer.PauseAt(*remaining)
	} else {
		m.timer.Pause()
	}
	return m.timer.Snapshot()
}

// Resume resumes a paused step.
func (m *Manager) Resume() playback.Snapshot {
	m.recorder.IncOperation("resume")
	m.timer.Resume()
	return m.timer.Snapshot()
}

// Stop stops and rests on step i.
func (m *Manager) Stop(i int) playback.Snapshot {
	m.recorder.IncOperation("stop")
	m.timer.Stop(i)
	return m.timer.Snapshot()
}

// Skip moves to step i.
func (m *Manager) Skip(i int) playback.Snapshot {
	m.recorder.IncOperation("skip")
	m.timer.Skip(i)
	return m.timer.Snapshot()
}

// Next moves to the following step.
func (m *Manager) Next() playback.Snapshot {
	m.recorder.IncOperation("next")
	m.timer.Next()
	return m.timer.Snapshot()
}

// Previous moves to the preceding step.
func (m *Manager) Previous() playback.Snapshot {
	m.recorder.IncOperation("previous")
	m.timer.Previous()
	return m.timer.Snapshot()
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	return Status{
		Snapshot:          m.timer.Snapshot(),
		Loaded:            m.stateMgr.GetLoaded(),
		SessionsCompleted: m.stateMgr.GetCompleted(),
	}
}

// Subscribe registers a timer event subscriber.
func (m *Manager) Subscribe(buffer int) (string, <-chan playback.Event) {
	return m.timer.Subscribe(buffer)
}

// Unsubscribe removes a timer event subscriber.
func (m *Manager) Unsubscribe(id string) {
	m.timer.Unsubscribe(id)
}

// Done is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Close stops the timer, closes every subscriber channel and waits for the
// manager's goroutines.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.timer.Close()
	m.cancel()
	m.wg.Wait()
	zlog.Info().Msg("session: manager closed")
}

// eventLoop handles timer events.
func (m *Manager) eventLoop(events <-chan playback.Event) {
	for {
		stop, panicked := m.drainEvents(events)
		if stop {
			return
		}
		if panicked {
			// Restart loop to keep bookkeeping alive
			zlog.Info().Msg("session: restarting event loop")
		}
	}
}

// drainEvents handles events until the channel closes (stop) or a handler
// panics.
func (m *Manager) drainEvents(events <-chan playback.Event) (stop, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event loop panicked: %v", r)
			stop, panicked = false, true
		}
	}()

	for e := range events {
		m.handleEvent(e)
	}
	return true, false
}

// handleEvent handles playback events.
func (m *Manager) handleEvent(e playback.Event) {
	s := e.Snapshot
	switch e.Type {
	case playback.EventTick:
		m.recorder.SetRemaining(s.Remaining)
		return

	case playback.EventSessionLoaded:
		zlog.Info().Msgf("session: loaded: title=%s steps=%d", s.Title, s.StepCount)

	case playback.EventStepStarted:
		zlog.Info().Msgf("session: step started: step=%d/%d label=%s duration=%v", s.Index+1, s.StepCount, s.Label, s.Total)

	case playback.EventStepComplete:
		m.recorder.IncStepCompleted()
		zlog.Info().Msgf("session: step complete: step=%d/%d label=%s", e.Step+1, s.StepCount, s.Label)

	case playback.EventSessionComplete:
		m.recorder.IncStepCompleted()
		m.recorder.IncSessionCompleted()
		m.stateMgr.IncCompleted()
		zlog.Info().Msgf("session: session complete: title=%s", s.Title)

	case playback.EventStateChanged:
		zlog.Info().Msgf("session: state changed: state=%s step=%d remaining=%v", s.State, s.Index, s.Remaining)
	}

	m.recorder.SetState(s.State.String())
	m.recorder.SetRemaining(s.Remaining)
}

type nopRecorder struct{}

func (nopRecorder) CueDelivered(string, cue.Kind, error) {}
func (nopRecorder) IncOperation(string)                 {}
func (nopRecorder) SetState(string)                     {}
func (nopRecorder) SetRemaining(time.Duration)          {}
func (nopRecorder) IncStepCompleted()                   {}
func (nopRecorder) IncSessionCompleted()                {}
func (nopRecorder) IncSessionLoaded(string)             {}
