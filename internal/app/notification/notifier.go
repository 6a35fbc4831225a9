// Package notification turns timer completions into user-facing cues.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/app/playback"
	"github.com/osa030/routinetimer/internal/domain/cue"
	"github.com/osa030/routinetimer/internal/domain/preference"
)

// ErrUnknownGate is returned by ParseGate for unrecognised names.
var ErrUnknownGate = errors.New("unknown gate")

// Gate decides from the preferences whether a sink fires.
type Gate int

const (
	GateNone      Gate = iota // Always fires
	GateSound                 // Fires only when sound is enabled
	GateVibration             // Fires only when vibration is enabled
)

// String returns the string representation of the gate.
func (g Gate) String() string {
	switch g {
	case GateNone:
		return "none"
	case GateSound:
		return "sound"
	case GateVibration:
		return "vibration"
	default:
		return "unknown"
	}
}

// ParseGate parses a gate name.
func ParseGate(s string) (Gate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return GateNone, nil
	case "sound":
		return GateSound, nil
	case "vibration":
		return GateVibration, nil
	}
	return GateNone, errors.Wrapf(ErrUnknownGate, "%q", s)
}

// Allows reports whether the gate is open under p.
func (g Gate) Allows(p preference.Preferences) bool {
	switch g {
	case GateSound:
		return p.SoundEnabled
	case GateVibration:
		return p.VibrationEnabled
	default:
		return true
	}
}

// Target is a sink with its gate.
type Target struct {
	Sink cue.Sink
	Gate Gate
}

// Recorder observes cue deliveries.
type Recorder interface {
	CueDelivered(sink string, kind cue.Kind, err error)
}

// Notifier delivers completion cues to its targets, in order.
// Sink failures are logged and never propagate to the timer.
type Notifier struct {
	targets  []Target
	prefs    preference.Source
	timeout  time.Duration
	clock    clockwork.Clock
	recorder Recorder
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock sets the clock used to stamp cues.
func WithClock(c clockwork.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithRecorder sets a delivery observer.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// NewNotifier creates a notifier. Preferences are read for every cue, so
// edits apply to the next completion.
func NewNotifier(prefs preference.Source, targets []Target, timeout time.Duration, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	n := &Notifier{
		targets: targets,
		prefs:   prefs,
		timeout: timeout,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CueFor maps a timer event to its cue. Only completions produce one.
func CueFor(e playback.Event, at time.Time) (cue.Cue, bool) {
	var kind cue.Kind
	switch e.Type {
	case playback.EventStepComplete:
		kind = cue.KindStep
	case playback.EventSessionComplete:
		kind = cue.KindSession
	default:
		return cue.Cue{}, false
	}
	return cue.Cue{
		Kind:  kind,
		Title: e.Snapshot.Title,
		Label: e.Snapshot.Label,
		Index: e.Step,
		Count: e.Snapshot.StepCount,
		At:    at,
	}, true
}

// Run consumes events until ctx is done or the channel closes.
func (n *Notifier) Run(ctx context.Context, events <-chan playback.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if c, ok := CueFor(e, n.clock.Now()); ok {
				n.Notify(ctx, c)
			}
		}
	}
}

// Notify delivers c to every target whose gate is open.
func (n *Notifier) Notify(ctx context.Context, c cue.Cue) {
	prefs := n.prefs.Current()
	for _, t := range n.targets {
		if !t.Gate.Allows(prefs) {
			zlog.Debug().Msgf("notification: sink gated: sink=%s gate=%s kind=%s", t.Sink.Name(), t.Gate, c.Kind)
			continue
		}
		err := n.deliver(ctx, t.Sink, c)
		if err != nil {
			zlog.Error().Msgf("notification: delivery failed: sink=%s kind=%s err=%v", t.Sink.Name(), c.Kind, err)
		}
		if n.recorder != nil {
			n.recorder.CueDelivered(t.Sink.Name(), c.Kind, err)
		}
	}
}

// deliver runs one sink with a timeout. A sink that ignores its context is
// abandoned once the timeout passes.
func (n *Notifier) deliver(ctx context.Context, s cue.Sink, c cue.Cue) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("sink panicked: %v", r)
			}
		}()
		done <- s.Deliver(ctx, c)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sink did not finish in time")
	}
}

// placeholders returns the template values of c for command sinks.
func placeholders(c cue.Cue) map[string]string {
	return map[string]string{
		"kind":   c.Kind.String(),
		"title":  c.Title,
		"label":  c.Label,
		"index":  fmt.Sprint(c.Index),
		"number": fmt.Sprint(c.Index + 1),
		"count":  fmt.Sprint(c.Count),
	}
}
