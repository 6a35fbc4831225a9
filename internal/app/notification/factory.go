package notification

import (
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/domain/cue"
	"github.com/osa030/routinetimer/internal/infra/audio"
	"github.com/osa030/routinetimer/internal/infra/config"
	"github.com/osa030/routinetimer/internal/infra/natsbus"
)

// SinkType describes a configurable sink.
type SinkType struct {
	Name        string
	Description string
	New         func(settings map[string]any) (cue.Sink, error)
}

// registry holds registered sink types.
var registry = make(map[string]SinkType)

// Register registers a sink type.
func Register(t SinkType) {
	registry[t.Name] = t
}

// Registered returns all registered sink types sorted by name.
func Registered() []SinkType {
	types := make([]SinkType, 0, len(registry))
	for _, t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

func init() {
	Register(SinkType{
		Name:        "log",
		Description: "Write a log line per cue",
		New:         func(s map[string]any) (cue.Sink, error) { return NewLogSink(s) },
	})
	Register(SinkType{
		Name:        "command",
		Description: "Run a shell command per cue (vibration, desktop notification)",
		New:         func(s map[string]any) (cue.Sink, error) { return NewCommandSink(s) },
	})
	Register(SinkType{
		Name:        "beep",
		Description: "Play a tone on the audio device",
		New:         func(s map[string]any) (cue.Sink, error) { return audio.NewBeepSink(s) },
	})
	Register(SinkType{
		Name:        "nats",
		Description: "Publish the cue as JSON to a NATS subject",
		New:         func(s map[string]any) (cue.Sink, error) { return natsbus.NewPublisher(s) },
	})
}

// NewTargetsFromConfig creates the configured sinks with their gates.
// With no sinks configured, a single ungated log sink is used.
func NewTargetsFromConfig(cfg config.NotifierConfig) ([]Target, error) {
	if len(cfg.Sinks) == 0 {
		s, err := NewLogSink(nil)
		if err != nil {
			return nil, err
		}
		zlog.Info().Msg("notification: no sinks configured, using log sink")
		return []Target{{Sink: s, Gate: GateNone}}, nil
	}

	targets := make([]Target, 0, len(cfg.Sinks))
	for i, scfg := range cfg.Sinks {
		zlog.Debug().Msgf("creating cue sink: index=%d type=%s gate=%s settings=%+v", i+1, scfg.Type, scfg.Gate, scfg.Settings)

		t, ok := registry[scfg.Type]
		if !ok {
			return nil, errors.Newf("unsupported sink type: %s (sink index %d)", scfg.Type, i)
		}
		gate, err := ParseGate(scfg.Gate)
		if err != nil {
			return nil, errors.Wrapf(err, "sink index %d", i)
		}
		sink, err := t.New(scfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create sink (index %d, type %s)", i, scfg.Type)
		}

		targets = append(targets, Target{Sink: sink, Gate: gate})
		zlog.Info().Msgf("registered cue sink: index=%d type=%s gate=%s", i+1, scfg.Type, gate)
	}
	return targets, nil
}

// CloseTargets closes every sink that holds resources.
func CloseTargets(targets []Target) {
	for _, t := range targets {
		if c, ok := t.Sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				zlog.Warn().Msgf("notification: failed to close sink: sink=%s err=%v", t.Sink.Name(), err)
			}
		}
	}
}
