package notification

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/domain/cue"
)

// decodeSettings fills out from a sink's settings map, then applies defaults
// and validation.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.WeakDecode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// LogSinkConfig configures LogSink.
type LogSinkConfig struct {
	Level string `mapstructure:"level" default:"info" validate:"oneof=debug info warn"`
}

// LogSink writes one log line per cue.
type LogSink struct {
	level zerolog.Level
}

// NewLogSink creates a log sink from settings.
func NewLogSink(settings map[string]any) (*LogSink, error) {
	var config LogSinkConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid level")
	}
	return &LogSink{level: level}, nil
}

// Name implements cue.Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements cue.Sink.
func (s *LogSink) Deliver(_ context.Context, c cue.Cue) error {
	if c.Kind == cue.KindSession {
		zlog.WithLevel(s.level).Msgf("cue: session complete: title=%s steps=%d", c.Title, c.Count)
		return nil
	}
	zlog.WithLevel(s.level).Msgf("cue: step complete: title=%s step=%d/%d label=%s", c.Title, c.Index+1, c.Count, c.Label)
	return nil
}

// CommandSinkConfig configures CommandSink.
type CommandSinkConfig struct {
	Command string   `mapstructure:"command" validate:"required"`
	Shell   string   `mapstructure:"shell" default:"sh"`
	Kinds   []string `mapstructure:"kinds" validate:"dive,oneof=step session"`
}

// CommandSink runs a shell command per cue. Placeholders {kind}, {title},
// {label}, {index}, {number} and {count} are replaced by shell-quoted values;
// the same values are exported as ROUTINETIMER_* environment variables.
type CommandSink struct {
	config CommandSinkConfig
}

// NewCommandSink creates a command sink from settings.
func NewCommandSink(settings map[string]any) (*CommandSink, error) {
	var config CommandSinkConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &CommandSink{config: config}, nil
}

// Name implements cue.Sink.
func (s *CommandSink) Name() string { return "command" }

// Deliver implements cue.Sink.
func (s *CommandSink) Deliver(ctx context.Context, c cue.Cue) error {
	if !s.wants(c.Kind) {
		return nil
	}

	values := placeholders(c)
	line := s.config.Command
	env := os.Environ()
	for k, v := range values {
		line = strings.ReplaceAll(line, "{"+k+"}", shellQuote(v))
		env = append(env, "ROUTINETIMER_"+strings.ToUpper(k)+"="+v)
	}

	cmd := exec.CommandContext(ctx, s.config.Shell, "-c", line)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "command failed: %s", strings.TrimSpace(string(out)))
	}
	zlog.Debug().Msgf("notification: command executed: kind=%s output=%s", c.Kind, strings.TrimSpace(string(out)))
	return nil
}

func (s *CommandSink) wants(k cue.Kind) bool {
	if len(s.config.Kinds) == 0 {
		return true
	}
	for _, name := range s.config.Kinds {
		if name == k.String() {
			return true
		}
	}
	return false
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
