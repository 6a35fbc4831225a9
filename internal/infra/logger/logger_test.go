package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew_FileOutputIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: "/var/log/timer.log", Level: "info"}, &buf)

	l.Debug().Msg("hidden")
	l.Info().Msg("playback: step started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "playback: step started", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.NotContains(t, line, "caller")
}

func TestNew_ConsoleOutputIsText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: "stdout", Level: "debug"}, &buf)

	l.Debug().Msg("ticker: stream started")

	assert.Contains(t, buf.String(), "ticker: stream started")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestInit_File(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "server.log")
	closer, err := Init(Config{Output: path, Level: "warn"})
	require.NoError(t, err)

	zlog.Info().Msg("dropped")
	zlog.Warn().Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
