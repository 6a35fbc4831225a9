// Package preferences stores user preferences in a YAML file.
package preferences

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/routinetimer/internal/domain/preference"
)

// ErrInvalid marks preference values that were rejected.
var ErrInvalid = errors.New("invalid preferences")

// Store holds the current preferences and persists changes.
// It implements preference.Source.
type Store struct {
	path string

	mu        sync.RWMutex
	current   preference.Preferences
	listeners []func(preference.Preferences)
}

// Open loads the preferences file at path. A missing file yields defaults.
func Open(path string) (*Store, error) {
	s := &Store{path: path, current: preference.Default()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Decode parses YAML preferences. Keys that are absent keep their default
// value and scalars are converted loosely ("true", "5").
func Decode(data []byte) (preference.Preferences, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return preference.Preferences{}, errors.Wrap(err, "failed to parse preferences")
	}
	return apply(preference.Default(), raw)
}

// apply overlays raw onto base and validates the result.
func apply(base preference.Preferences, raw map[string]any) (preference.Preferences, error) {
	p := base
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &p,
	})
	if err != nil {
		return base, errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return base, errors.Mark(errors.Wrap(err, "failed to decode preferences"), ErrInvalid)
	}
	if len(md.Unused) > 0 {
		return base, errors.Mark(errors.Newf("unknown preference keys: %v", md.Unused), ErrInvalid)
	}
	if err := Validate(p); err != nil {
		return base, err
	}
	return p, nil
}

// Validate checks that p holds recognised values.
func Validate(p preference.Preferences) error {
	if err := validator.New().Struct(p); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid preferences"), ErrInvalid)
	}
	return nil
}

// Path returns the preferences file path.
func (s *Store) Path() string {
	return s.path
}

// Current implements preference.Source.
func (s *Store) Current() preference.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to be called after every change.
func (s *Store) OnChange(fn func(preference.Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the file. On error the current value is kept.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		zlog.Debug().Msgf("preferences: file not found, using defaults: path=%s", s.path)
		s.swap(preference.Default())
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to read preferences")
	}
	p, err := Decode(data)
	if err != nil {
		return err
	}
	s.swap(p)
	return nil
}

// Update validates p, writes it to the file and makes it current.
func (s *Store) Update(p preference.Preferences) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.write(p); err != nil {
		return err
	}
	s.swap(p)
	zlog.Info().Msgf("preferences: updated: %+v", p)
	return nil
}

// Patch applies the given key/value changes to the current preferences,
// using the YAML key names, and stores the result.
func (s *Store) Patch(changes map[string]any) (preference.Preferences, error) {
	p, err := apply(s.Current(), changes)
	if err != nil {
		return s.Current(), err
	}
	if err := s.Update(p); err != nil {
		return s.Current(), err
	}
	return p, nil
}

func (s *Store) swap(p preference.Preferences) {
	s.mu.Lock()
	changed := s.current != p
	s.current = p
	listeners := append(([]func(preference.Preferences))(nil), s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(p)
		}
	}
}

// write replaces the file atomically so the watcher never reads a partial file.
func (s *Store) write(p preference.Preferences) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create preferences directory")
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write preferences")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "failed to replace preferences")
	}
	return nil
}
