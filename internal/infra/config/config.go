// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Timer       TimerConfig       `yaml:"timer"`
	Storage     StorageConfig     `yaml:"storage"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Notifier    NotifierConfig    `yaml:"notifier"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Empty disables control authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// TimerConfig represents countdown timing configuration.
type TimerConfig struct {
	TickResolutionMs  int `yaml:"tick_resolution_ms" default:"10" validate:"gte=1,lte=1000"`
	DelayResolutionMs int `yaml:"delay_resolution_ms" default:"1000" validate:"gte=1,lte=10000"`
	SendTimeoutMs     int `yaml:"send_timeout_ms" default:"500" validate:"gte=1,lte=30000"`
	EventBuffer       int `yaml:"event_buffer" default:"256" validate:"gte=1"`
}

// StorageConfig represents routine storage configuration.
type StorageConfig struct {
	Path string `yaml:"path" default:"routinetimer.db" validate:"required"`
}

// PreferencesConfig represents the preferences file configuration.
type PreferencesConfig struct {
	Path       string `yaml:"path" default:"preferences.yaml" validate:"required"`
	Watch      bool   `yaml:"watch"`
	DebounceMs int    `yaml:"debounce_ms" default:"200" validate:"gte=0,lte=10000"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// NotifierConfig represents completion cue configuration.
type NotifierConfig struct {
	SinkTimeoutMs int          `yaml:"sink_timeout_ms" default:"3000" validate:"gte=1,lte=60000"`
	Sinks         []SinkConfig `yaml:"sinks" validate:"dive"`
}

// SinkConfig represents a single cue sink configuration.
type SinkConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Gate     string         `yaml:"gate" default:"none" validate:"oneof=none sound vibration"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data, then applies environment
// overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ROUTINETIMER_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("ROUTINETIMER_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		for i := range c.Notifier.Sinks {
			if c.Notifier.Sinks[i].Type == "nats" {
				if c.Notifier.Sinks[i].Settings == nil {
					c.Notifier.Sinks[i].Settings = make(map[string]any)
				}
				c.Notifier.Sinks[i].Settings["url"] = v
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// TickResolution returns the running tick interval.
func (t TimerConfig) TickResolution() time.Duration {
	return time.Duration(t.TickResolutionMs) * time.Millisecond
}

// DelayResolution returns the pre-start delay tick interval.
func (t TimerConfig) DelayResolution() time.Duration {
	return time.Duration(t.DelayResolutionMs) * time.Millisecond
}

// SendTimeout returns how long a slow event subscriber may block.
func (t TimerConfig) SendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutMs) * time.Millisecond
}

// Debounce returns the preferences reload debounce interval.
func (p PreferencesConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

// SinkTimeout returns the per-cue delivery timeout of a sink.
func (n NotifierConfig) SinkTimeout() time.Duration {
	return time.Duration(n.SinkTimeoutMs) * time.Millisecond
}
