// Package preference provides the user settings read by the playback engine.
package preference

import "time"

// DelayOptions lists the recognised pre-start delay lengths in seconds.
var DelayOptions = []int{0, 3, 5, 10}

// Preferences holds user settings. The engine only reads them.
type Preferences struct {
	VibrationEnabled     bool   `yaml:"vibration_enabled" mapstructure:"vibration_enabled"`
	SoundEnabled         bool   `yaml:"sound_enabled" mapstructure:"sound_enabled"`
	PreStartDelaySeconds int    `yaml:"pre_start_delay_seconds" mapstructure:"pre_start_delay_seconds" validate:"oneof=0 3 5 10"`
	Theme                string `yaml:"theme" mapstructure:"theme" validate:"oneof=system light dark"`
}

// Default returns the settings used when nothing has been stored yet.
func Default() Preferences {
	return Preferences{
		VibrationEnabled:     true,
		SoundEnabled:         true,
		PreStartDelaySeconds: 0,
		Theme:                "system",
	}
}

// PreStartDelay returns the pre-start delay as a duration.
func (p Preferences) PreStartDelay() time.Duration {
	return time.Duration(p.PreStartDelaySeconds) * time.Second
}

// Source provides the current preferences.
type Source interface {
	Current() Preferences
}

// Static is a Source that always returns the same value.
type Static Preferences

// Current returns the static preferences.
func (s Static) Current() Preferences {
	return Preferences(s)
}
