// Package cue provides the completion cue delivered to side-effect sinks.
package cue

import (
	"context"
	"time"
)

// Kind distinguishes the short per-step cue from the session cue.
type Kind int

const (
	KindStep    Kind = iota // A step finished and the next one started
	KindSession             // The last step finished
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindStep:
		return "step"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// Cue is a completion signal for the user.
type Cue struct {
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"` // Session title
	Label string    `json:"label"` // Label of the step that completed
	Index int       `json:"index"` // Index of the step that completed
	Count int       `json:"count"` // Number of steps in the session
	At    time.Time `json:"at"`
}

// Sink delivers cues to one side-effect channel (audio, vibration, desktop
// notification, message bus).
type Sink interface {
	// Name returns the sink name used in logs.
	Name() string
	// Deliver performs the side effect. It must honour ctx cancellation.
	Deliver(ctx context.Context, c Cue) error
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
