// Package playback provides the routine countdown state machine.
package playback

// State represents the timer state.
type State int

const (
	StateStopped State = iota // At rest, progress reset to the current step's full duration
	StateDelayed              // Pre-start grace period before the first step runs
	StateRunning              // Counting down
	StatePaused               // Countdown suspended, remaining time retained
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateDelayed:
		return "delayed"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ParseState parses a state name produced by String.
func ParseState(s string) (State, bool) {
	switch s {
	case "stopped":
		return StateStopped, true
	case "delayed":
		return StateDelayed, true
	case "running":
		return StateRunning, true
	case "paused":
		return StatePaused, true
	default:
		return StateStopped, false
	}
}
