package playback

import "time"

// EventType represents a timer event type.
type EventType int

const (
	EventSessionLoaded   EventType = iota // A new session replaced the previous one
	EventStateChanged                     // State, index or remaining time changed by an operation
	EventStepStarted                      // A step began counting down from its full duration
	EventTick                             // Remaining time crossed a whole-second boundary
	EventStepComplete                     // A step that is not the last one reached zero
	EventSessionComplete                  // The last step reached zero
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventSessionLoaded:
		return "session_loaded"
	case EventStateChanged:
		return "state_changed"
	case EventStepStarted:
		return "step_started"
	case EventTick:
		return "tick"
	case EventStepComplete:
		return "step_complete"
	case EventSessionComplete:
		return "session_complete"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent read of the timer.
type Snapshot struct {
	State     State
	Index     int           // Current step index
	Remaining time.Duration // Time left in the current step (or delay)
	Total     time.Duration // Full length of the current step (or delay)
	StepCount int           // Number of steps in the session, 0 before any load
	Title     string        // Session title
	Label     string        // Label of the step at Index
}

// Progress returns the elapsed fraction of the current step in [0, 1].
// A zero-length step counts as fully elapsed.
func (s Snapshot) Progress() float64 {
	if s.Total <= 0 {
		return 1
	}
	return 1 - float64(s.Remaining)/float64(s.Total)
}

// Event represents a timer event.
type Event struct {
	Type     EventType
	Snapshot Snapshot // Timer state right after the event
	Step     int      // Index the event refers to (the completed step for completions)
}
