// Package state provides session state management.
package state

// Source tells where the loaded session came from.
type Source int

const (
	SourceNone     Source = iota // Nothing loaded yet
	SourceRoutine                // A stored routine
	SourceDuration               // An ad-hoc single duration
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceRoutine:
		return "routine"
	case SourceDuration:
		return "duration"
	default:
		return "unknown"
	}
}
