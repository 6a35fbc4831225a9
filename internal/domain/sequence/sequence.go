// Package sequence provides the immutable step list played by one playback session.
package sequence

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/routinetimer/internal/domain/routine"
)

// Errors
var (
	ErrEmptySession      = errors.New("session has no steps")
	ErrInvalidStartIndex = errors.New("start index out of range")
	ErrNegativeDuration  = errors.New("step duration is negative")
	ErrTooLong           = errors.New("session duration overflows")
)

// Step is one timed activity within a playback session.
type Step struct {
	Label    string        // Activity name
	Duration time.Duration // Step length
}

// Millis returns the step duration in milliseconds.
func (s Step) Millis() int64 {
	return s.Duration.Milliseconds()
}

// Session is the ordered list of steps being played, plus the routine title.
// A Session never changes after construction.
type Session struct {
	title string
	steps []Step
	start int
}

// New creates a session. At least one step is required and start must be a
// valid index.
func New(title string, steps []Step, start int) (*Session, error) {
	if len(steps) == 0 {
		return nil, ErrEmptySession
	}
	if start < 0 || start >= len(steps) {
		return nil, errors.Wrapf(ErrInvalidStartIndex, "index %d, length %d", start, len(steps))
	}
	var total time.Duration
	for i, s := range steps {
		if s.Duration < 0 {
			return nil, errors.Wrapf(ErrNegativeDuration, "step %d (%s)", i, s.Label)
		}
		if total > math.MaxInt64-s.Duration {
			return nil, errors.Wrapf(ErrTooLong, "at step %d (%s)", i, s.Label)
		}
		total += s.Duration
	}

	copied := make([]Step, len(steps))
	copy(copied, steps)

	return &Session{
		title: title,
		steps: copied,
		start: start,
	}, nil
}

// FromRoutine builds a session from all items of a routine.
func FromRoutine(r *routine.Routine, start int) (*Session, error) {
	steps, err := stepsOf(r.Items)
	if err != nil {
		return nil, err
	}
	return New(r.Title, steps, start)
}

// Shuffled builds a session from a random subset of count items of a routine.
// All items are used when count is not positive or exceeds the item count.
func Shuffled(r *routine.Routine, count int, rng *rand.Rand) (*Session, error) {
	steps, err := stepsOf(r.Items)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(steps), func(i, j int) {
		steps[i], steps[j] = steps[j], steps[i]
	})
	if count > 0 && count < len(steps) {
		steps = steps[:count]
	}
	return New(r.Title, steps, 0)
}

// Single builds an ad-hoc one-step session.
func Single(label string, amount int64, unit routine.Unit) (*Session, error) {
	if amount < 0 {
		return nil, errors.Wrapf(ErrNegativeDuration, "amount %d", amount)
	}
	if err := routine.CheckAmount(amount, unit); err != nil {
		return nil, err
	}
	if label == "" {
		label = fmt.Sprintf("%d %s", amount, unit)
	}
	step := Step{
		Label:    label,
		Duration: time.Duration(routine.ToMillis(amount, unit)) * time.Millisecond,
	}
	return New(label, []Step{step}, 0)
}

func stepsOf(items []routine.Item) ([]Step, error) {
	steps := make([]Step, len(items))
	for i, it := range items {
		if err := routine.CheckAmount(it.Amount, it.Unit); err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, it.Activity)
		}
		steps[i] = Step{Label: it.Activity, Duration: it.Duration()}
	}
	return steps, nil
}

// Title returns the display title.
func (s *Session) Title() string {
	return s.title
}

// Len returns the number of steps.
func (s *Session) Len() int {
	return len(s.steps)
}

// StartIndex returns the index playback starts from.
func (s *Session) StartIndex() int {
	return s.start
}

// Valid reports whether i is a valid step index.
func (s *Session) Valid(i int) bool {
	return i >= 0 && i < len(s.steps)
}

// Step returns the step at index i. It panics if i is out of range.
func (s *Session) Step(i int) Step {
	if !s.Valid(i) {
		panic(fmt.Sprintf("sequence: step index %d out of range [0,%d)", i, len(s.steps)))
	}
	return s.steps[i]
}

// IsLast reports whether i is the index of the final step.
func (s *Session) IsLast(i int) bool {
	return i == len(s.steps)-1
}

// Steps returns a copy of all steps.
func (s *Session) Steps() []Step {
	result := make([]Step, len(s.steps))
	copy(result, s.steps)
	return result
}

// TotalDuration returns the sum of all step durations.
func (s *Session) TotalDuration() time.Duration {
	var total time.Duration
	for _, st := range s.steps {
		total += st.Duration
	}
	return total
}
