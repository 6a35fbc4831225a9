// Package routine provides the Routine domain entity and its duration model.
package routine

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Unit is the unit an item's amount is expressed in.
type Unit int

const (
	Seconds Unit = iota // amount is seconds
	Minutes             // amount is minutes
	Hours               // amount is hours
)

// Errors
var (
	ErrUnknownUnit    = errors.New("unknown unit")
	ErrAmountTooLarge = errors.New("amount too large")
)

// String returns the string representation of the unit.
func (u Unit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	default:
		return "unknown"
	}
}

// ParseUnit parses a unit name such as "sec", "min" or "hours".
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "sec", "secs", "second", "seconds":
		return Seconds, nil
	case "m", "min", "mins", "minute", "minutes":
		return Minutes, nil
	case "h", "hr", "hrs", "hour", "hours":
		return Hours, nil
	default:
		return Seconds, errors.Wrapf(ErrUnknownUnit, "%q", s)
	}
}

// MarshalYAML encodes the unit by name.
func (u Unit) MarshalYAML() (any, error) {
	return u.String(), nil
}

// UnmarshalYAML accepts a unit name or its ordinal.
func (u *Unit) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.Atoi(node.Value); err == nil {
		if n < int(Seconds) || n > int(Hours) {
			return errors.Wrapf(ErrUnknownUnit, "%d", n)
		}
		*u = Unit(n)
		return nil
	}
	parsed, err := ParseUnit(node.Value)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ToMillis converts an (amount, unit) pair into milliseconds.
// The result is amount * 1000 * 60^unit.
func ToMillis(amount int64, unit Unit) int64 {
	ms := amount * 1000
	for i := Unit(0); i < unit; i++ {
		ms *= 60
	}
	return ms
}

// MaxAmount returns the largest amount of unit whose duration still fits in a
// time.Duration. unit must be Seconds, Minutes or Hours.
func MaxAmount(unit Unit) int64 {
	return math.MaxInt64 / int64(time.Millisecond) / ToMillis(1, unit)
}

// CheckAmount rejects unknown units and amounts whose duration would overflow.
func CheckAmount(amount int64, unit Unit) error {
	if unit < Seconds || unit > Hours {
		return errors.Wrapf(ErrUnknownUnit, "%d", int(unit))
	}
	if limit := MaxAmount(unit); amount > limit {
		return errors.Wrapf(ErrAmountTooLarge, "%d %s (max %d)", amount, unit, limit)
	}
	return nil
}

// Item is one timed activity of a routine as stored.
type Item struct {
	Activity string `yaml:"activity" validate:"required"`
	Amount   int64  `yaml:"amount" validate:"gte=0"`
	Unit     Unit   `yaml:"unit" validate:"gte=0,lte=2"`
}

// Millis returns the item duration in milliseconds.
func (i Item) Millis() int64 {
	return ToMillis(i.Amount, i.Unit)
}

// Duration returns the item duration.
func (i Item) Duration() time.Duration {
	return time.Duration(i.Millis()) * time.Millisecond
}

// Routine is a user-defined, ordered collection of timed activities.
type Routine struct {
	ID        string    `yaml:"id,omitempty"` // UUID assigned by the store
	Title     string    `yaml:"title" validate:"required"`
	Items     []Item    `yaml:"items" validate:"dive"`
	CreatedAt time.Time `yaml:"-"` // Set by the store
	UpdatedAt time.Time `yaml:"-"` // Set by the store
}

// TotalDuration returns the sum of all item durations.
func (r *Routine) TotalDuration() time.Duration {
	var total time.Duration
	for _, it := range r.Items {
		total += it.Duration()
	}
	return total
}

// Validate checks the routine fields. Item amounts and the total duration
// must fit in a time.Duration.
func (r *Routine) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return errors.Wrap(err, "invalid routine")
	}
	var total time.Duration
	for i, it := range r.Items {
		if err := CheckAmount(it.Amount, it.Unit); err != nil {
			return errors.Wrapf(err, "invalid routine: item %d (%s)", i, it.Activity)
		}
		d := it.Duration()
		if total > math.MaxInt64-d {
			return errors.Wrap(ErrAmountTooLarge, "invalid routine: total duration overflows")
		}
		total += d
	}
	return nil
}
