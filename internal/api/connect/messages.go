package connect

import (
	"time"

	"github.com/osa030/routinetimer/internal/app/playback"
	"github.com/osa030/routinetimer/internal/app/session"
	"github.com/osa030/routinetimer/internal/domain/preference"
	"github.com/osa030/routinetimer/internal/domain/routine"
	"github.com/osa030/routinetimer/internal/infra/store"
)

// Empty is the message of procedures without parameters or results.
type Empty struct{}

// Step is one step of the loaded session.
type Step struct {
	Label      string `json:"label"`
	DurationMs int64  `json:"duration_ms"`
}

// Status is the timer status as seen by clients.
type Status struct {
	State             string  `json:"state"`
	Index             int     `json:"index"`
	RemainingMs       int64   `json:"remaining_ms"`
	TotalMs           int64   `json:"total_ms"`
	Progress          float64 `json:"progress"`
	StepCount         int     `json:"step_count"`
	Title             string  `json:"title"`
	Label             string  `json:"label"`
	Source            string  `json:"source"`
	RoutineID         string  `json:"routine_id,omitempty"`
	Shuffled          bool    `json:"shuffled"`
	Steps             []Step  `json:"steps,omitempty"`
	SessionsCompleted int     `json:"sessions_completed"`
}

// StatusResponse is returned by every playback control.
type StatusResponse struct {
	Status Status `json:"status"`
}

// WatchEvent is one message of the WatchStatus stream. The first message has
// type "initial".
type WatchEvent struct {
	Type   string `json:"type"`
	Step   int    `json:"step"`
	Status Status `json:"status"`
}

// EventInitial is the type of the first WatchStatus message.
const EventInitial = "initial"

// PlayRoutineRequest loads a stored routine and starts it.
type PlayRoutineRequest struct {
	RoutineID    string `json:"routine_id"`
	StartIndex   int    `json:"start_index"`
	Shuffle      bool   `json:"shuffle"`
	Count        int    `json:"count"`
	DelaySeconds *int   `json:"delay_seconds,omitempty"`
}

// PlayDurationRequest starts an ad-hoc single countdown.
type PlayDurationRequest struct {
	Label        string `json:"label"`
	Amount       int64  `json:"amount"`
	Unit         string `json:"unit"`
	DelaySeconds *int   `json:"delay_seconds,omitempty"`
}

// IndexRequest addresses one step (Start, Stop, Skip).
type IndexRequest struct {
	Index int `json:"index"`
}

// DelayedStartRequest starts a step after a delay.
type DelayedStartRequest struct {
	DelaySeconds int `json:"delay_seconds"`
	Index        int `json:"index"`
}

// PauseRequest pauses the timer. RemainingMs, when set, is the value the
// client displayed when the user paused.
type PauseRequest struct {
	RemainingMs *int64 `json:"remaining_ms,omitempty"`
}

// Item is one activity of a routine.
type Item struct {
	Activity string `json:"activity"`
	Amount   int64  `json:"amount"`
	Unit     string `json:"unit"`
}

// Routine is a stored routine.
type Routine struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// RoutineSummary is a routine listing entry.
type RoutineSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ItemCount int       `json:"item_count"`
	TotalMs   int64     `json:"total_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoutineRequest addresses a stored routine (GetRoutine, DeleteRoutine).
type RoutineRequest struct {
	ID string `json:"id"`
}

// SaveRoutineRequest creates or replaces a routine.
type SaveRoutineRequest struct {
	Routine Routine `json:"routine"`
}

// RoutineResponse carries one routine.
type RoutineResponse struct {
	Routine Routine `json:"routine"`
}

// ListRoutinesResponse lists stored routines, most recently updated first.
type ListRoutinesResponse struct {
	Routines []RoutineSummary `json:"routines"`
}

// Preferences are the user settings.
type Preferences struct {
	VibrationEnabled     bool   `json:"vibration_enabled"`
	SoundEnabled         bool   `json:"sound_enabled"`
	PreStartDelaySeconds int    `json:"pre_start_delay_seconds"`
	Theme                string `json:"theme"`
}

// UpdatePreferencesRequest changes the named preferences. Keys are the
// preference file keys; scalar values are converted loosely.
type UpdatePreferencesRequest struct {
	Changes map[string]any `json:"changes"`
}

// PreferencesResponse carries the current preferences.
type PreferencesResponse struct {
	Preferences Preferences `json:"preferences"`
}

func toStatus(s session.Status) Status {
	steps := make([]Step, len(s.Loaded.Steps))
	for i, st := range s.Loaded.Steps {
		steps[i] = Step{Label: st.Label, DurationMs: st.Millis()}
	}
	return Status{
		State:             s.State.String(),
		Index:             s.Index,
		RemainingMs:       s.Remaining.Milliseconds(),
		TotalMs:           s.Total.Milliseconds(),
		Progress:          s.Progress(),
		StepCount:         s.StepCount,
		Title:             s.Title,
		Label:             s.Label,
		Source:            s.Loaded.Source.String(),
		RoutineID:         s.Loaded.RoutineID,
		Shuffled:          s.Loaded.Shuffled,
		Steps:             steps,
		SessionsCompleted: s.SessionsCompleted,
	}
}

// toSnapshotStatus overlays a fresher timer snapshot on a status.
func toSnapshotStatus(base session.Status, snap playback.Snapshot) Status {
	base.Snapshot = snap
	return toStatus(base)
}

func toRoutine(r *routine.Routine) Routine {
	items := make([]Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = Item{Activity: it.Activity, Amount: it.Amount, Unit: it.Unit.String()}
	}
	return Routine{
		ID:        r.ID,
		Title:     r.Title,
		Items:     items,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromRoutine(m Routine) (routine.Routine, error) {
	items := make([]routine.Item, len(m.Items))
	for i, it := range m.Items {
		unit := routine.Seconds
		if it.Unit != "" {
			u, err := routine.ParseUnit(it.Unit)
			if err != nil {
				return routine.Routine{}, err
			}
			unit = u
		}
		items[i] = routine.Item{Activity: it.Activity, Amount: it.Amount, Unit: unit}
	}
	return routine.Routine{ID: m.ID, Title: m.Title, Items: items}, nil
}

func toSummary(s store.Summary) RoutineSummary {
	return RoutineSummary{
		ID:        s.ID,
		Title:     s.Title,
		ItemCount: s.ItemCount,
		TotalMs:   s.TotalDuration.Milliseconds(),
		UpdatedAt: s.UpdatedAt,
	}
}

func toPreferences(p preference.Preferences) Preferences {
	return Preferences{
		VibrationEnabled:     p.VibrationEnabled,
		SoundEnabled:         p.SoundEnabled,
		PreStartDelaySeconds: p.PreStartDelaySeconds,
		Theme:                p.Theme,
	}
}

// Remaining returns the remaining time of a status.
func (s Status) Remaining() time.Duration {
	return time.Duration(s.RemainingMs) * time.Millisecond
}
