package routine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestToMillis(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		unit   Unit
		want   int64
	}{
		{name: "zero seconds", amount: 0, unit: Seconds, want: 0},
		{name: "30 seconds", amount: 30, unit: Seconds, want: 30_000},
		{name: "1 minute", amount: 1, unit: Minutes, want: 60_000},
		{name: "90 minutes", amount: 90, unit: Minutes, want: 5_400_000},
		{name: "2 hours", amount: 2, unit: Hours, want: 7_200_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMillis(tt.amount, tt.unit))
		})
	}
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		input   string
		want    Unit
		wantErr bool
	}{
		{input: "sec", want: Seconds},
		{input: "Seconds", want: Seconds},
		{input: "m", want: Minutes},
		{input: " min ", want: Minutes},
		{input: "hours", want: Hours},
		{input: "h", want: Hours},
		{input: "days", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseUnit(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownUnit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoutine_TotalDuration(t *testing.T) {
	r := &Routine{
		Title: "Morning",
		Items: []Item{
			{Activity: "stretch", Amount: 30, Unit: Seconds},
			{Activity: "rest", Amount: 1, Unit: Minutes},
		},
	}

	assert.Equal(t, 90*time.Second, r.TotalDuration())
}

func TestRoutine_Validate(t *testing.T) {
	tests := []struct {
		name    string
		routine Routine
		wantErr bool
	}{
		{
			name:    "valid",
			routine: Routine{Title: "Workout", Items: []Item{{Activity: "plank", Amount: 45, Unit: Seconds}}},
		},
		{
			name:    "zero amount is allowed",
			routine: Routine{Title: "Workout", Items: []Item{{Activity: "marker", Amount: 0, Unit: Seconds}}},
		},
		{
			name:    "missing title",
			routine: Routine{Items: []Item{{Activity: "plank", Amount: 45}}},
			wantErr: true,
		},
		{
			name:    "negative amount",
			routine: Routine{Title: "Workout", Items: []Item{{Activity: "plank", Amount: -1}}},
			wantErr: true,
		},
		{
			name:    "unit out of range",
			routine: Routine{Title: "Workout", Items: []Item{{Activity: "plank", Amount: 1, Unit: Unit(3)}}},
			wantErr: true,
		},
		{
			name:    "missing activity",
			routine: Routine{Title: "Workout", Items: []Item{{Amount: 1}}},
			wantErr: true,
		},
		{
			name:    "amount overflows duration",
			routine: Routine{Title: "Workout", Items: []Item{{Activity: "plank", Amount: 6_000_000, Unit: Hours}}},
			wantErr: true,
		},
		{
			name: "total overflows duration",
			routine: Routine{Title: "Workout", Items: []Item{
				{Activity: "a", Amount: MaxAmount(Hours), Unit: Hours},
				{Activity: "b", Amount: MaxAmount(Hours), Unit: Hours},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.routine.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckAmount(t *testing.T) {
	assert.Equal(t, int64(9_223_372_036), MaxAmount(Seconds))
	assert.Equal(t, int64(153_722_867), MaxAmount(Minutes))
	assert.Equal(t, int64(2_562_047), MaxAmount(Hours))

	for _, unit := range []Unit{Seconds, Minutes, Hours} {
		require.NoError(t, CheckAmount(MaxAmount(unit), unit), unit.String())
		item := Item{Activity: "x", Amount: MaxAmount(unit), Unit: unit}
		assert.Positive(t, item.Duration(), unit.String())

		err := CheckAmount(MaxAmount(unit)+1, unit)
		assert.ErrorIs(t, err, ErrAmountTooLarge, unit.String())
	}

	assert.ErrorIs(t, CheckAmount(1, Unit(9)), ErrUnknownUnit)

	r := Routine{Title: "Workout", Items: []Item{{Activity: "plank", Amount: 6_000_000, Unit: Hours}}}
	assert.ErrorIs(t, r.Validate(), ErrAmountTooLarge)
}

func TestRoutine_YAML(t *testing.T) {
	var r Routine
	err := yaml.Unmarshal([]byte(`
title: Morning
items:
  - activity: Stretch
    amount: 90
    unit: sec
  - activity: Run
    amount: 20
    unit: minutes
  - activity: Rest
    amount: 1
    unit: 2
`), &r)
	require.NoError(t, err)

	assert.Equal(t, "Morning", r.Title)
	require.Len(t, r.Items, 3)
	assert.Equal(t, Seconds, r.Items[0].Unit)
	assert.Equal(t, Minutes, r.Items[1].Unit)
	assert.Equal(t, Hours, r.Items[2].Unit)

	out, err := yaml.Marshal(r.Items[1])
	require.NoError(t, err)
	assert.Contains(t, string(out), "unit: minutes")

	err = yaml.Unmarshal([]byte("title: x\nitems:\n  - activity: a\n    amount: 1\n    unit: fortnight\n"), &r)
	assert.ErrorIs(t, err, ErrUnknownUnit)
	err = yaml.Unmarshal([]byte("title: x\nitems:\n  - activity: a\n    amount: 1\n    unit: 7\n"), &r)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}
