package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/routinetimer/internal/domain/routine"
)

func newTestStore(t *testing.T) (*SQLiteStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	s, err := Open(":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func morning() routine.Routine {
	return routine.Routine{
		Title: "Morning",
		Items: []routine.Item{
			{Activity: "Stretch", Amount: 90, Unit: routine.Seconds},
			{Activity: "Run", Amount: 20, Unit: routine.Minutes},
			{Activity: "Cool down", Amount: 0, Unit: routine.Seconds},
		},
	}
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, morning())
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, clock.Now(), saved.CreatedAt)
	assert.Equal(t, clock.Now(), saved.UpdatedAt)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, 21*time.Minute+30*time.Second, got.TotalDuration())
}

func TestSQLiteStore_UpdateReplacesItems(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, morning())
	require.NoError(t, err)
	created := saved.CreatedAt

	clock.Advance(time.Hour)
	update := *saved
	update.Title = "Morning (short)"
	update.Items = []routine.Item{{Activity: "Walk", Amount: 10, Unit: routine.Minutes}}
	updated, err := s.Save(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, created, updated.CreatedAt, "created time is kept")
	assert.Equal(t, created.Add(time.Hour), updated.UpdatedAt)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning (short)", got.Title)
	assert.Equal(t, update.Items, got.Items)
}

func TestSQLiteStore_SaveRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	r := morning()
	r.Title = ""
	_, err := s.Save(context.Background(), r)
	assert.ErrorContains(t, err, "invalid routine")

	r = morning()
	r.Items[0].Amount = -1
	_, err = s.Save(context.Background(), r)
	assert.Error(t, err)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStore_List(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, morning())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	empty, err := s.Save(ctx, routine.Routine{Title: "Placeholder"})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, empty.ID, list[0].ID, "most recently updated first")
	assert.Equal(t, 0, list[0].ItemCount)
	assert.Equal(t, time.Duration(0), list[0].TotalDuration)

	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "Morning", list[1].Title)
	assert.Equal(t, 3, list[1].ItemCount)
	assert.Equal(t, 21*time.Minute+30*time.Second, list[1].TotalDuration)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, morning())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, saved.ID))

	_, err = s.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, saved.ID), ErrNotFound)

	// Reusing the ID starts from a clean item list.
	again := morning()
	again.ID = saved.ID
	again.Items = again.Items[:1]
	_, err = s.Save(ctx, again)
	require.NoError(t, err)
	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routines.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	saved, err := s.Save(ctx, morning())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning", got.Title)
	assert.Len(t, got.Items, 3)
}
