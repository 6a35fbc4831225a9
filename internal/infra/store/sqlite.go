// Package store persists routines in SQLite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/routinetimer/internal/domain/routine"
)

// ErrNotFound is returned when no routine has the requested ID.
var ErrNotFound = errors.New("routine not found")

// Summary is a routine listing entry.
type Summary struct {
	ID            string
	Title         string
	ItemCount     int
	TotalDuration time.Duration
	UpdatedAt     time.Time
}

// SQLiteStore stores routines and their items.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens (and creates if needed) the database at path.
// Use ":memory:" for an in-memory database.
func Open(path string, clock clockwork.Clock) (*SQLiteStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// Every connection to ":memory:" is a separate database, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, clock: clock}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	zlog.Debug().Msgf("store: opened: path=%s", path)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS routines (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS routine_items (
		routine_id TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		activity TEXT NOT NULL,
		amount INTEGER NOT NULL,
		unit INTEGER NOT NULL,
		PRIMARY KEY (routine_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_routines_updated_at ON routines(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save validates and stores r, replacing its items. A routine without an ID
// gets a new one. The stored routine, with ID and timestamps, is returned.
func (s *SQLiteStore) Save(ctx context.Context, r routine.Routine) (*routine.Routine, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	created := now
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM routines WHERE id = ?", r.ID).Scan(&unixMillis{&created})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to query routine")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO routines (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		r.ID, r.Title, created.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert routine")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM routine_items WHERE routine_id = ?", r.ID); err != nil {
		return nil, errors.Wrap(err, "failed to clear items")
	}
	for i, it := range r.Items {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO routine_items (routine_id, position, activity, amount, unit) VALUES (?, ?, ?, ?, ?)",
			r.ID, i, it.Activity, it.Amount, int(it.Unit),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to insert item %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit routine")
	}

	r.CreatedAt = created
	r.UpdatedAt = now
	r.Items = append([]routine.Item(nil), r.Items...)
	zlog.Debug().Msgf("store: routine saved: id=%s title=%s items=%d", r.ID, r.Title, len(r.Items))
	return &r, nil
}

// Get returns the routine with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*routine.Routine, error) {
	r := routine.Routine{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT title, created_at, updated_at FROM routines WHERE id = ?", id,
	).Scan(&r.Title, &unixMillis{&r.CreatedAt}, &unixMillis{&r.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query routine")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT activity, amount, unit FROM routine_items WHERE routine_id = ? ORDER BY position", id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query items")
	}
	defer rows.Close()

	for rows.Next() {
		var it routine.Item
		var unit int
		if err := rows.Scan(&it.Activity, &it.Amount, &unit); err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		it.Unit = routine.Unit(unit)
		r.Items = append(r.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate items")
	}
	return &r, nil
}

// List returns summaries of all routines, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.updated_at, i.amount, i.unit
		FROM routines r LEFT JOIN routine_items i ON i.routine_id = r.id
		ORDER BY r.updated_at DESC, r.id, i.position`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query routines")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			id, title string
			updated   time.Time
			amount    sql.NullInt64
			unit      sql.NullInt64
		)
		if err := rows.Scan(&id, &title, &unixMillis{&updated}, &amount, &unit); err != nil {
			return nil, errors.Wrap(err, "failed to scan routine")
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, Summary{ID: id, Title: title, UpdatedAt: updated})
		}
		if amount.Valid {
			sum := &out[len(out)-1]
			sum.ItemCount++
			sum.TotalDuration += routine.Item{Amount: amount.Int64, Unit: routine.Unit(unit.Int64)}.Duration()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate routines")
	}
	return out, nil
}

// Delete removes the routine with the given ID and its items.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM routine_items WHERE routine_id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete items")
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM routines WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete routine")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit delete")
	}
	zlog.Debug().Msgf("store: routine deleted: id=%s", id)
	return nil
}

// unixMillis scans an INTEGER millisecond timestamp into a time.Time.
type unixMillis struct {
	t *time.Time
}

func (u *unixMillis) Scan(src any) error {
	ms, ok := src.(int64)
	if !ok {
		return errors.Newf("unexpected timestamp type %T", src)
	}
	*u.t = time.UnixMilli(ms).UTC()
	return nil
}
