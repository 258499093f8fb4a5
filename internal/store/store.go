// Package store persists the event cache snapshot in SQLite. The snapshot
// is a single row replaced transactionally, so readers never observe a
// half-written sync result.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jasonhett/digitial-calendar/internal/model"
)

// MaxWindowDays caps how far Extend may widen the sync window.
const MaxWindowDays = 365

// Store owns the snapshot database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the snapshot database and initializes the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshot (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		updated_at TEXT NOT NULL,
		time_min   TEXT NOT NULL,
		time_max   TEXT NOT NULL,
		events     TEXT NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the last persisted snapshot, or the empty snapshot (zero
// events, nil range) when no sync has ever completed.
func (s *Store) Load(ctx context.Context) (model.EventCacheSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT updated_at, time_min, time_max, events FROM snapshot WHERE id = 1`)

	var updatedAt, timeMin, timeMax, eventsJSON string
	if err := row.Scan(&updatedAt, &timeMin, &timeMax, &eventsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EmptySnapshot(), nil
		}
		return model.EventCacheSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap := model.EmptySnapshot()
	if err := json.Unmarshal([]byte(eventsJSON), &snap.Events); err != nil {
		return model.EventCacheSnapshot{}, fmt.Errorf("decode snapshot events: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		snap.UpdatedAt = &t
	}
	min, minErr := time.Parse(time.RFC3339Nano, timeMin)
	max, maxErr := time.Parse(time.RFC3339Nano, timeMax)
	if minErr == nil && maxErr == nil {
		snap.Range = &model.SyncRange{TimeMin: min, TimeMax: max}
	}
	return snap, nil
}

// Save replaces the snapshot whole. The single upsert statement is atomic;
// on failure the previous snapshot remains authoritative.
func (s *Store) Save(ctx context.Context, snap model.EventCacheSnapshot) error {
	if snap.UpdatedAt == nil || snap.Range == nil {
		return errors.New("snapshot missing updatedAt or range")
	}
	events := snap.Events
	if events == nil {
		events = []model.CalendarEvent{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode snapshot events: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO snapshot (id, updated_at, time_min, time_max, events)
	VALUES (1, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		updated_at = excluded.updated_at,
		time_min   = excluded.time_min,
		time_max   = excluded.time_max,
		events     = excluded.events`,
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		snap.Range.TimeMin.UTC().Format(time.RFC3339Nano),
		snap.Range.TimeMax.UTC().Format(time.RFC3339Nano),
		string(eventsJSON),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// RequiredWindowDays returns the minimum whole-day window starting at now
// that covers target. Zero or negative spans round up to at least one day.
func RequiredWindowDays(now, target time.Time) int {
	span := target.Sub(now)
	days := int(span / (24 * time.Hour))
	if span%(24*time.Hour) > 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// ClampWindowDays keeps a window between the current width and the maximum.
func ClampWindowDays(current, required int) int {
	next := required
	if next < current {
		next = current
	}
	if next > MaxWindowDays {
		next = MaxWindowDays
	}
	return next
}
