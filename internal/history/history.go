// Package history keeps a SQLite log of processed presses.
package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/sweeney/button-monitor/internal/monitor"
)

// Limits applied by Recent.
const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// Entry is one recorded press.
type Entry struct {
	ID         string        `json:"id"`
	PressCount uint32        `json:"press_count"`
	LEDOn      bool          `json:"led_on"`
	Time       time.Time     `json:"time"`
	Interval   time.Duration `json:"interval_ns"`
	WriteError string        `json:"write_error,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID for an event at t. IDs are strictly increasing for
// events within the same millisecond.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NewEntry converts a monitor event into an entry with a fresh ID.
func NewEntry(ev monitor.Event) Entry {
	e := Entry{
		ID:         NewID(ev.Time),
		PressCount: ev.PressCount,
		LEDOn:      ev.LEDOn,
		Time:       ev.Time,
		Interval:   ev.Interval,
	}
	if ev.WriteErr != nil {
		e.WriteError = ev.WriteErr.Error()
	}
	return e
}

// Store is the SQLite-backed press log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs the schema
// migration. ":memory:" gives a private in-memory log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS presses (
			id          TEXT PRIMARY KEY,
			press_count INTEGER NOT NULL,
			led_on      INTEGER NOT NULL,
			time        TEXT NOT NULL,
			interval_ns INTEGER NOT NULL,
			write_error TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e to the log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO presses (id, press_count, led_on, time, interval_ns, write_error) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, int64(e.PressCount), e.LEDOn, e.Time.UTC().Format(time.RFC3339Nano), int64(e.Interval), e.WriteError,
	)
	if err != nil {
		return fmt.Errorf("record press %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// means DefaultLimit; limits above MaxLimit are clamped.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, press_count, led_on, time, interval_ns, write_error FROM presses ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query presses: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			count    int64
			ts       string
			interval int64
		)
		if err := rows.Scan(&e.ID, &count, &e.LEDOn, &ts, &interval, &e.WriteError); err != nil {
			return nil, fmt.Errorf("scan press: %w", err)
		}
		e.PressCount = uint32(count)
		e.Interval = time.Duration(interval)
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse press time %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded presses.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM presses").Scan(&n); err != nil {
		return 0, fmt.Errorf("count presses: %w", err)
	}
	return n, nil
}

// ClampLimit applies the Recent limit rules.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
