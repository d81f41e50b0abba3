// Package journal persists asynchronous work failures to SQLite so they
// survive the process. It is fed from the events hub.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/affinity/internal/events"
	"github.com/mattjoyce/affinity/internal/log"
)

// timeFormat is fixed-width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded failure.
type Entry struct {
	ID      string    `json:"id"`
	Loop    string    `json:"loop"`
	Error   string    `json:"error"`
	EventID int64     `json:"event_id,omitempty"`
	At      time.Time `json:"at"`
}

// Journal is a SQLite-backed failure log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and creates if needed) the journal database at path and
// ensures its table exists. ":memory:" opens a private in-memory journal.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if path != ":memory:" {
		if err := validateSQLiteFilesystem(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every new connection to :memory: is a fresh database.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, logger: log.WithComponent("journal")}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS work_failures (
  id         TEXT PRIMARY KEY,
  loop       TEXT NOT NULL,
  error      TEXT NOT NULL,
  event_id   INTEGER,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS work_failures_created_at_idx ON work_failures(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores e. A missing ID gets a fresh uuid and a zero At gets the
// current time; the stored entry is returned.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	var eventID any
	if e.EventID != 0 {
		eventID = e.EventID
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO work_failures(id, loop, error, event_id, created_at) VALUES(?, ?, ?, ?, ?);`,
		e.ID, e.Loop, e.Error, eventID, e.At.UTC().Format(timeFormat),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record failure %s: %w", e.ID, err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, loop, error, event_id, created_at FROM work_failures ORDER BY created_at DESC, rowid DESC LIMIT ?;`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			eventID sql.NullInt64
			at      string
		)
		if err := rows.Scan(&e.ID, &e.Loop, &e.Error, &eventID, &at); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		e.EventID = eventID.Int64
		if e.At, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", at, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Follow records every work.failed event published on hub until ctx is
// done. Events that cannot be decoded or stored are logged and skipped.
func (j *Journal) Follow(ctx context.Context, hub *events.Hub) {
	ch, cancel := hub.Subscribe(events.TypeWorkFailed)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if _, err := j.recordEvent(ctx, ev); err != nil {
				j.logger.Error("failed to journal work failure", "event_id", ev.ID, "error", err)
			}
		}
	}
}

func (j *Journal) recordEvent(ctx context.Context, ev events.Event) (Entry, error) {
	var data events.FailureData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return Entry{}, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return j.Record(ctx, Entry{
		ID:      data.Ticket,
		Loop:    data.Loop,
		Error:   data.Error,
		EventID: ev.ID,
		At:      ev.At,
	})
}
