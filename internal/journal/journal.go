// Package journal appends loop events to a SQLite file for post-run
// audit. Write-only at runtime: the control plane never reads it back,
// and running without one changes nothing.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Recorder is what the orchestrator writes to.
type Recorder interface {
	Append(kind string, payload any)
}

// Nop discards everything. Used when no journal path is configured.
type Nop struct{}

func (Nop) Append(string, any) {}

// Journal is an append-only SQLite event log.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the journal file and its events table.
func Open(path string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer, WAL so an operator can tail the file while running.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	return &Journal{db: db, log: log}, nil
}

// Append records one event. Failures are logged and swallowed: the
// journal must never stall the loop.
func (j *Journal) Append(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		j.log.Warn("journal marshal failed", "kind", kind, "err", err)
		return
	}
	_, err = j.db.Exec(`INSERT INTO events (ts, kind, payload) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), kind, string(data))
	if err != nil {
		j.log.Warn("journal append failed", "kind", kind, "err", err)
	}
}

// Close flushes and closes the file.
func (j *Journal) Close() error { return j.db.Close() }
