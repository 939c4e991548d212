// Package ledger records upload attempts and outcomes in a local SQLite
// database so `vodup history` can answer what was uploaded, when, and how
// each attempt ended.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// Upload state constants for the uploads.state column.
const (
	StateStarted   = "started"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Record is one row of upload history.
type Record struct {
	ID         string
	VideoID    string
	Title      string
	Size       int64
	State      string
	SessionURI string
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time // zero until terminal
}

// Ledger wraps the history database. Single-writer: the connection pool is
// capped at one connection, which also sidesteps SQLite write contention.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Begin inserts a started row for a new upload attempt and returns its ID.
func (l *Ledger) Begin(ctx context.Context, videoID, title string, size int64, sessionURI string) (string, error) {
	id := uuid.NewString()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO uploads (id, video_id, title, size, state, session_uri, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, videoID, title, size, StateStarted, sessionURI, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("ledger: inserting upload row: %w", err)
	}

	return id, nil
}

// Complete marks an upload as succeeded.
func (l *Ledger) Complete(ctx context.Context, id string) error {
	return l.finish(ctx, id, StateSucceeded, "")
}

// Fail marks an upload as failed with the given reason.
func (l *Ledger) Fail(ctx context.Context, id, reason string) error {
	return l.finish(ctx, id, StateFailed, reason)
}

func (l *Ledger) finish(ctx context.Context, id, state, reason string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE uploads SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		state, reason, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("ledger: updating upload %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("ledger: no upload row with id %s", id)
	}

	return nil
}

// List returns the most recent upload records, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, video_id, title, size, state, session_uri, error, created_at, finished_at
		 FROM uploads ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying uploads: %w", err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var rec Record
		var finished sql.NullTime

		if err := rows.Scan(
			&rec.ID, &rec.VideoID, &rec.Title, &rec.Size, &rec.State,
			&rec.SessionURI, &rec.Error, &rec.CreatedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("ledger: scanning upload row: %w", err)
		}

		if finished.Valid {
			rec.FinishedAt = finished.Time
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating upload rows: %w", err)
	}

	return out, nil
}
