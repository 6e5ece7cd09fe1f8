// Package pendinglog is the durable local record of visit submissions the
// backing store has not confirmed yet. It is a single SQLite file so entries
// survive a restart of the front-desk service.
package pendinglog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"frontdesk-service/internal/domain/visit"
	xerrors "frontdesk-service/internal/pkg/errors"

	_ "modernc.org/sqlite"
)

// Entry is one unconfirmed visit submission. LocalID is the correlation id
// handed to the caller and reused as the visit's client_ref on every replay.
type Entry struct {
	LocalID       string              `json:"local_id"`
	Request       visit.SubmitRequest `json:"request"`
	EnqueuedAt    time.Time           `json:"enqueued_at"`
	AttemptCount  int                 `json:"attempt_count"`
	LastError     *string             `json:"last_error,omitempty"`
	NextAttemptAt time.Time           `json:"next_attempt_at"`
	NeedsReview   bool                `json:"needs_review"`
}

// Eligible reports whether the entry may be replayed at now.
func (e Entry) Eligible(now time.Time) bool {
	return !e.NeedsReview && !now.Before(e.NextAttemptAt)
}

const schema = `
CREATE TABLE IF NOT EXISTS pending_writes (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	local_id        TEXT NOT NULL UNIQUE,
	payload         TEXT NOT NULL,
	enqueued_at     INTEGER NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT,
	next_attempt_at INTEGER NOT NULL DEFAULT 0,
	needs_review    INTEGER NOT NULL DEFAULT 0
);
`

type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the log at path. ":memory:" gives a
// throwaway log for tests.
func Open(path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pending log: %w", err)
	}

	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pending log schema: %w", err)
	}

	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Append durably records a new entry at the tail of the log.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if e.LocalID == "" {
		return fmt.Errorf("local id: %w", xerrors.ErrMissingRequiredField)
	}
	payload, err := json.Marshal(e.Request)
	if err != nil {
		return fmt.Errorf("failed to encode pending request: %w", err)
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO pending_writes (local_id, payload, enqueued_at, attempt_count, next_attempt_at)
		VALUES (?, ?, ?, 0, ?)
	`, e.LocalID, string(payload), e.EnqueuedAt.UnixNano(), e.EnqueuedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append pending entry: %w", err)
	}
	return nil
}

// Outstanding returns the entries still being retried, oldest first.
func (l *Log) Outstanding(ctx context.Context) ([]Entry, error) {
	return l.query(ctx, `WHERE needs_review = 0`)
}

// Attention returns the entries that exhausted their retries or were rejected
// on replay and now require an operator.
func (l *Log) Attention(ctx context.Context) ([]Entry, error) {
	return l.query(ctx, `WHERE needs_review = 1`)
}

func (l *Log) Get(ctx context.Context, localID string) (*Entry, error) {
	entries, err := l.query(ctx, `WHERE local_id = ?`, localID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return &entries[0], nil
}

// Counts returns the number of outstanding and needs-review entries.
func (l *Log) Counts(ctx context.Context) (outstanding, attention int, err error) {
	err = l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN needs_review = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN needs_review = 1 THEN 1 ELSE 0 END), 0)
		FROM pending_writes
	`).Scan(&outstanding, &attention)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return outstanding, attention, nil
}

// Remove deletes an entry once the backing store has confirmed it.
func (l *Log) Remove(ctx context.Context, localID string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM pending_writes WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to remove pending entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// RecordFailure bumps the attempt count and stores the failure. needsReview
// takes the entry out of automatic replay; it is never deleted here.
func (l *Log) RecordFailure(ctx context.Context, localID string, cause error, nextAttemptAt time.Time, needsReview bool) (*Entry, error) {
	msg := xerrors.MessageOrDefault(cause, "unknown error")
	review := 0
	if needsReview {
		review = 1
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE pending_writes
		SET attempt_count = attempt_count + 1,
		    last_error = ?,
		    next_attempt_at = ?,
		    needs_review = ?
		WHERE local_id = ?
	`, msg, nextAttemptAt.UnixNano(), review, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to record pending failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, xerrors.ErrNotFound
	}
	return l.Get(ctx, localID)
}

func (l *Log) query(ctx context.Context, where string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT local_id, payload, enqueued_at, attempt_count, last_error, next_attempt_at, needs_review
		FROM pending_writes
		`+where+`
		ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			payload    string
			enqueued   int64
			nextAt     int64
			lastError  sql.NullString
			needsCheck int
		)
		if err := rows.Scan(&e.LocalID, &payload, &enqueued, &e.AttemptCount, &lastError, &nextAt, &needsCheck); err != nil {
			return nil, fmt.Errorf("failed to scan pending entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Request); err != nil {
			return nil, fmt.Errorf("failed to decode pending entry %s: %w", e.LocalID, err)
		}
		e.EnqueuedAt = time.Unix(0, enqueued)
		e.NextAttemptAt = time.Unix(0, nextAt)
		if lastError.Valid {
			msg := lastError.String
			e.LastError = &msg
		}
		e.NeedsReview = needsCheck == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return entries, nil
}
