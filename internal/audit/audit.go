// Package audit records session lifecycle events (connect/disconnect) to
// SQLite for operational history. This is a supplementary feature: the
// distilled spec has no persistence concern, but the original source this
// protocol was distilled from logged connection activity, and the
// teacher's codebase stores operational records the same way (SQLite via
// database/sql). Writing an audit record is always best-effort: a failure
// is logged and swallowed and never fails protocol handling (spec.md §4.D
// hook-failure policy applies by extension to this side-channel too). The
// write, including its retries, runs synchronously on the calling
// goroutine.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"graphqlws/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	event TEXT NOT NULL,
	connection_params TEXT,
	occurred_at DATETIME NOT NULL
);`

// Store persists session lifecycle events.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and
// ensures the session_events table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordConnect records a successful connection_init. Failures are
// retried with exponential backoff and, if still unsuccessful, logged and
// swallowed.
func (s *Store) RecordConnect(ctx context.Context, sessionID string, connectionParams json.RawMessage) {
	s.record(ctx, sessionID, "connect", connectionParams)
}

// RecordDisconnect records a connection_terminate.
func (s *Store) RecordDisconnect(ctx context.Context, sessionID string, connectionParams json.RawMessage) {
	s.record(ctx, sessionID, "disconnect", connectionParams)
}

func (s *Store) record(ctx context.Context, sessionID, event string, connectionParams json.RawMessage) {
	id := uuid.NewString()
	occurredAt := time.Now().UTC()

	op := func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO session_events (id, session_id, event, connection_params, occurred_at) VALUES (?, ?, ?, ?, ?)`,
			id, sessionID, event, string(connectionParams), occurredAt,
		)
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		logger.WithSession(sessionID).Sugar().Warnw("audit record failed, dropping", "event", event, "error", err)
	}
}
