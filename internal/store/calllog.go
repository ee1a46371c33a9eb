// Package store persists call sessions and their transcripts in Postgres.
package store

import (
	"context"
	"database/sql"
	"time"

	"companion-agent/internal/common/database"
	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/logger"
)

// AgentKind distinguishes the two call flows.
type AgentKind string

const (
	KindCompanion  AgentKind = "companion"
	KindOnboarding AgentKind = "onboarding"
)

// TranscriptEntry is one turn of a call transcript.
type TranscriptEntry struct {
	Seq     int
	Role    string
	Content string
}

// CallLog writes call sessions and transcripts.
type CallLog struct {
	db  *sql.DB
	log logger.Logger
}

// NewCallLog builds a call-log store on the shared Postgres client.
func NewCallLog(pg *database.PostgresClient, log logger.Logger) *CallLog {
	return &CallLog{db: pg.DB(), log: log}
}

// StartSession records a new call session.
func (s *CallLog) StartSession(ctx context.Context, sessionID, userID string, kind AgentKind, room string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sessions (id, user_id, kind, room, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sessionID, userID, string(kind), room, time.Now().UTC(),
	)
	if err != nil {
		return errors.NewCallLogWriteFailedError(err)
	}
	return nil
}

// EndSession marks a session ended.
func (s *CallLog) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return errors.NewCallLogWriteFailedError(err)
	}
	return nil
}

// AppendTranscript bulk-inserts transcript entries for a session inside a
// transaction.
func (s *CallLog) AppendTranscript(ctx context.Context, sessionID string, entries []TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewCallLogWriteFailedError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO call_transcripts (session_id, seq, role, content)
		 VALUES ($1, $2, $3, $4)`,
	)
	if err != nil {
		return errors.NewCallLogWriteFailedError(err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, sessionID, e.Seq, e.Role, e.Content); err != nil {
			return errors.NewCallLogWriteFailedError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewCallLogWriteFailedError(err)
	}

	s.log.Debug("Transcript persisted", map[string]interface{}{
		"sessionId": sessionID,
		"entries":   len(entries),
	})
	return nil
}
