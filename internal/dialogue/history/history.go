// Package history persists call conversations to PostgreSQL.
//
// Every call gets one conversation row; each caller utterance and agent
// reply is appended as a message. The store is optional, a deployment
// without a database simply does not wire one in.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hostline-ai/hostline/internal/dialogue"
)

// Schema is the SQL DDL for the conversation tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id          UUID PRIMARY KEY,
    call_id     TEXT NOT NULL UNIQUE,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at    TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS conversation_messages (
    id               BIGSERIAL PRIMARY KEY,
    conversation_id  UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role             TEXT NOT NULL,
    content          TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversation_messages_conversation
    ON conversation_messages(conversation_id, id);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrNoConversation is returned when a call ID has no conversation row.
var ErrNoConversation = errors.New("history: no conversation for call")

// Store records conversations keyed by call ID.
type Store struct {
	db DB
}

// New creates a Store using the given database connection or pool. The
// caller is responsible for calling [Store.Migrate] to ensure the schema
// exists before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Begin opens a conversation for the given call. Calling it again for the
// same call returns the existing conversation ID.
func (s *Store) Begin(ctx context.Context, callID string) (uuid.UUID, error) {
	id := uuid.New()
	const q = `
		INSERT INTO conversations (id, call_id)
		VALUES ($1, $2)
		ON CONFLICT (call_id) DO UPDATE SET call_id = EXCLUDED.call_id
		RETURNING id`
	var got uuid.UUID
	if err := s.db.QueryRow(ctx, q, id, callID).Scan(&got); err != nil {
		return uuid.Nil, fmt.Errorf("history: begin conversation for call %s: %w", callID, err)
	}
	return got, nil
}

// Append records one message on the call's conversation.
func (s *Store) Append(ctx context.Context, callID, role, content string) error {
	const q = `
		INSERT INTO conversation_messages (conversation_id, role, content)
		SELECT id, $2, $3 FROM conversations WHERE call_id = $1`
	tag, err := s.db.Exec(ctx, q, callID, role, content)
	if err != nil {
		return fmt.Errorf("history: append message for call %s: %w", callID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoConversation
	}
	return nil
}

// Recent returns the last limit messages of the call's conversation in
// chronological order. limit <= 0 returns all messages.
func (s *Store) Recent(ctx context.Context, callID string, limit int) ([]dialogue.Turn, error) {
	q := `
		SELECT m.role, m.content
		FROM   conversation_messages m
		JOIN   conversations c ON c.id = m.conversation_id
		WHERE  c.call_id = $1
		ORDER  BY m.id DESC`
	args := []any{callID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: load messages for call %s: %w", callID, err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dialogue.Turn, error) {
		var t dialogue.Turn
		err := row.Scan(&t.Role, &t.Content)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan messages for call %s: %w", callID, err)
	}
	// Newest-first from the query; restore chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// End stamps the conversation's end time. Ending an unknown or already
// ended conversation is not an error.
func (s *Store) End(ctx context.Context, callID string, at time.Time) error {
	const q = `
		UPDATE conversations SET ended_at = $2
		WHERE  call_id = $1 AND ended_at IS NULL`
	if _, err := s.db.Exec(ctx, q, callID, at); err != nil {
		return fmt.Errorf("history: end conversation for call %s: %w", callID, err)
	}
	return nil
}
