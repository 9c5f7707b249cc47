package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a session store backed by Postgres via pgx.
// It expects the following table:
//
//	CREATE TABLE sessions (
//	    id             TEXT PRIMARY KEY,
//	    token          TEXT NOT NULL UNIQUE,
//	    user_id        TEXT,
//	    data           JSONB NOT NULL DEFAULT '{}',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    last_active_at TIMESTAMPTZ NOT NULL,
//	    expires_at     TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create persists a new session.
func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("session: encode values: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, token, user_id, data, created_at, last_active_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.Token, sess.UserID, data,
		sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

// Get retrieves a session by its token.
func (s *PostgresStore) Get(ctx context.Context, token string) (*Session, error) {
	var (
		sess Session
		data []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, user_id, data, created_at, last_active_at, expires_at
		FROM sessions WHERE token = $1`, token,
	).Scan(&sess.ID, &sess.Token, &sess.UserID, &data,
		&sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: select: %w", err)
	}

	if err := json.Unmarshal(data, &sess.Values); err != nil {
		return nil, fmt.Errorf("session: decode values: %w", err)
	}
	if sess.Values == nil {
		sess.Values = make(map[string]any)
	}
	if sess.IsExpired() {
		return nil, ErrExpired
	}
	return &sess, nil
}

// Update saves changes to an existing session.
func (s *PostgresStore) Update(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("session: encode values: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET token = $2, user_id = $3, data = $4, last_active_at = $5, expires_at = $6
		WHERE id = $1`,
		sess.ID, sess.Token, sess.UserID, data, sess.LastActiveAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session by its ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (s *PostgresStore) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("session: delete by user: %w", err)
	}
	return nil
}

// Touch updates the LastActiveAt timestamp without loading the session.
func (s *PostgresStore) Touch(ctx context.Context, id string, lastActiveAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_active_at = $2 WHERE id = $1`, id, lastActiveAt)
	if err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
