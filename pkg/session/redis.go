package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a session store backed by Redis. Sessions are stored as
// JSON under a token-derived key with a TTL matching their expiry, plus
// secondary indexes by ID and user for deletion paths.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures the RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Defaults to "sess".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "sess",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// redisSession is the wire form; the unexported dirty/new flags are
// deliberately not persisted.
type redisSession struct {
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	UserID       *string        `json:"user_id,omitempty"`
	Values       map[string]any `json:"values"`
	ID           string         `json:"id"`
	Token        string         `json:"token"`
}

func (s *RedisStore) tokenKey(token string) string { return s.prefix + ":token:" + token }
func (s *RedisStore) idKey(id string) string       { return s.prefix + ":id:" + id }
func (s *RedisStore) userKey(userID string) string { return s.prefix + ":user:" + userID }

// Create persists a new session.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess)
}

// Get retrieves a session by its token.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: redis get: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}

	sess := &Session{
		ID:           rs.ID,
		Token:        rs.Token,
		UserID:       rs.UserID,
		Values:       rs.Values,
		CreatedAt:    rs.CreatedAt,
		LastActiveAt: rs.LastActiveAt,
		ExpiresAt:    rs.ExpiresAt,
	}
	if sess.Values == nil {
		sess.Values = make(map[string]any)
	}
	if sess.IsExpired() {
		return nil, ErrExpired
	}
	return sess, nil
}

// Update saves changes to an existing session.
func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	// Token rotation leaves a stale token key behind; look it up and
	// drop it before writing the new one.
	oldToken, err := s.client.Get(ctx, s.idKey(sess.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("session: redis get id index: %w", err)
	}
	if oldToken != sess.Token {
		if err := s.client.Del(ctx, s.tokenKey(oldToken)).Err(); err != nil {
			return fmt.Errorf("session: redis del stale token: %w", err)
		}
	}
	return s.write(ctx, sess)
}

func (s *RedisStore) write(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(redisSession{
		ID:           sess.ID,
		Token:        sess.Token,
		UserID:       sess.UserID,
		Values:       sess.Values,
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
		ExpiresAt:    sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(sess.Token), data, ttl)
	pipe.Set(ctx, s.idKey(sess.ID), sess.Token, ttl)
	if sess.UserID != nil && *sess.UserID != "" {
		pipe.SAdd(ctx, s.userKey(*sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(*sess.UserID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis write: %w", err)
	}
	return nil
}

// Delete removes a session by its ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	token, err := s.client.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("session: redis get id index: %w", err)
	}
	if err := s.client.Del(ctx, s.tokenKey(token), s.idKey(id)).Err(); err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (s *RedisStore) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("session: redis list user sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, s.userKey(userID)).Err()
}

// Touch updates the LastActiveAt timestamp by rewriting the session.
func (s *RedisStore) Touch(ctx context.Context, id string, lastActiveAt time.Time) error {
	token, err := s.client.Get(ctx, s.idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("session: redis get id index: %w", err)
	}
	sess, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	sess.LastActiveAt = lastActiveAt
	return s.write(ctx, sess)
}
