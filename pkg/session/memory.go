package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory session store. It is primarily meant for
// tests and single-process deployments; sessions do not survive a
// process restart.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]*Session
	byID    map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken: make(map[string]*Session),
		byID:    make(map[string]*Session),
	}
}

// Create persists a new session.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cloneSession(s)
	m.byToken[s.Token] = c
	m.byID[s.ID] = c
	return nil
}

// Get retrieves a session by its token.
func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	if s.IsExpired() {
		return nil, ErrExpired
	}
	return cloneSession(s), nil
}

// Update saves changes to an existing session.
func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	// Token rotation: drop the stale token index entry.
	if old.Token != s.Token {
		delete(m.byToken, old.Token)
	}
	c := cloneSession(s)
	m.byToken[s.Token] = c
	m.byID[s.ID] = c
	return nil
}

// Delete removes a session by its ID.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byID[id]; ok {
		delete(m.byToken, s.Token)
		delete(m.byID, id)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (m *MemoryStore) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.byID {
		if s.UserID != nil && *s.UserID == userID {
			delete(m.byToken, s.Token)
			delete(m.byID, id)
		}
	}
	return nil
}

// Touch updates the LastActiveAt timestamp.
func (m *MemoryStore) Touch(_ context.Context, id string, lastActiveAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.LastActiveAt = lastActiveAt
	return nil
}

// cloneSession copies the session so callers never share mutable state
// with the store. Sharing would let one request observe another
// request's in-progress mutations.
func cloneSession(s *Session) *Session {
	c := *s
	c.Values = make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		c.Values[k] = v
	}
	if s.UserID != nil {
		uid := *s.UserID
		c.UserID = &uid
	}
	return &c
}
