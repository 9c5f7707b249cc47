package internal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/session"
)

// Default session configuration.
const (
	defaultSessionCookieName = "__sid"
	defaultSessionMaxAge     = 86400 * 30 // 30 days
)

// SessionManager handles session lifecycle against a session.Store and
// translates sessions to and from response cookies. It holds no
// per-request state, so one manager serves every request the worker
// handles.
type SessionManager struct {
	store      session.Store
	cookieName string
	maxAge     int
	now        func() time.Time
}

// SessionOption configures the SessionManager.
type SessionOption func(*SessionManager)

// NewSessionManager creates a SessionManager backed by the given store.
func NewSessionManager(store session.Store, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		store:      store,
		cookieName: defaultSessionCookieName,
		maxAge:     defaultSessionMaxAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// WithSessionCookieName sets the session cookie name.
func WithSessionCookieName(name string) SessionOption {
	return func(sm *SessionManager) {
		if name != "" {
			sm.cookieName = name
		}
	}
}

// WithSessionMaxAge sets the session lifetime in seconds.
func WithSessionMaxAge(seconds int) SessionOption {
	return func(sm *SessionManager) {
		if seconds > 0 {
			sm.maxAge = seconds
		}
	}
}

// WithSessionClock overrides the time source, for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(sm *SessionManager) {
		if now != nil {
			sm.now = now
		}
	}
}

// CookieName returns the configured session cookie name.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Load resolves a session from the cookie values of a converted
// request. A missing cookie, an unknown token, or an expired session
// all yield nil without an error; the caller treats the request as
// anonymous. Store failures are reported.
func (sm *SessionManager) Load(ctx context.Context, cookies map[string]string) (*session.Session, error) {
	token, ok := cookies[sm.cookieName]
	if !ok || token == "" {
		return nil, nil
	}

	sess, err := sm.store.Get(ctx, token)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		return nil, nil
	case err != nil:
		return nil, err
	}
	sess.ClearNew()
	sess.ClearDirty()
	return sess, nil
}

// Create builds and persists a new anonymous session.
func (sm *SessionManager) Create(ctx context.Context) (*session.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := sm.now().Add(time.Duration(sm.maxAge) * time.Second)

	sess := session.New(uuid.NewString(), token, expiresAt)
	if err := sm.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Finalize persists a modified session and, for new or dirty sessions,
// queues the session cookie onto the response. Clean pre-existing
// sessions only get a liveness touch in the store.
func (sm *SessionManager) Finalize(ctx context.Context, s *Scope) error {
	sess := s.session
	if sess == nil {
		return nil
	}

	wasNew := sess.IsNew()
	sess.ClearNew()

	if sess.IsDirty() {
		if err := sm.store.Update(ctx, sess); err != nil {
			return err
		}
		sess.ClearDirty()
		if !wasNew {
			s.response.Cookies = append(s.response.Cookies, sm.sessionCookie(sess.Token))
		}
	} else if !wasNew {
		if err := sm.store.Touch(ctx, sess.ID, sm.now()); err != nil && !errors.Is(err, session.ErrNotFound) {
			return err
		}
	}

	if wasNew {
		s.response.Cookies = append(s.response.Cookies, sm.sessionCookie(sess.Token))
	}
	return nil
}

// RotateToken issues the session a new token, invalidating the old one.
func (sm *SessionManager) RotateToken(ctx context.Context, sess *session.Session) error {
	oldToken := sess.Token
	newToken, err := generateToken()
	if err != nil {
		return fmt.Errorf("generate session token: %w", err)
	}
	sess.Token = newToken
	sess.MarkDirty()

	if err := sm.store.Update(ctx, sess); err != nil {
		sess.Token = oldToken
		return err
	}
	return nil
}

// Delete removes the session from the store.
func (sm *SessionManager) Delete(ctx context.Context, sess *session.Session) error {
	err := sm.store.Delete(ctx, sess.ID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return err
}

// DeletionCookie returns the cookie that clears the session cookie on
// the client.
func (sm *SessionManager) DeletionCookie() cookie.Cookie {
	return cookie.Cookie{
		Name:     sm.cookieName,
		Path:     "/",
		Expires:  time.Unix(1, 0).UTC(),
		HTTPOnly: true,
	}
}

func (sm *SessionManager) sessionCookie(token string) cookie.Cookie {
	return cookie.Cookie{
		Name:     sm.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  sm.now().Add(time.Duration(sm.maxAge) * time.Second),
		HTTPOnly: true,
	}
}

// generateToken creates a cryptographically secure random token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
