package internal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/httpconv"
	"github.com/freshwire/bridge/pkg/session"
	"github.com/freshwire/bridge/pkg/upload"
)

// Scope is the per-request state container. Every request gets a fresh
// Scope; nothing in it survives into the next request. Handlers reach
// it through FromContext.
type Scope struct {
	startedAt  time.Time
	request    *httpconv.Request
	response   *httpconv.Response
	files      *upload.Registry
	components *Registry
	logger     *slog.Logger
	sessions   *SessionManager
	session    *session.Session
	id         string
	ctx        context.Context
}

// ID returns the unique request ID.
func (s *Scope) ID() string { return s.id }

// StartedAt returns the request start time.
func (s *Scope) StartedAt() time.Time { return s.startedAt }

// Request returns the converted inbound request.
func (s *Scope) Request() *httpconv.Request { return s.request }

// Response returns the response under construction.
func (s *Scope) Response() *httpconv.Response { return s.response }

// Files returns this request's uploaded-file registry.
func (s *Scope) Files() *upload.Registry { return s.files }

// Component resolves a component by ID from the worker registry.
func (s *Scope) Component(id string) (any, bool) {
	return s.components.Get(id)
}

// Logger returns the request-scoped logger.
func (s *Scope) Logger() *slog.Logger { return s.logger }

// Context returns the request context.
func (s *Scope) Context() context.Context { return s.ctx }

// Session returns the session loaded from the request cookie, or nil
// when the request carried no valid session.
func (s *Scope) Session() *session.Session { return s.session }

// EnsureSession returns the current session, creating and persisting a
// new one if the request arrived without one.
func (s *Scope) EnsureSession() (*session.Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	if s.sessions == nil {
		return nil, session.ErrNotConfigured
	}
	sess, err := s.sessions.Create(s.ctx)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// Authenticate binds the session to a user, rotating the session token
// to defeat fixation. A session is created if none exists yet.
func (s *Scope) Authenticate(userID string) error {
	sess, err := s.EnsureSession()
	if err != nil {
		return err
	}
	sess.SetUserID(userID)
	return s.sessions.RotateToken(s.ctx, sess)
}

// Logout deletes the session from the store and queues a deletion
// cookie on the response.
func (s *Scope) Logout() error {
	if s.session == nil {
		return nil
	}
	if err := s.sessions.Delete(s.ctx, s.session); err != nil {
		return err
	}
	s.response.Cookies = append(s.response.Cookies, s.sessions.DeletionCookie())
	s.session = nil
	return nil
}

// SetCookie queues a cookie for the response.
func (s *Scope) SetCookie(ck cookie.Cookie) {
	s.response.Cookies = append(s.response.Cookies, ck)
}

type scopeContextKey struct{}

// FromContext returns the Scope stored in ctx by the dispatcher, or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return s
}

func withScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

func newRequestID() string {
	return uuid.NewString()
}
