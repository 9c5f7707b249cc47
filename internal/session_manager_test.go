package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshwire/bridge/pkg/httpconv"
	"github.com/freshwire/bridge/pkg/session"
)

func newTestScope() *Scope {
	return &Scope{
		id:       newRequestID(),
		response: httpconv.NewResponse(),
		ctx:      context.Background(),
	}
}

func TestSessionManagerLoad(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	sm := NewSessionManager(store)
	ctx := context.Background()

	t.Run("no cookie", func(t *testing.T) {
		sess, err := sm.Load(ctx, map[string]string{})
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("unknown token", func(t *testing.T) {
		sess, err := sm.Load(ctx, map[string]string{sm.CookieName(): "bogus"})
		require.NoError(t, err, "an unknown token means anonymous, not failure")
		assert.Nil(t, sess)
	})

	t.Run("valid token", func(t *testing.T) {
		created, err := sm.Create(ctx)
		require.NoError(t, err)

		sess, err := sm.Load(ctx, map[string]string{sm.CookieName(): created.Token})
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, created.ID, sess.ID)
		assert.False(t, sess.IsNew())
		assert.False(t, sess.IsDirty())
	})

	t.Run("expired token", func(t *testing.T) {
		expired := session.New("sid", "expired-token", time.Now().Add(-time.Hour))
		require.NoError(t, store.Create(ctx, expired))

		sess, err := sm.Load(ctx, map[string]string{sm.CookieName(): "expired-token"})
		require.NoError(t, err)
		assert.Nil(t, sess)
	})
}

func TestSessionManagerFinalize(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	sm := NewSessionManager(store)
	ctx := context.Background()

	t.Run("new session persists values and queues cookie", func(t *testing.T) {
		s := newTestScope()
		s.sessions = sm
		sess, err := s.EnsureSession()
		require.NoError(t, err)
		sess.SetValue("theme", "dark")

		require.NoError(t, sm.Finalize(ctx, s))
		require.Len(t, s.response.Cookies, 1)
		assert.Equal(t, sm.CookieName(), s.response.Cookies[0].Name)
		assert.Equal(t, sess.Token, s.response.Cookies[0].Value)

		stored, err := store.Get(ctx, sess.Token)
		require.NoError(t, err)
		assert.Equal(t, "dark", stored.Values["theme"])
	})

	t.Run("clean session only touches", func(t *testing.T) {
		created, err := sm.Create(ctx)
		require.NoError(t, err)

		s := newTestScope()
		s.sessions = sm
		s.session, err = sm.Load(ctx, map[string]string{sm.CookieName(): created.Token})
		require.NoError(t, err)

		require.NoError(t, sm.Finalize(ctx, s))
		assert.Empty(t, s.response.Cookies, "no cookie churn for a clean session")
	})

	t.Run("nil session is a no-op", func(t *testing.T) {
		s := newTestScope()
		s.sessions = sm
		require.NoError(t, sm.Finalize(ctx, s))
		assert.Empty(t, s.response.Cookies)
	})
}

func TestScopeAuthenticateRotatesToken(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	sm := NewSessionManager(store)
	ctx := context.Background()

	s := newTestScope()
	s.sessions = sm
	sess, err := s.EnsureSession()
	require.NoError(t, err)
	oldToken := sess.Token

	require.NoError(t, s.Authenticate("user-42"))
	assert.NotEqual(t, oldToken, sess.Token, "authentication rotates the token")
	assert.True(t, sess.IsAuthenticated())

	// The rotated token resolves, the old one is gone.
	_, err = store.Get(ctx, sess.Token)
	require.NoError(t, err)
	_, err = store.Get(ctx, oldToken)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestScopeLogout(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	sm := NewSessionManager(store)
	ctx := context.Background()

	s := newTestScope()
	s.sessions = sm
	sess, err := s.EnsureSession()
	require.NoError(t, err)
	token := sess.Token

	require.NoError(t, s.Logout())
	assert.Nil(t, s.Session())

	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NotEmpty(t, s.response.Cookies)
	deletion := s.response.Cookies[len(s.response.Cookies)-1]
	assert.Empty(t, deletion.Value)
	assert.True(t, deletion.Expires.Before(time.Now()))
}

func TestEnsureSessionWithoutStore(t *testing.T) {
	t.Parallel()

	s := newTestScope()
	_, err := s.EnsureSession()
	assert.ErrorIs(t, err, session.ErrNotConfigured)
}
