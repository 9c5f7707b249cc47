package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshwire/bridge/pkg/session"
)

func TestSessionValues(t *testing.T) {
	t.Parallel()

	s := session.New("id1", "tok1", time.Now().Add(time.Hour))
	assert.True(t, s.IsNew())
	assert.True(t, s.IsDirty())

	s.ClearNew()
	s.ClearDirty()
	assert.False(t, s.IsNew())
	assert.False(t, s.IsDirty())

	s.SetValue("theme", "dark")
	assert.True(t, s.IsDirty())

	val, ok := s.GetValue("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", val)

	s.ClearDirty()
	s.DeleteValue("missing")
	assert.False(t, s.IsDirty(), "deleting a missing key must not dirty the session")

	s.DeleteValue("theme")
	assert.True(t, s.IsDirty())
	_, ok = s.GetValue("theme")
	assert.False(t, ok)
}

func TestSessionAuthentication(t *testing.T) {
	t.Parallel()

	s := session.New("id1", "tok1", time.Now().Add(time.Hour))
	assert.False(t, s.IsAuthenticated())

	uid := "user-1"
	s.UserID = &uid
	assert.True(t, s.IsAuthenticated())

	empty := ""
	s.UserID = &empty
	assert.False(t, s.IsAuthenticated())
}

func TestTypedValue(t *testing.T) {
	t.Parallel()

	s := session.New("id1", "tok1", time.Now().Add(time.Hour))
	s.SetValue("count", 7)

	n, err := session.Value[int](s, "count")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = session.Value[string](s, "count")
	require.Error(t, err)

	_, err = session.Value[int](s, "missing")
	require.ErrorIs(t, err, session.ErrNotFound)

	assert.Equal(t, 3, session.ValueOr(s, "missing", 3))
	assert.Equal(t, 7, session.ValueOr(s, "count", 3))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		s := session.New("id1", "tok1", time.Now().Add(time.Hour))
		s.SetValue("k", "v")
		require.NoError(t, store.Create(ctx, s))

		got, err := store.Get(ctx, "tok1")
		require.NoError(t, err)
		assert.Equal(t, "id1", got.ID)
		val, _ := got.GetValue("k")
		assert.Equal(t, "v", val)

		// Store must not share mutable state with the caller.
		got.SetValue("k", "changed")
		again, err := store.Get(ctx, "tok1")
		require.NoError(t, err)
		val, _ = again.GetValue("k")
		assert.Equal(t, "v", val)
	})

	t.Run("unknown token", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		_, err := store.Get(ctx, "nope")
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		s := session.New("id1", "tok1", time.Now().Add(-time.Minute))
		require.NoError(t, store.Create(ctx, s))

		_, err := store.Get(ctx, "tok1")
		require.ErrorIs(t, err, session.ErrExpired)
	})

	t.Run("token rotation drops stale token", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		s := session.New("id1", "tok1", time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, s))

		s.Token = "tok2"
		require.NoError(t, store.Update(ctx, s))

		_, err := store.Get(ctx, "tok1")
		require.ErrorIs(t, err, session.ErrNotFound)
		got, err := store.Get(ctx, "tok2")
		require.NoError(t, err)
		assert.Equal(t, "id1", got.ID)
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		s := session.New("id1", "tok1", time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, s))
		require.NoError(t, store.Delete(ctx, "id1"))

		_, err := store.Get(ctx, "tok1")
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("delete by user", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		uid := "user-1"

		s1 := session.New("id1", "tok1", time.Now().Add(time.Hour))
		s1.UserID = &uid
		s2 := session.New("id2", "tok2", time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, s1))
		require.NoError(t, store.Create(ctx, s2))

		require.NoError(t, store.DeleteByUserID(ctx, uid))

		_, err := store.Get(ctx, "tok1")
		require.ErrorIs(t, err, session.ErrNotFound)
		_, err = store.Get(ctx, "tok2")
		require.NoError(t, err)
	})

	t.Run("touch", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		s := session.New("id1", "tok1", time.Now().Add(time.Hour))
		require.NoError(t, store.Create(ctx, s))

		at := time.Now().Add(10 * time.Minute)
		require.NoError(t, store.Touch(ctx, "id1", at))

		got, err := store.Get(ctx, "tok1")
		require.NoError(t, err)
		assert.True(t, got.LastActiveAt.Equal(at))

		require.ErrorIs(t, store.Touch(ctx, "missing", at), session.ErrNotFound)
	})
}
