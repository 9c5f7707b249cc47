package bridge_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/freshwire/bridge"
	"github.com/freshwire/bridge/pkg/session"
)

func TestWorkerThroughFacade(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/visits", func(w http.ResponseWriter, r *http.Request) {
		s := bridge.FromContext(r.Context())
		sess, err := s.EnsureSession()
		require.NoError(t, err)

		visits := bridge.SessionValueOr(sess, "visits", 0) + 1
		sess.SetValue("visits", visits)

		cache, ok := bridge.Component[map[string]string](s, "cache")
		require.True(t, ok)
		cache["last"] = sess.ID

		w.WriteHeader(http.StatusOK)
	})

	app := bridge.New(
		bridge.WithHandler(router),
		bridge.WithSessionStore(session.NewMemoryStore()),
		bridge.WithPersistentComponent("cache", map[string]string{}),
	)

	rec := httptest.NewRecorder()
	app.Handle(rec, httptest.NewRequest(http.MethodGet, "/visits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, bridge.StateEnd, app.State())
}

func TestPoolThroughFacade(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	p := bridge.NewPool(2, bridge.WithHandler(router))
	require.NoError(t, p.Start(t.Context()))
	defer func() { _ = p.Shutdown(t.Context()) }()

	for range 5 {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
