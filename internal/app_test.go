package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshwire/bridge/pkg/httpconv"
	"github.com/freshwire/bridge/pkg/session"
)

func TestHandleJSONEcho(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.Request().Body)
	})
	app := New(WithHandler(router))

	body := `{"foo":"bar","number":123}`
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, body, rec.Body.String())
}

func TestHandleBasicAuthEcho(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		user, pass := s.Request().BasicCredentials()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]*string{
			"username": user,
			"password": pass,
		})
	})
	app := New(WithHandler(router))

	t.Run("with credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.SetBasicAuth("user", "pass")
		rec := httptest.NewRecorder()
		app.Handle(rec, req)

		assert.JSONEq(t, `{"username":"user","password":"pass"}`, rec.Body.String())
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		rec := httptest.NewRecorder()
		app.Handle(rec, req)

		assert.JSONEq(t, `{"username":null,"password":null}`, rec.Body.String())
	})
}

func TestHandleMethodOverride(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Delete("/thing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("deleted"))
	})
	app := New(WithHandler(router))

	req := httptest.NewRequest(http.MethodPost, "/thing", strings.NewReader("_method=DELETE"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", rec.Body.String())
}

func TestHandleStartTimeHeader(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	router := chi.NewRouter()
	router.Get("/t", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get(httpconv.StartTimeHeader)))
	})
	app := New(WithHandler(router), WithClock(func() time.Time { return started }))

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	rec := httptest.NewRecorder()
	app.Handle(rec, req)

	assert.Equal(t, "1772366400.000000", rec.Body.String())
}

func TestBootstrapRunsExactlyOnce(t *testing.T) {
	t.Parallel()

	runs := 0
	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {})
	app := New(
		WithHandler(router),
		WithBootstrap(func(_ context.Context, r *Registry) error {
			runs++
			r.SetPersistent("warm", true)
			return nil
		}),
	)

	for range 3 {
		rec := httptest.NewRecorder()
		app.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 1, runs)
	assert.True(t, app.Registry().Has("warm"))
	assert.EqualValues(t, 3, app.Served())
}

func TestBootstrapFailureIsSticky(t *testing.T) {
	t.Parallel()

	runs := 0
	app := New(
		WithHandler(chi.NewRouter()),
		WithBootstrap(func(context.Context, *Registry) error {
			runs++
			return errors.New("migrate failed")
		}),
	)

	for range 2 {
		rec := httptest.NewRecorder()
		app.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	assert.Equal(t, 1, runs, "a failed bootstrap must not rerun")
	assert.True(t, app.ShouldRecycle())
}

func TestScopedComponentFreshPerRequest(t *testing.T) {
	t.Parallel()

	var seen []any
	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		c, ok := s.Component("scratch")
		require.True(t, ok)
		seen = append(seen, c)
	})

	shared := &fakeCache{entries: map[string]string{}}
	app := New(
		WithHandler(router),
		WithPersistentComponent("cache", shared),
		WithScopedComponent("scratch", func() (any, error) {
			return &fakeCache{entries: map[string]string{}}, nil
		}),
	)

	for range 2 {
		rec := httptest.NewRecorder()
		app.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1], "scoped component must be rebuilt per request")

	cached, _ := app.Registry().Get("cache")
	assert.Same(t, shared, cached, "persistent component keeps its identity")
}

func TestRequestSubscriptionsUnwound(t *testing.T) {
	t.Parallel()

	fired := 0
	subscribe := true

	var app *App
	app = New(WithHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subscribe {
			app.Events().Subscribe(EventAfterRequest, func(*Scope) { fired++ })
		}
	})))

	app.Handle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, fired, "subscription made during the request fires for that request")

	subscribe = false
	app.Handle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, fired, "subscription must not survive into the next request")
}

func TestUploadedFilesDoNotLeak(t *testing.T) {
	t.Parallel()

	var counts []int
	router := chi.NewRouter()
	router.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		counts = append(counts, FromContext(r.Context()).Files().Count())
	})
	router.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		counts = append(counts, FromContext(r.Context()).Files().Count())
	})
	app := New(WithHandler(router))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", "a.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	app.Handle(httptest.NewRecorder(), req)

	app.Handle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	require.Equal(t, []int{1, 0}, counts)
}

func TestPanicBecomesErrorResponse(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	app := New(WithHandler(router))

	rec := httptest.NewRecorder()
	app.Handle(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "500 Internal Server Error")
	assert.NotContains(t, rec.Body.String(), "kaboom", "panic details hidden without debug")
}

func TestPanicJSONFormat(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		panic("kaboom")
	})
	app := New(WithHandler(router))

	rec := httptest.NewRecorder()
	app.Handle(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "message")
	assert.EqualValues(t, http.StatusInternalServerError, payload["status"])
}

func TestDebugErrorIncludesRedactedParams(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	app := New(WithHandler(router), WithDebug(true))

	rec := httptest.NewRecorder()
	app.Handle(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "kaboom", "debug mode shows the panic trace")
	assert.Contains(t, body, "Server Parameters")
}

func TestNilHandlerIsNotFound(t *testing.T) {
	t.Parallel()

	app := New()
	rec := httptest.NewRecorder()
	app.Handle(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page not found.")
}

func TestSessionsAcrossRequests(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	router.Get("/visit", func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		sess, err := s.EnsureSession()
		require.NoError(t, err)

		visits := session.ValueOr(sess, "visits", 0) + 1
		sess.SetValue("visits", visits)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": sess.ID, "visits": visits})
	})

	app := New(WithHandler(router), WithSessionStore(session.NewMemoryStore()))

	do := func(cookieHeader string) (map[string]any, *http.Response) {
		req := httptest.NewRequest(http.MethodGet, "/visit", nil)
		if cookieHeader != "" {
			req.Header.Set("Cookie", cookieHeader)
		}
		rec := httptest.NewRecorder()
		app.Handle(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		return payload, rec.Result()
	}

	first, resp1 := do("")
	cookies := resp1.Cookies()
	require.NotEmpty(t, cookies, "new session must set a cookie")
	sid := cookies[0]

	// Returning the cookie resumes the same session.
	second, _ := do(sid.Name + "=" + sid.Value)
	assert.Equal(t, first["id"], second["id"])
	assert.EqualValues(t, 2, second["visits"])

	// A bare request gets a fresh guest session.
	third, _ := do("")
	assert.NotEqual(t, first["id"], third["id"])
	assert.EqualValues(t, 1, third["visits"])
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	var during State
	var app *App
	app = New(WithHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = app.State()
	})))

	assert.Equal(t, StateInit, app.State())
	app.Handle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, StateHandling, during)
	assert.Equal(t, StateEnd, app.State())
}
