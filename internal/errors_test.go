package internal

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("row not found")
	err := ErrNotFound("missing page", WithError(cause), WithRequestID("req-1"))

	assert.Equal(t, http.StatusNotFound, err.StatusCode())
	assert.Equal(t, "Not Found", err.StatusText())
	assert.Equal(t, "missing page", err.Error())
	assert.Equal(t, "req-1", err.RequestID)
	assert.ErrorIs(t, err, cause)
}

func TestAsHTTPError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AsHTTPError(nil))
	assert.Nil(t, AsHTTPError(errors.New("plain")))

	httpErr := ErrBadRequest("bad")
	require.Same(t, httpErr, AsHTTPError(httpErr))
	assert.True(t, IsHTTPError(httpErr))
	assert.False(t, IsHTTPError(errors.New("plain")))
}

func TestPanicError(t *testing.T) {
	t.Parallel()

	err := &PanicError{Value: "kaboom", Stack: []byte("stack")}
	assert.Equal(t, "panic: kaboom", err.Error())
}

func TestRedactParams(t *testing.T) {
	t.Parallel()

	in := map[string]string{
		"remote_addr":   "10.0.0.1",
		"HTTP_COOKIE":   "sid=abc",
		"DB_PASSWORD":   "hunter2",
		"api_token":     "t-123",
		"AUTHORIZATION": "Basic xyz",
		"host":          "example.com",
	}

	out := redactParams(in)

	assert.Equal(t, "10.0.0.1", out["remote_addr"])
	assert.Equal(t, "example.com", out["host"])
	assert.Equal(t, "***", out["HTTP_COOKIE"])
	assert.Equal(t, "***", out["DB_PASSWORD"])
	assert.Equal(t, "***", out["api_token"])
	assert.Equal(t, "***", out["AUTHORIZATION"])

	// Input is untouched.
	assert.Equal(t, "hunter2", in["DB_PASSWORD"])
}
