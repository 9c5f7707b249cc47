package httpconv_test

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/httpconv"
	"github.com/freshwire/bridge/pkg/upload"
)

const testKey = "this-is-a-32-byte-or-longer-key!"

func TestConvertBasics(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := httpconv.NewInbound(httpconv.WithClock(func() time.Time { return now }))

	r := httptest.NewRequest(http.MethodGet, "/widgets?page=2", nil)
	r.Header.Add("Accept", "text/html")
	r.Header.Add("Accept", "application/json")

	req, err := in.Convert(r, upload.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, http.MethodGet, req.RawMethod)
	assert.Equal(t, "/widgets", req.URL.Path)
	assert.Equal(t, "text/html, application/json", req.Header("Accept"))
	assert.True(t, req.StartedAt.Equal(now))
	assert.Equal(t, "192.0.2.1:1234", req.Params["remote_addr"])

	// The start time travels as a synthetic header.
	stamp := req.Header(httpconv.StartTimeHeader)
	require.NotEmpty(t, stamp)
	assert.True(t, strings.HasPrefix(stamp, "1772366400."), "got %q", stamp)
}

func TestMethodOverride(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		header string
		want   string
	}{
		{name: "body field", body: "_method=DELETE", want: http.MethodDelete},
		{name: "body field lowercase", body: "_method=put", want: http.MethodPut},
		{name: "header fallback", header: "PATCH", want: http.MethodPatch},
		{name: "body wins over header", body: "_method=DELETE", header: "PATCH", want: http.MethodDelete},
		{name: "get not spoofable", body: "_method=GET", want: http.MethodPost},
		{name: "head not spoofable", header: "HEAD", want: http.MethodPost},
		{name: "options not spoofable", header: "OPTIONS", want: http.MethodPost},
		{name: "no override", want: http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.header != "" {
				r.Header.Set("X-Http-Method-Override", tt.header)
			}

			in := httpconv.NewInbound()
			req, err := in.Convert(r, upload.NewRegistry())
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Method)
			assert.Equal(t, http.MethodPost, req.RawMethod)
		})
	}
}

func TestCustomMethodParam(t *testing.T) {
	t.Parallel()

	in := httpconv.NewInbound(httpconv.WithMethodParam("__verb"))
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("__verb=DELETE"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := in.Convert(r, upload.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, req.Method)
}

func TestCookieModes(t *testing.T) {
	t.Parallel()

	codec := cookie.New(cookie.WithValidationKey(testKey))

	t.Run("raw passthrough", func(t *testing.T) {
		t.Parallel()

		in := httpconv.NewInbound()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		assert.Equal(t, "dark", req.Cookies["theme"])
	})

	t.Run("validated accepts signed value", func(t *testing.T) {
		t.Parallel()

		signed, err := codec.Sign("sid", "user1-session")
		require.NoError(t, err)

		in := httpconv.NewInbound(httpconv.WithCookieValidation(codec))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sid", Value: signed})

		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		assert.Equal(t, "user1-session", req.Cookies["sid"])
	})

	t.Run("validated drops tampered value silently", func(t *testing.T) {
		t.Parallel()

		signed, err := codec.Sign("sid", "user1-session")
		require.NoError(t, err)

		in := httpconv.NewInbound(httpconv.WithCookieValidation(codec))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sid", Value: "x" + signed[1:]})

		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		_, present := req.Cookies["sid"]
		assert.False(t, present)
	})
}

func TestBodyPassthrough(t *testing.T) {
	t.Parallel()

	in := httpconv.NewInbound()
	payload := `{"foo":"bar","number":123}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")

	req, err := in.Convert(r, upload.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, payload, string(req.Body))

	// The body must still be readable from the wire request afterwards.
	again, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(again))
}

func TestBasicCredentials(t *testing.T) {
	t.Parallel()

	in := httpconv.NewInbound()

	t.Run("well formed", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))

		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		user, pass := req.BasicCredentials()
		require.NotNil(t, user)
		require.NotNil(t, pass)
		assert.Equal(t, "user", *user)
		assert.Equal(t, "pass", *pass)
	})

	t.Run("missing space after scheme", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Basic"+base64.StdEncoding.EncodeToString([]byte("user:pass")))

		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		user, pass := req.BasicCredentials()
		assert.Nil(t, user)
		assert.Nil(t, pass)
	})

	t.Run("absent header", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		req, err := in.Convert(r, upload.NewRegistry())
		require.NoError(t, err)
		user, pass := req.BasicCredentials()
		assert.Nil(t, user)
		assert.Nil(t, pass)
	})
}

func TestMultipartUploads(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("f", "hello.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "greeting"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())

	reg := upload.NewRegistry()
	in := httpconv.NewInbound()
	req, err := in.Convert(r, reg)
	require.NoError(t, err)

	files := reg.Get("f")
	require.Len(t, files, 1)
	assert.Equal(t, "hello.txt", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Equal(t, url.Values{"title": {"greeting"}}, req.Form)
}
