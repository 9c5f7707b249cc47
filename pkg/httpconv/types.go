package httpconv

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/memguard"
	"github.com/freshwire/bridge/pkg/upload"
)

// StartTimeHeader is the synthetic header stamped on every inbound
// request with the high-resolution request start time as a
// string-encoded float. Downstream timing code reads it instead of a
// process-global start time, which would be wrong in a worker that
// serves many requests.
const StartTimeHeader = "statelessAppStartTime"

// Format selects the response body representation, which also drives
// the Content-Type of rendered errors.
type Format int

const (
	FormatHTML Format = iota
	FormatJSON
	FormatRaw
)

// ContentType returns the wire content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=UTF-8"
	case FormatRaw:
		return "text/plain; charset=UTF-8"
	default:
		return "text/html; charset=UTF-8"
	}
}

// Request is the bridged application's internal request surface, built
// fresh for every inbound request.
type Request struct {
	StartedAt time.Time
	URL       *url.URL
	Headers   map[string]string // flattened: multi-value joined with ", "
	Cookies   map[string]string // after the active cookie mode
	Params    map[string]string // server parameters (remote addr, host, ...)
	Form      url.Values
	Files     *upload.Registry
	Body      []byte
	Method    string // effective method, after override detection
	RawMethod string // method as actually sent
}

// Header returns a flattened request header value, case-insensitively.
func (r *Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	canon := http.CanonicalHeaderKey(name)
	if v, ok := r.Headers[canon]; ok {
		return v
	}
	return ""
}

// BasicCredentials extracts Basic-Authorization credentials. Both
// results are nil when the header is missing or malformed, including a
// missing space after the scheme.
func (r *Request) BasicCredentials() (username, password *string) {
	raw := r.Header("Authorization")
	if !strings.HasPrefix(raw, "Basic ") {
		return nil, nil
	}
	decoded, err := base64Decode(strings.TrimPrefix(raw, "Basic "))
	if err != nil {
		return nil, nil
	}
	user, pass, ok := strings.Cut(decoded, ":")
	if !ok {
		return nil, nil
	}
	return &user, &pass
}

func base64Decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Response is the bridged application's internal response object. The
// buffer stack captures nested handler output; whatever a handler fails
// to close is force-discarded by the memory guard between requests.
type Response struct {
	Headers http.Header
	Buffers *memguard.BufferStack
	Stream  *FileRange
	Cookies []cookie.Cookie
	Body    []byte
	Status  int
	Format  Format
}

// NewResponse creates an empty 200 response.
func NewResponse() *Response {
	return &Response{
		Status:  http.StatusOK,
		Headers: make(http.Header),
		Buffers: memguard.NewBufferStack(),
	}
}

// FileRange describes a byte-range file body: the open handle plus the
// inclusive [Begin, End] range to stream. The outbound adapter always
// closes the handle, on success and on failure alike.
type FileRange struct {
	Handle io.ReadSeekCloser
	Begin  int64
	End    int64
}
