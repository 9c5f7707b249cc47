package httpconv

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/upload"
)

// defaultMethodParam is the body field checked for a method override.
const defaultMethodParam = "_method"

// methodOverrideHeader is the fallback override header.
const methodOverrideHeader = "X-Http-Method-Override"

// defaultMaxMultipartMemory bounds in-memory multipart parsing.
const defaultMaxMultipartMemory = 32 << 20 // 32MB

// Inbound converts wire requests into the internal request surface.
// It is stateless and safe to reuse across requests.
type Inbound struct {
	codec           *cookie.Codec
	now             func() time.Time
	methodParam     string
	maxMultipartMem int64
	validateCookies bool
}

// InboundOption configures the Inbound converter.
type InboundOption func(*Inbound)

// WithCookieValidation enables integrity-validated cookie extraction
// using the given codec. Cookies that fail validation are dropped
// silently.
func WithCookieValidation(codec *cookie.Codec) InboundOption {
	return func(in *Inbound) {
		in.codec = codec
		in.validateCookies = codec != nil && codec.ValidationEnabled()
	}
}

// WithMethodParam sets the body field checked for a method override.
// Defaults to "_method".
func WithMethodParam(name string) InboundOption {
	return func(in *Inbound) {
		if name != "" {
			in.methodParam = name
		}
	}
}

// WithMaxMultipartMemory sets the in-memory multipart parse budget.
func WithMaxMultipartMemory(n int64) InboundOption {
	return func(in *Inbound) {
		if n > 0 {
			in.maxMultipartMem = n
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) InboundOption {
	return func(in *Inbound) {
		if now != nil {
			in.now = now
		}
	}
}

// NewInbound creates an Inbound converter.
func NewInbound(opts ...InboundOption) *Inbound {
	in := &Inbound{
		now:             time.Now,
		methodParam:     defaultMethodParam,
		maxMultipartMem: defaultMaxMultipartMemory,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Convert builds the internal request surface from a wire request,
// populating the given uploaded-file registry from any multipart body.
func (in *Inbound) Convert(r *http.Request, files *upload.Registry) (*Request, error) {
	started := in.now()

	body, err := readBody(r)
	if err != nil {
		return nil, fmt.Errorf("httpconv: read request body: %w", err)
	}

	form, err := in.parseForm(r, body, files)
	if err != nil {
		return nil, err
	}

	req := &Request{
		StartedAt: started,
		URL:       r.URL,
		RawMethod: r.Method,
		Method:    in.effectiveMethod(r, form),
		Headers:   flattenHeaders(r.Header),
		Cookies:   in.extractCookies(r),
		Params:    serverParams(r),
		Form:      form,
		Files:     files,
		Body:      body,
	}

	// Stamped as a synthetic header so downstream timing code never
	// reaches for a process-global start time.
	req.Headers[StartTimeHeader] = strconv.FormatFloat(
		float64(started.UnixNano())/float64(time.Second), 'f', 6, 64)

	return req, nil
}

// readBody drains the request body, rewinding seekable bodies so later
// consumers can read them again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if seeker, ok := r.Body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	} else {
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	return body, nil
}

// parseForm extracts body parameters and uploaded files according to
// the request content type.
func (in *Inbound) parseForm(r *http.Request, body []byte, files *upload.Registry) (url.Values, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return url.Values{}, nil // no usable content type, no body params
	}

	switch ct {
	case "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("httpconv: parse form body: %w", err)
		}
		return form, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(in.maxMultipartMem); err != nil {
			return nil, fmt.Errorf("httpconv: parse multipart body: %w", err)
		}
		if files != nil {
			if err := files.PopulateFromMultipart(r.MultipartForm); err != nil {
				return nil, err
			}
		}
		return url.Values(r.MultipartForm.Value), nil
	default:
		return url.Values{}, nil
	}
}

// effectiveMethod applies method override detection: a configured body
// field first, the override header as fallback. Overrides that resolve
// to GET, HEAD or OPTIONS are ignored; those must not be spoofable.
func (in *Inbound) effectiveMethod(r *http.Request, form url.Values) string {
	override := form.Get(in.methodParam)
	if override == "" {
		override = r.Header.Get(methodOverrideHeader)
	}
	if override == "" {
		return r.Method
	}

	override = strings.ToUpper(override)
	switch override {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return r.Method
	}
	return override
}

// extractCookies returns the request cookies in the active mode: raw
// passthrough, or integrity-validated with silent dropping of values
// that fail the check.
func (in *Inbound) extractCookies(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, c := range r.Cookies() {
		raw, err := url.QueryUnescape(c.Value)
		if err != nil {
			raw = c.Value
		}
		if !in.validateCookies {
			out[c.Name] = raw
			continue
		}
		if value, ok := in.codec.Validate(c.Name, raw); ok {
			out[c.Name] = value
		}
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func serverParams(r *http.Request) map[string]string {
	return map[string]string{
		"remote_addr": r.RemoteAddr,
		"host":        r.Host,
		"proto":       r.Proto,
		"request_uri": r.RequestURI,
	}
}
