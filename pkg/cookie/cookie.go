package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Errors.
var (
	ErrNoKey    = errors.New("cookie: validation key required")
	ErrBadKey   = errors.New("cookie: validation key must be 32+ bytes")
	ErrBadValue = errors.New("cookie: malformed cookie value")
)

// Codec signs and validates cookie values with a keyed HMAC and formats
// outbound cookies into Set-Cookie header lines.
//
// Validation is integrity checking, not encryption: the signed payload
// embeds the cookie name so a valid value cannot be replayed under a
// different name. Invalid values are reported as absent rather than as
// errors; call sites rely on graceful degradation for optional cookies.
type Codec struct {
	key      []byte // nil = validation disabled
	domain   string
	path     string
	sameSite string
	secure   bool
	httpOnly bool
}

// Option configures the Codec.
type Option func(*Codec)

// New creates a cookie Codec with the given options.
func New(opts ...Option) *Codec {
	c := &Codec{
		path:     "/",
		httpOnly: true,
		sameSite: "Lax",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithValidationKey sets the key used for signing and validation.
// Must be at least 32 bytes; shorter keys are ignored.
func WithValidationKey(key string) Option {
	return func(c *Codec) {
		if len(key) >= 32 {
			c.key = []byte(key)
		}
	}
}

// WithDomain sets the default cookie domain.
func WithDomain(domain string) Option {
	return func(c *Codec) {
		c.domain = domain
	}
}

// WithPath sets the default cookie path.
func WithPath(path string) Option {
	return func(c *Codec) {
		c.path = path
	}
}

// WithSecure sets the default Secure flag.
func WithSecure(secure bool) Option {
	return func(c *Codec) {
		c.secure = secure
	}
}

// WithHTTPOnly sets the default HttpOnly flag.
func WithHTTPOnly(httpOnly bool) Option {
	return func(c *Codec) {
		c.httpOnly = httpOnly
	}
}

// WithSameSite sets the default SameSite attribute.
func WithSameSite(ss string) Option {
	return func(c *Codec) {
		c.sameSite = ss
	}
}

// ValidationEnabled reports whether a validation key is configured.
func (c *Codec) ValidationEnabled() bool {
	return c.key != nil
}

// Sign returns the transport encoding of value for the named cookie:
// base64(payload).base64(signature), where the payload embeds the name.
// Returns ErrNoKey if no validation key is configured.
func (c *Codec) Sign(name, value string) (string, error) {
	if c.key == nil {
		return "", ErrNoKey
	}

	payload, err := json.Marshal([2]string{name, value})
	if err != nil {
		return "", fmt.Errorf("cookie: encode payload: %w", err)
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Validate checks a transport value received under the given cookie
// name. It returns the original value and true on success. Tampered
// values, malformed encodings, and payloads whose embedded name does not
// match the transport name all report absent (false), never an error.
func (c *Codec) Validate(name, raw string) (string, bool) {
	if c.key == nil {
		return "", false
	}

	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return "", false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", false
	}

	var decoded [2]string
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}
	if decoded[0] != name {
		return "", false
	}
	return decoded[1], true
}

// Cookie is an outbound cookie before wire formatting. Zero-valued
// attributes fall back to the Codec defaults; a zero Expires means a
// session cookie.
type Cookie struct {
	Expires  time.Time
	Name     string
	Value    string
	Path     string
	Domain   string
	SameSite string
	Secure   bool
	HTTPOnly bool
}

// NormalizeExpiry converts the accepted expiry representations into a
// time.Time: int/int64 Unix seconds (0 = session cookie, zero time),
// a date string (RFC 3339 or RFC 1123), or a time.Time passed through.
func NormalizeExpiry(v any) (time.Time, error) {
	switch e := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return e, nil
	case int:
		return unixExpiry(int64(e)), nil
	case int64:
		return unixExpiry(e), nil
	case string:
		if t, err := time.Parse(time.RFC3339, e); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC1123, e); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("%w: unparseable expiry %q", ErrBadValue, e)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported expiry type %T", ErrBadValue, v)
	}
}

func unixExpiry(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// cookieDateLayout is the RFC 6265 cookie date layout (RFC 1123 with a
// literal "GMT" zone).
const cookieDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Format renders the cookie as a Set-Cookie header value. The name and
// value are URL-encoded. When a validation key is configured the value
// is signed, except for cookies already expired at now: a deletion
// cookie carries nothing worth protecting.
func (c *Codec) Format(ck Cookie, now time.Time) (string, error) {
	value := ck.Value
	session := ck.Expires.IsZero()

	if c.key != nil && (session || !ck.Expires.Before(now)) {
		signed, err := c.Sign(ck.Name, ck.Value)
		if err != nil {
			return "", err
		}
		value = signed
	}

	var b strings.Builder
	b.WriteString(url.QueryEscape(ck.Name))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))

	if !session {
		b.WriteString("; Expires=")
		b.WriteString(ck.Expires.UTC().Format(cookieDateLayout))
		maxAge := int64(ck.Expires.Sub(now) / time.Second)
		if maxAge < 0 {
			maxAge = 0
		}
		fmt.Fprintf(&b, "; Max-Age=%d", maxAge)
	}

	if path := firstNonEmpty(ck.Path, c.path); path != "" {
		b.WriteString("; Path=")
		b.WriteString(path)
	}
	if domain := firstNonEmpty(ck.Domain, c.domain); domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(domain)
	}
	if ck.Secure || c.secure {
		b.WriteString("; Secure")
	}
	if ck.HTTPOnly || c.httpOnly {
		b.WriteString("; HttpOnly")
	}
	if ss := firstNonEmpty(ck.SameSite, c.sameSite); ss != "" {
		b.WriteString("; SameSite=")
		b.WriteString(ss)
	}

	return b.String(), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
