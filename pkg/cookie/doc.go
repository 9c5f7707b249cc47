// Package cookie provides keyed-integrity cookie handling for long-lived
// worker processes.
//
// The Codec signs cookie values with HMAC-SHA256 over a payload that
// embeds the cookie name, so a valid value cannot be replayed under a
// different cookie. Validation intentionally fails soft: a tampered or
// malformed value is reported as absent rather than raised as an error,
// because optional cookies must degrade gracefully.
//
// The Codec also formats outbound cookies into RFC 6265 Set-Cookie
// lines, handling the expiry conventions of the bridged application:
// a zero expiry means a session cookie (no Expires/Max-Age attributes),
// and a cookie that is already expired is emitted unsigned since a
// deletion marker protects nothing.
//
// Example:
//
//	codec := cookie.New(cookie.WithValidationKey(secret))
//	line, err := codec.Format(cookie.Cookie{Name: "theme", Value: "dark"}, time.Now())
package cookie
