package httpconv

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/freshwire/bridge/pkg/cookie"
)

// ErrBadStream is returned when a byte-range stream descriptor is
// malformed or cannot be read in full.
var ErrBadStream = errors.New("httpconv: malformed stream descriptor")

// Outbound converts internal responses to the wire. It is stateless
// and safe to reuse across requests.
type Outbound struct {
	codec *cookie.Codec
	now   func() time.Time
}

// OutboundOption configures the Outbound converter.
type OutboundOption func(*Outbound)

// WithCookieCodec sets the codec used to format and sign response
// cookies. Without it cookies are emitted unsigned with bare defaults.
func WithCookieCodec(codec *cookie.Codec) OutboundOption {
	return func(out *Outbound) {
		if codec != nil {
			out.codec = codec
		}
	}
}

// WithOutboundClock overrides the time source. Used in tests.
func WithOutboundClock(now func() time.Time) OutboundOption {
	return func(out *Outbound) {
		if now != nil {
			out.now = now
		}
	}
}

// NewOutbound creates an Outbound converter.
func NewOutbound(opts ...OutboundOption) *Outbound {
	out := &Outbound{
		codec: cookie.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Write renders the internal response onto the wire: status, headers
// with multi-value preservation, Set-Cookie lines, and the body (direct
// content or a byte-range file stream). Stream descriptors are validated
// before the status line is committed, and the file handle is closed on
// every path.
func (out *Outbound) Write(w http.ResponseWriter, resp *Response) error {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	now := out.now()
	for _, ck := range resp.Cookies {
		line, err := out.codec.Format(ck, now)
		if err != nil {
			return err
		}
		w.Header().Add("Set-Cookie", line)
	}

	if resp.Stream != nil {
		return out.writeStream(w, resp)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return err
		}
	}
	return nil
}

// writeStream streams the inclusive byte range [Begin, End] from the
// file handle. The handle is closed before any error propagates.
func (out *Outbound) writeStream(w http.ResponseWriter, resp *Response) (err error) {
	s := resp.Stream
	if s.Handle == nil {
		return fmt.Errorf("%w: nil file handle", ErrBadStream)
	}
	defer func() {
		if cerr := s.Handle.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if s.Begin < 0 {
		return fmt.Errorf("%w: begin %d is negative", ErrBadStream, s.Begin)
	}
	if s.End < s.Begin {
		return fmt.Errorf("%w: end %d before begin %d", ErrBadStream, s.End, s.Begin)
	}

	if _, err := s.Handle.Seek(s.Begin, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", ErrBadStream, s.Begin, err)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	length := s.End - s.Begin + 1
	n, err := io.CopyN(w, s.Handle, length)
	if err != nil {
		return fmt.Errorf("%w: read %d of %d bytes: %v", ErrBadStream, n, length, err)
	}
	return nil
}
