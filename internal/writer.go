package internal

import (
	"net/http"
	"strings"

	"github.com/freshwire/bridge/pkg/httpconv"
)

// captureWriter is an http.ResponseWriter that collects handler output
// into the scope's response object instead of a network connection.
// The outbound adapter writes the real response after the lifecycle
// completes, so cookies queued in finalization still make it out.
type captureWriter struct {
	resp        *httpconv.Response
	wroteHeader bool
}

func newCaptureWriter(resp *httpconv.Response) *captureWriter {
	return &captureWriter{resp: resp}
}

func (cw *captureWriter) Header() http.Header {
	return cw.resp.Headers
}

func (cw *captureWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.resp.Status = status
	cw.syncFormat()
}

func (cw *captureWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	cw.resp.Body = append(cw.resp.Body, p...)
	return len(p), nil
}

// syncFormat derives the response format from the Content-Type the
// handler set, so the error boundary renders in the same shape.
func (cw *captureWriter) syncFormat() {
	ct := cw.resp.Headers.Get("Content-Type")
	switch {
	case strings.Contains(ct, "application/json"):
		cw.resp.Format = httpconv.FormatJSON
	case strings.Contains(ct, "text/html"):
		cw.resp.Format = httpconv.FormatHTML
	case ct != "":
		cw.resp.Format = httpconv.FormatRaw
	}
}
