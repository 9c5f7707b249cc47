package internal

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/freshwire/bridge/pkg/httpconv"
)

// renderError converts err into the response body, honoring the format
// the handler selected. A 404 routing miss keeps its status; anything
// else without an HTTPError code becomes a 500. When rendering the
// error itself fails, a minimal fallback body is written so the client
// always gets a response.
func (a *App) renderError(s *Scope, err error) {
	resp := s.response
	resp.Stream = nil
	resp.Body = nil
	resp.Buffers.DiscardAll()

	httpErr := AsHTTPError(err)
	if httpErr == nil {
		httpErr = ErrInternal(http.StatusText(http.StatusInternalServerError), WithError(err))
	}
	if httpErr.RequestID == "" {
		httpErr.RequestID = s.id
	}

	attrs := []any{
		slog.Int("status", httpErr.Code),
		slog.String("message", httpErr.Message),
	}
	if httpErr.Err != nil {
		attrs = append(attrs, slog.Any("error", httpErr.Err))
	}
	if pe, ok := err.(*PanicError); ok {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	s.logger.Error("request failed", attrs...)

	resp.Status = httpErr.Code

	body, renderErr := a.renderErrorBody(s, httpErr, err)
	if renderErr != nil {
		s.logger.Error("error while handling another error", slog.Any("error", renderErr))
		resp.Format = httpconv.FormatRaw
		body = []byte("An internal server error occurred while handling another error.")
	}
	resp.Headers.Set("Content-Type", resp.Format.ContentType())
	resp.Body = body
}

func (a *App) renderErrorBody(s *Scope, httpErr *HTTPError, cause error) ([]byte, error) {
	switch s.response.Format {
	case httpconv.FormatJSON:
		payload := map[string]any{
			"name":    httpErr.StatusText(),
			"message": httpErr.Message,
			"status":  httpErr.Code,
		}
		if payload["message"] == "" {
			payload["message"] = httpErr.StatusText()
		}
		if a.debug {
			payload["request_id"] = httpErr.RequestID
			if pe, ok := cause.(*PanicError); ok {
				payload["trace"] = string(pe.Stack)
			} else if httpErr.Err != nil {
				payload["trace"] = httpErr.Err.Error()
			}
		}
		return json.Marshal(payload)
	case httpconv.FormatRaw:
		msg := httpErr.Message
		if msg == "" {
			msg = httpErr.StatusText()
		}
		return []byte(msg), nil
	default:
		return a.renderErrorHTML(s, httpErr, cause), nil
	}
}

func (a *App) renderErrorHTML(s *Scope, httpErr *HTTPError, cause error) []byte {
	var b strings.Builder
	title := fmt.Sprintf("%d %s", httpErr.Code, httpErr.StatusText())
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html><head><title>%s</title></head><body>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))
	if httpErr.Message != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(httpErr.Message))
	}

	if a.debug {
		if pe, ok := cause.(*PanicError); ok {
			fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(string(pe.Stack)))
		} else if httpErr.Err != nil {
			fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(httpErr.Err.Error()))
		}
		b.WriteString("<h2>Server Parameters</h2>\n<table>\n")
		params := redactParams(s.request.Params)
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>\n",
				html.EscapeString(k), html.EscapeString(params[k]))
		}
		b.WriteString("</table>\n")
	}

	b.WriteString("</body></html>\n")
	return []byte(b.String())
}
