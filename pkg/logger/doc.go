// Package logger provides slog-based logging for worker processes.
//
// New returns a JSON logger with a component attribute and optional
// context extractors that pull request-scoped values (request IDs,
// worker IDs) into every entry at log time. NewWithSentry mirrors the
// same stream to Sentry when a DSN is configured, and Flush drains
// buffered events, which matters in long-lived workers that may be
// recycled at any point between requests.
package logger
