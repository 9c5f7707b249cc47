package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/freshwire/bridge/pkg/config"
	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/memguard"
	"github.com/freshwire/bridge/pkg/session"
)

// Option configures an App.
type Option func(*App)

// WithHandler sets the application handler dispatched for every
// request. Any http.Handler works; chi routers are the common case.
func WithHandler(h http.Handler) Option {
	return func(a *App) {
		a.handler = h
	}
}

// WithLogger sets the worker logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		if log != nil {
			a.logger = log
		}
	}
}

// WithLogFlusher registers a function draining buffered log targets.
// When flush-per-request is enabled it runs after every request.
func WithLogFlusher(flush func()) Option {
	return func(a *App) {
		a.flushLogs = flush
	}
}

// WithFlushLogsPerRequest flushes log targets after every request
// instead of only at worker shutdown.
func WithFlushLogsPerRequest(enabled bool) Option {
	return func(a *App) {
		a.flushPerRequest = enabled
	}
}

// WithCookieCodec sets the codec used to validate inbound cookies and
// sign outbound ones.
func WithCookieCodec(c *cookie.Codec) Option {
	return func(a *App) {
		if c != nil {
			a.codec = c
		}
	}
}

// WithSessionStore enables sessions backed by the given store.
func WithSessionStore(store session.Store, opts ...SessionOption) Option {
	return func(a *App) {
		a.sessions = NewSessionManager(store, opts...)
	}
}

// WithMemoryGuard replaces the default memory guard.
func WithMemoryGuard(g *memguard.Guard) Option {
	return func(a *App) {
		if g != nil {
			a.guard = g
		}
	}
}

// WithPersistentComponent registers a singleton exempt from
// per-request recreation.
func WithPersistentComponent(id string, component any) Option {
	return func(a *App) {
		a.registry.SetPersistent(id, component)
	}
}

// WithScopedComponent registers a factory rebuilt before every request.
func WithScopedComponent(id string, factory ComponentFactory) Option {
	return func(a *App) {
		a.registry.SetScoped(id, factory)
	}
}

// WithPersistentIDs promotes scoped component IDs to the persistent
// pool, matching the persistent_components configuration list.
func WithPersistentIDs(ids ...string) Option {
	return func(a *App) {
		a.registry.Promote(ids...)
	}
}

// WithBootstrap appends a bootstrap function. Bootstraps run exactly
// once, before the worker's first request, in registration order.
func WithBootstrap(fn func(ctx context.Context, r *Registry) error) Option {
	return func(a *App) {
		if fn != nil {
			a.bootstraps = append(a.bootstraps, fn)
		}
	}
}

// WithDebug toggles stack traces and server-parameter dumps in error
// responses.
func WithDebug(debug bool) Option {
	return func(a *App) {
		a.debug = debug
	}
}

// WithMethodParam sets the body field checked for a method override.
func WithMethodParam(name string) Option {
	return func(a *App) {
		if name != "" {
			a.methodParam = name
		}
	}
}

// WithHooks installs lifecycle hook overrides.
func WithHooks(h Hooks) Option {
	return func(a *App) {
		a.hooks = h
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// FromConfig derives options from a loaded configuration: memory
// limit, persistent component IDs, cookie validation, session cookie
// name, method override field, debug, and per-request log flushing.
func FromConfig(cfg *config.Config) Option {
	return func(a *App) {
		if cfg == nil {
			return
		}
		if cfg.MemoryLimit != "" {
			WithMemoryGuard(memguard.New(memguard.WithLimitString(cfg.MemoryLimit)))(a)
		}
		if len(cfg.PersistentComponents) > 0 {
			a.registry.Promote(cfg.PersistentComponents...)
		}
		if cfg.CookieValidationKey != "" {
			a.codec = cookie.New(cookie.WithValidationKey(cfg.CookieValidationKey))
		}
		if cfg.MethodParam != "" {
			a.methodParam = cfg.MethodParam
		}
		a.sessionCookieName = cfg.SessionCookie
		a.debug = cfg.Debug
		a.flushPerRequest = cfg.FlushLogs
	}
}

// Hooks are overridable extension points in the request lifecycle.
// Nil hooks are skipped. An error from a hook aborts the request
// through the error boundary.
type Hooks struct {
	// AfterAttach runs once the inbound request has been converted and
	// the scope assembled, before component rebuild.
	AfterAttach func(s *Scope) error

	// BeforeFinalize runs after dispatch, before session finalization
	// and the after-request event.
	BeforeFinalize func(s *Scope) error

	// OnTerminate runs when the worker shuts down.
	OnTerminate func()
}
