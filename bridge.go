package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/freshwire/bridge/internal"
	"github.com/freshwire/bridge/pkg/config"
	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/logger"
	"github.com/freshwire/bridge/pkg/memguard"
	"github.com/freshwire/bridge/pkg/pool"
	"github.com/freshwire/bridge/pkg/session"
)

// Type aliases - public API
type (
	// App is a long-lived worker serving requests sequentially with
	// full state isolation between them.
	App = internal.App

	// Scope is the per-request state container.
	Scope = internal.Scope

	// State identifies the phase of the worker lifecycle.
	State = internal.State

	// Option configures a worker.
	Option = internal.Option

	// Hooks are overridable extension points in the request lifecycle.
	Hooks = internal.Hooks

	// Registry holds persistent and request-scoped components.
	Registry = internal.Registry

	// ComponentFactory builds a component instance.
	ComponentFactory = internal.ComponentFactory

	// Emitter dispatches named lifecycle events.
	Emitter = internal.Emitter

	// Subscription is a handle to an attached event handler.
	Subscription = internal.Subscription

	// EventHandler receives the request scope when its event fires.
	EventHandler = internal.EventHandler

	// HTTPError carries an HTTP status code with a user-facing message.
	HTTPError = internal.HTTPError

	// SessionOption configures the session manager.
	SessionOption = internal.SessionOption

	// Session represents a user session.
	Session = session.Session

	// SessionStore defines the interface for session persistence.
	SessionStore = session.Store

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor

	// CookieOption configures the cookie codec.
	CookieOption = cookie.Option

	// Config is the worker configuration surface.
	Config = config.Config

	// Pool dispatches requests across a fleet of workers.
	Pool = pool.Pool

	// PoolOption configures a worker pool.
	PoolOption = pool.Option
)

// Lifecycle states.
const (
	StateInit          = internal.StateInit
	StateBeforeRequest = internal.StateBeforeRequest
	StateHandling      = internal.StateHandling
	StateAfterRequest  = internal.StateAfterRequest
	StateEnd           = internal.StateEnd
)

// Lifecycle event names.
const (
	EventBeforeRequest = internal.EventBeforeRequest
	EventAfterRequest  = internal.EventAfterRequest
)

// Constructors

// New creates a worker with the given options. The worker bootstraps
// lazily on its first request.
//
// Example:
//
//	app := bridge.New(
//	    bridge.WithHandler(router),
//	    bridge.WithSessionStore(session.NewMemoryStore()),
//	    bridge.WithMemoryLimit("256M"),
//	)
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// NewPool creates a worker pool whose workers are built from the given
// option set. Every worker gets an independent component registry and
// event dispatcher.
//
// Example:
//
//	p := bridge.NewPool(4, bridge.WithHandler(router))
//	err := bridge.Run(":8080", p)
func NewPool(size int, opts ...Option) *Pool {
	return pool.New(func() (pool.Worker, error) {
		return internal.New(opts...), nil
	}, pool.WithSize(size))
}

// FromContext returns the request scope stored in the context by the
// worker, or nil outside a request.
func FromContext(ctx context.Context) *Scope {
	return internal.FromContext(ctx)
}

// Worker options

// WithHandler sets the application handler dispatched for every request.
func WithHandler(h http.Handler) Option {
	return internal.WithHandler(h)
}

// WithLogger sets the worker logger.
func WithLogger(log *slog.Logger) Option {
	return internal.WithLogger(log)
}

// WithLogFlusher registers a function draining buffered log targets.
func WithLogFlusher(flush func()) Option {
	return internal.WithLogFlusher(flush)
}

// WithFlushLogsPerRequest flushes log targets after every request.
func WithFlushLogsPerRequest(enabled bool) Option {
	return internal.WithFlushLogsPerRequest(enabled)
}

// WithCookieCodec sets the codec used to validate inbound cookies and
// sign outbound ones.
//
// Example:
//
//	bridge.WithCookieCodec(cookie.New(
//	    cookie.WithValidationKey(os.Getenv("COOKIE_KEY")),
//	))
func WithCookieCodec(c *cookie.Codec) Option {
	return internal.WithCookieCodec(c)
}

// WithSessionStore enables server-side sessions backed by the given
// store (e.g. session.NewMemoryStore, session.NewRedisStore,
// session.NewPostgresStore).
func WithSessionStore(store SessionStore, opts ...SessionOption) Option {
	return internal.WithSessionStore(store, opts...)
}

// WithSessionCookieName sets the session cookie name. Defaults to "__sid".
func WithSessionCookieName(name string) SessionOption {
	return internal.WithSessionCookieName(name)
}

// WithSessionMaxAge sets the session lifetime in seconds. Defaults to
// 30 days.
func WithSessionMaxAge(seconds int) SessionOption {
	return internal.WithSessionMaxAge(seconds)
}

// WithMemoryLimit caps the worker's memory usage at the given limit
// string ("128M", "2G", "unlimited"). The worker asks to be recycled
// once usage reaches 90% of the limit.
func WithMemoryLimit(limit string) Option {
	return internal.WithMemoryGuard(memguard.New(memguard.WithLimitString(limit)))
}

// WithMemoryGuard replaces the default memory guard.
func WithMemoryGuard(g *memguard.Guard) Option {
	return internal.WithMemoryGuard(g)
}

// WithPersistentComponent registers a singleton exempt from
// per-request recreation.
func WithPersistentComponent(id string, component any) Option {
	return internal.WithPersistentComponent(id, component)
}

// WithScopedComponent registers a factory rebuilt before every request.
func WithScopedComponent(id string, factory ComponentFactory) Option {
	return internal.WithScopedComponent(id, factory)
}

// WithPersistentIDs promotes scoped component IDs to the persistent pool.
func WithPersistentIDs(ids ...string) Option {
	return internal.WithPersistentIDs(ids...)
}

// WithBootstrap appends a bootstrap function. Bootstraps run exactly
// once, before the worker's first request.
func WithBootstrap(fn func(ctx context.Context, r *Registry) error) Option {
	return internal.WithBootstrap(fn)
}

// WithDebug toggles stack traces and server-parameter dumps in error
// responses.
func WithDebug(debug bool) Option {
	return internal.WithDebug(debug)
}

// WithMethodParam sets the body field checked for a method override.
// Defaults to "_method".
func WithMethodParam(name string) Option {
	return internal.WithMethodParam(name)
}

// WithHooks installs lifecycle hook overrides.
func WithHooks(h Hooks) Option {
	return internal.WithHooks(h)
}

// FromConfig derives worker options from a loaded configuration.
//
// Example:
//
//	cfg, err := config.Load("worker.yaml")
//	app := bridge.New(bridge.FromConfig(cfg), bridge.WithHandler(router))
func FromConfig(cfg *Config) Option {
	return internal.FromConfig(cfg)
}

// Component retrieves a registry component by ID with a typed result.
//
// Example:
//
//	cache, ok := bridge.Component[*redis.Client](s, "cache")
func Component[T any](s *Scope, id string) (T, bool) {
	raw, ok := s.Component(id)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return typed, ok
}

// Error constructors

// NewHTTPError creates an HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...internal.HTTPErrorOption) *HTTPError {
	return internal.NewHTTPError(code, message, opts...)
}

// Session errors for checking return values.
var (
	ErrSessionNotConfigured = session.ErrNotConfigured
	ErrSessionNotFound      = session.ErrNotFound
	ErrSessionExpired       = session.ErrExpired
	ErrSessionInvalidToken  = session.ErrInvalidToken
)

// SessionValue retrieves a typed session value.
//
// Example:
//
//	theme, err := bridge.SessionValue[string](sess, "theme")
func SessionValue[T any](sess *Session, key string) (T, error) {
	return session.Value[T](sess, key)
}

// SessionValueOr returns a default when the key is missing or holds a
// different type.
func SessionValueOr[T any](sess *Session, key string, defaultVal T) T {
	return session.ValueOr(sess, key, defaultVal)
}

// Run starts an HTTP server in front of the worker pool and blocks
// until shutdown. The pool starts before the listener opens and drains
// during graceful shutdown.
//
// Example:
//
//	p := bridge.NewPool(4, bridge.WithHandler(router))
//	err := bridge.Run(":8080", p, bridge.Logger(log))
func Run(addr string, p *Pool, opts ...RunOption) error {
	cfg := internal.RuntimeConfig{
		Address:       addr,
		Handler:       p,
		StartupHooks:  []func(context.Context) error{p.StartFunc()},
		ShutdownHooks: []func(context.Context) error{p.ShutdownFunc()},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return internal.RunServer(cfg)
}

// RunOption configures the server runtime.
type RunOption func(*internal.RuntimeConfig)

// Handler overrides the handler the server mounts. Use it to route
// some paths (health probes, metrics) around the worker pool; the
// pool's start and shutdown hooks still run.
func Handler(h http.Handler) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		if h != nil {
			cfg.Handler = h
		}
	}
}

// Logger sets the server logger.
func Logger(l *slog.Logger) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		cfg.Logger = l
	}
}

// ShutdownTimeout sets the timeout for graceful shutdown. Defaults to
// 30 seconds.
func ShutdownTimeout(d time.Duration) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		cfg.ShutdownTimeout = d
	}
}

// StartupHook registers a function to run during server startup, after
// the pool starts but before the listener opens.
func StartupHook(fn func(context.Context) error) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		cfg.StartupHooks = append(cfg.StartupHooks, fn)
	}
}

// ShutdownHook registers a cleanup function to run during shutdown.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		cfg.ShutdownHooks = append(cfg.ShutdownHooks, fn)
	}
}

// WithContext sets a custom base context for signal handling.
func WithContext(ctx context.Context) RunOption {
	return func(cfg *internal.RuntimeConfig) {
		cfg.BaseCtx = ctx
	}
}
