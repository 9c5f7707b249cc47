package internal

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/freshwire/bridge/pkg/cookie"
	"github.com/freshwire/bridge/pkg/httpconv"
	"github.com/freshwire/bridge/pkg/logger"
	"github.com/freshwire/bridge/pkg/memguard"
	"github.com/freshwire/bridge/pkg/upload"
)

// App is a worker: a long-lived application instance serving requests
// sequentially. Between requests it tears down everything
// request-scoped: components are rebuilt from factories, event
// subscriptions unwound, uploaded-file registrations dropped, output
// buffers discarded. Persistent components and bootstrap effects are
// the only state that crosses the request boundary.
//
// An App is not safe for concurrent Handle calls; the pool dispatches
// one request at a time to each worker.
type App struct {
	registry   *Registry
	events     *Emitter
	guard      *memguard.Guard
	codec      *cookie.Codec
	sessions   *SessionManager
	handler    http.Handler
	logger     *slog.Logger
	inbound    *httpconv.Inbound
	outbound   *httpconv.Outbound
	hooks      Hooks
	bootstraps []func(ctx context.Context, r *Registry) error
	now        func() time.Time

	methodParam       string
	sessionCookieName string
	debug             bool
	flushPerRequest   bool
	flushLogs         func()

	state        atomic.Int32
	served       atomic.Int64
	bootstrapped bool
	bootstrapErr error
	recycle      atomic.Bool
}

// New creates a worker with the given options. The worker bootstraps
// lazily on its first request.
func New(opts ...Option) *App {
	a := &App{
		registry:    NewRegistry(),
		events:      NewEmitter(),
		guard:       memguard.New(),
		codec:       cookie.New(),
		logger:      logger.NewNope(),
		now:         time.Now,
		methodParam: "_method",
	}
	for _, opt := range opts {
		opt(a)
	}

	inboundOpts := []httpconv.InboundOption{
		httpconv.WithMethodParam(a.methodParam),
		httpconv.WithClock(a.now),
	}
	if a.codec.ValidationEnabled() {
		inboundOpts = append(inboundOpts, httpconv.WithCookieValidation(a.codec))
	}
	a.inbound = httpconv.NewInbound(inboundOpts...)
	a.outbound = httpconv.NewOutbound(
		httpconv.WithCookieCodec(a.codec),
		httpconv.WithOutboundClock(a.now),
	)

	if a.sessions != nil && a.sessionCookieName != "" {
		a.sessions.cookieName = a.sessionCookieName
	}

	a.state.Store(int32(StateInit))
	return a
}

// State returns the current lifecycle phase.
func (a *App) State() State {
	return State(a.state.Load())
}

// Served returns the number of requests this worker has completed.
func (a *App) Served() int64 {
	return a.served.Load()
}

// ShouldRecycle reports whether the worker has asked to be replaced,
// either because the memory guard crossed its threshold or because
// bootstrap failed. The signal is advisory: the worker keeps serving
// if the pool ignores it.
func (a *App) ShouldRecycle() bool {
	return a.recycle.Load()
}

// Events returns the worker's event dispatcher. Subscriptions made
// outside a request survive across requests; subscriptions made during
// a request are unwound when it ends.
func (a *App) Events() *Emitter {
	return a.events
}

// Registry returns the worker's component registry.
func (a *App) Registry() *Registry {
	return a.registry
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.Handle(w, r)
}

// Handle runs the full request lifecycle: bootstrap (first request
// only), request conversion, component rebuild, session load, the
// before-request event, dispatch, session finalization, the
// after-request event, response write, and cleanup. Cleanup runs
// unconditionally, so a failing request cannot leak state into the
// next one.
func (a *App) Handle(w http.ResponseWriter, r *http.Request) {
	a.state.Store(int32(StateBeforeRequest))

	scope := &Scope{
		id:         newRequestID(),
		startedAt:  a.now(),
		response:   httpconv.NewResponse(),
		files:      upload.NewRegistry(),
		components: a.registry,
		sessions:   a.sessions,
	}
	scope.logger = a.logger.With(slog.String("request_id", scope.id))

	ledger := NewLedger()
	a.events.Arm(ledger)

	defer func() {
		a.events.Disarm()
		ledger.UnwindAll()
		a.guard.ClearOutput(scope.response.Buffers)
		a.registry.Reset()
		if a.guard.Clean() {
			a.recycle.Store(true)
		}
		if a.flushPerRequest && a.flushLogs != nil {
			a.flushLogs()
		}
		a.served.Add(1)
		a.state.Store(int32(StateEnd))
	}()

	if err := a.bootstrap(r.Context()); err != nil {
		scope.request = &httpconv.Request{Params: map[string]string{}}
		a.renderError(scope, ErrServiceUnavailable("worker bootstrap failed", WithError(err)))
		a.write(w, scope)
		return
	}

	req, err := a.inbound.Convert(r, scope.files)
	if err != nil {
		scope.request = &httpconv.Request{Params: map[string]string{}}
		a.renderError(scope, ErrBadRequest("malformed request", WithError(err)))
		a.write(w, scope)
		return
	}
	scope.request = req
	scope.ctx = withScope(r.Context(), scope)

	if err := a.runLifecycle(scope, r); err != nil {
		a.renderError(scope, err)
	}

	a.write(w, scope)
}

// runLifecycle executes the phases between attach and response write.
// The first error short-circuits to the error boundary.
func (a *App) runLifecycle(s *Scope, r *http.Request) error {
	if a.hooks.AfterAttach != nil {
		if err := a.hooks.AfterAttach(s); err != nil {
			return err
		}
	}

	if err := a.registry.Rebuild(); err != nil {
		return ErrServiceUnavailable("component rebuild failed", WithError(err))
	}

	if a.sessions != nil {
		sess, err := a.sessions.Load(s.ctx, s.request.Cookies)
		if err != nil {
			return ErrInternal("session load failed", WithError(err))
		}
		s.session = sess
	}

	a.events.Emit(EventBeforeRequest, s)

	a.state.Store(int32(StateHandling))
	if err := a.dispatch(s, r); err != nil {
		a.state.Store(int32(StateAfterRequest))
		return err
	}
	a.state.Store(int32(StateAfterRequest))

	if a.hooks.BeforeFinalize != nil {
		if err := a.hooks.BeforeFinalize(s); err != nil {
			return err
		}
	}

	if a.sessions != nil {
		if err := a.sessions.Finalize(s.ctx, s); err != nil {
			return ErrInternal("session save failed", WithError(err))
		}
	}

	a.events.Emit(EventAfterRequest, s)
	return nil
}

// dispatch runs the application handler with panic recovery. The
// handler sees the effective method after override detection and can
// reach the scope through the request context.
func (a *App) dispatch(s *Scope, r *http.Request) (err error) {
	if a.handler == nil {
		return ErrNotFound("Page not found.")
	}

	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()

	r2 := r.WithContext(s.ctx)
	r2.Method = s.request.Method
	r2.Header.Set(httpconv.StartTimeHeader, s.request.Header(httpconv.StartTimeHeader))

	cw := newCaptureWriter(s.response)
	a.handler.ServeHTTP(cw, r2)
	return nil
}

// write sends the assembled response. Write failures cannot be
// reported to the client anymore, so they are only logged.
func (a *App) write(w http.ResponseWriter, s *Scope) {
	a.state.Store(int32(StateAfterRequest))
	if err := a.outbound.Write(w, s.response); err != nil {
		s.logger.Error("response write failed", slog.Any("error", err))
	}
}

// bootstrap runs the registered bootstrap functions exactly once per
// worker. The flag is one-way: a failed bootstrap does not rerun, the
// worker keeps answering 503 until the pool replaces it.
func (a *App) bootstrap(ctx context.Context) error {
	if a.bootstrapped {
		return a.bootstrapErr
	}
	a.bootstrapped = true
	for _, fn := range a.bootstraps {
		if err := fn(ctx, a.registry); err != nil {
			a.bootstrapErr = err
			a.recycle.Store(true)
			return err
		}
	}
	return nil
}

// Terminate runs the terminate hook and drains log targets. The pool
// calls it when retiring a worker.
func (a *App) Terminate() {
	if a.hooks.OnTerminate != nil {
		a.hooks.OnTerminate()
	}
	if a.flushLogs != nil {
		a.flushLogs()
	}
}
