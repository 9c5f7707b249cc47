// Package pool runs a fleet of sequential workers behind a single
// http.Handler. Each worker serves one request at a time; the pool
// hands an idle worker to each incoming request and replaces workers
// that ask to be recycled.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Worker is a single-request-at-a-time handler with a lifecycle. The
// pool checks ShouldRecycle after every request and swaps the worker
// for a fresh one from the factory when it reports true.
type Worker interface {
	http.Handler

	// ShouldRecycle reports whether the worker wants to be replaced.
	ShouldRecycle() bool

	// Terminate releases the worker's resources. Called once, after
	// the worker's last request.
	Terminate()
}

// Factory builds a new worker.
type Factory func() (Worker, error)

var (
	// ErrNotStarted is returned when the pool serves before Start.
	ErrNotStarted = errors.New("pool: not started")

	// ErrClosed is returned when the pool is shut down.
	ErrClosed = errors.New("pool: closed")
)

const defaultAcquireTimeout = 30 * time.Second

// Pool dispatches requests across a fixed number of workers.
type Pool struct {
	factory        Factory
	log            *slog.Logger
	idle           chan Worker
	size           int
	acquireTimeout time.Duration
	started        atomic.Bool
	closed         atomic.Bool
	recycled       atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets the number of workers. Defaults to 1.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithLogger sets the pool logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// WithAcquireTimeout bounds how long a request waits for an idle
// worker before giving up with 503.
func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.acquireTimeout = d
		}
	}
}

// New creates a pool that builds its workers from factory on Start.
func New(factory Factory, opts ...Option) *Pool {
	p := &Pool{
		factory:        factory,
		log:            slog.New(slog.DiscardHandler),
		size:           1,
		acquireTimeout: defaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start builds the worker fleet. Worker construction runs in parallel;
// the first factory error aborts the start and terminates any workers
// already built.
func (p *Pool) Start(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}

	idle := make(chan Worker, p.size)
	g, _ := errgroup.WithContext(ctx)
	for range p.size {
		g.Go(func() error {
			w, err := p.factory()
			if err != nil {
				return err
			}
			idle <- w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		close(idle)
		for w := range idle {
			w.Terminate()
		}
		return err
	}

	p.idle = idle
	p.started.Store(true)
	p.log.Info("worker pool started", slog.Int("size", p.size))
	return nil
}

// ServeHTTP hands the request to an idle worker. When all workers stay
// busy past the acquire timeout the request fails with 503.
func (p *Pool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.started.Load() || p.closed.Load() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	worker, err := p.acquire(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	defer p.release(worker)

	worker.ServeHTTP(w, r)
}

func (p *Pool) acquire(ctx context.Context) (Worker, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case w := <-p.idle:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}

// release returns the worker to the idle set, replacing it first if it
// asked to be recycled. A failed replacement keeps the old worker in
// rotation so capacity never silently shrinks.
func (p *Pool) release(worker Worker) {
	if !p.closed.Load() && worker.ShouldRecycle() {
		fresh, err := p.factory()
		if err != nil {
			p.log.Error("worker replacement failed, keeping old worker", slog.Any("error", err))
		} else {
			worker.Terminate()
			worker = fresh
			p.recycled.Add(1)
			p.log.Info("worker recycled", slog.Int64("total_recycled", p.recycled.Load()))
		}
	}
	p.idle <- worker
}

// Recycled returns how many workers have been replaced.
func (p *Pool) Recycled() int64 {
	return p.recycled.Load()
}

// Shutdown retires every worker, waiting for in-flight requests to
// finish returning their workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	for drained := 0; drained < p.size; drained++ {
		select {
		case w := <-p.idle:
			w.Terminate()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.log.Info("worker pool stopped")
	return nil
}

// StartFunc adapts Start to a startup hook.
func (p *Pool) StartFunc() func(context.Context) error {
	return p.Start
}

// ShutdownFunc adapts Shutdown to a shutdown hook.
func (p *Pool) ShutdownFunc() func(context.Context) error {
	return p.Shutdown
}
