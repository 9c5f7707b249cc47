package memguard

import (
	"errors"
	"math"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
)

// Unlimited is the sentinel limit meaning no memory ceiling is enforced.
const Unlimited = int64(math.MaxInt64)

// ErrBadLimit is returned when a memory limit string cannot be parsed.
var ErrBadLimit = errors.New("memguard: malformed memory limit")

// State reports whether the guard considers the worker healthy.
type State int

const (
	// StateNormal means usage is below the recycle threshold.
	StateNormal State = iota
	// StateOverThreshold means usage crossed the threshold and the caller
	// should recycle the worker. The guard is advisory: it never enforces.
	StateOverThreshold
)

// Guard tracks the worker's memory ceiling and decides when the worker
// should be cycled. It also force-discards output buffers that handler
// code left open.
type Guard struct {
	mu     sync.Mutex
	limit  int64
	recalc bool
	state  State

	usage  func() int64
	derive func() int64
}

// Option configures the Guard.
type Option func(*Guard)

// WithLimit sets the memory ceiling in bytes.
// Non-positive values mark the limit for re-derivation on next read.
func WithLimit(n int64) Option {
	return func(g *Guard) {
		g.setLimitLocked(n)
	}
}

// WithLimitString sets the memory ceiling from a limit string such as
// "128M" or "unlimited". Malformed strings are ignored.
func WithLimitString(s string) Option {
	return func(g *Guard) {
		if n, err := ParseLimit(s); err == nil {
			g.setLimitLocked(n)
		}
	}
}

// WithUsageFunc overrides the memory usage source. Used in tests.
func WithUsageFunc(fn func() int64) Option {
	return func(g *Guard) {
		if fn != nil {
			g.usage = fn
		}
	}
}

// WithDeriveFunc overrides how the limit is re-derived from the runtime
// when a non-positive limit was set. Used in tests.
func WithDeriveFunc(fn func() int64) Option {
	return func(g *Guard) {
		if fn != nil {
			g.derive = fn
		}
	}
}

// New creates a Guard. Without options the limit is re-derived from the
// runtime's reported soft memory limit on first read.
func New(opts ...Option) *Guard {
	g := &Guard{
		recalc: true,
		usage:  heapUsage,
		derive: runtimeLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseLimit parses a memory limit string. Suffixes K, M and G are
// accepted case-insensitively as binary multiples. The values "-1" and
// "unlimited" map to Unlimited.
func ParseLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadLimit
	}
	if strings.EqualFold(s, "unlimited") {
		return Unlimited, nil
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrBadLimit
	}
	if n < 0 {
		return Unlimited, nil
	}
	return n * mult, nil
}

// MemoryLimit returns the configured ceiling in bytes, re-deriving it
// from the runtime first if a recalculation is pending.
func (g *Guard) MemoryLimit() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.recalc {
		g.limit = g.derive()
		if g.limit <= 0 {
			g.limit = Unlimited
		}
		g.recalc = false
	}
	return g.limit
}

// SetMemoryLimit sets the ceiling in bytes. A non-positive value marks
// the limit for lazy re-derivation instead of recalculating eagerly, so
// repeated sets do not pay repeated runtime calls.
func (g *Guard) SetMemoryLimit(n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setLimitLocked(n)
}

func (g *Guard) setLimitLocked(n int64) {
	if n <= 0 {
		g.recalc = true
		return
	}
	g.limit = n
	g.recalc = false
}

// Clean reports whether the worker should be recycled: true when current
// usage reached 90% of the ceiling, boundary inclusive. The decision is
// advisory; the guard never terminates anything itself.
func (g *Guard) Clean() bool {
	limit := g.MemoryLimit()

	g.mu.Lock()
	defer g.mu.Unlock()

	if limit == Unlimited {
		g.state = StateNormal
		return false
	}

	// limit - limit/10 is the smallest integer >= 0.9*limit.
	if g.usage() >= limit-limit/10 {
		g.state = StateOverThreshold
		return true
	}
	g.state = StateNormal
	return false
}

// State returns the result of the most recent Clean call.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ClearOutput force-discards every buffer still open on the stack and
// returns how many were dropped. A handler that opened a capture buffer
// and then panicked would otherwise corrupt the next request's output.
func (g *Guard) ClearOutput(s *BufferStack) int {
	if s == nil {
		return 0
	}
	return s.DiscardAll()
}

func heapUsage() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Alloc)
}

// runtimeLimit reads the soft memory limit currently set on the Go
// runtime without changing it.
func runtimeLimit() int64 {
	return debug.SetMemoryLimit(-1)
}
