package internal

// State identifies the phase of the worker lifecycle. A worker moves
// from StateInit through the per-request phases and back, cycling
// between StateBeforeRequest and StateEnd for every request it serves.
type State int32

const (
	// StateInit is the phase before the first request: the worker has
	// been constructed but not bootstrapped.
	StateInit State = iota

	// StateBeforeRequest covers request conversion, component rebuild,
	// and session loading, up to the before-request event.
	StateBeforeRequest

	// StateHandling covers application dispatch.
	StateHandling

	// StateAfterRequest covers session finalization, the after-request
	// event, and response writing.
	StateAfterRequest

	// StateEnd is the idle phase between requests, after cleanup.
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBeforeRequest:
		return "before_request"
	case StateHandling:
		return "handling"
	case StateAfterRequest:
		return "after_request"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Lifecycle event names emitted by the orchestrator.
const (
	EventBeforeRequest = "app.beforeRequest"
	EventAfterRequest  = "app.afterRequest"
)
