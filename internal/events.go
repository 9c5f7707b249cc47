package internal

import "sync"

// EventHandler receives the request scope when its event fires.
type EventHandler func(s *Scope)

// Subscription is a handle to an attached event handler. Detaching an
// already-detached subscription is a no-op.
type Subscription struct {
	emitter  *Emitter
	event    string
	handler  EventHandler
	onDetach func()
	active   bool
}

// Detach removes the handler from its emitter. Safe to call more than
// once.
func (sub *Subscription) Detach() {
	if sub == nil || !sub.active {
		return
	}
	sub.active = false
	if sub.onDetach != nil {
		sub.onDetach()
	}
	sub.emitter.remove(sub)
}

// Emitter is a named-event dispatcher. Handlers attached while a ledger
// is armed are recorded so the orchestrator can unwind them after the
// request, keeping subscriptions made during one request from leaking
// into the next.
type Emitter struct {
	mu       sync.Mutex
	handlers map[string][]*Subscription
	ledger   *Ledger
}

// NewEmitter creates an empty event dispatcher.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]*Subscription)}
}

// Subscribe attaches a handler to the named event and returns its
// subscription. When a ledger is armed the subscription is recorded in
// it.
func (e *Emitter) Subscribe(event string, fn EventHandler) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{emitter: e, event: event, handler: fn, active: true}
	e.handlers[event] = append(e.handlers[event], sub)
	if e.ledger != nil {
		e.ledger.record(sub)
	}
	return sub
}

// Emit invokes every active handler attached to the named event in
// subscription order.
func (e *Emitter) Emit(event string, s *Scope) {
	e.mu.Lock()
	subs := make([]*Subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.mu.Unlock()

	for _, sub := range subs {
		if sub.active {
			sub.handler(s)
		}
	}
}

// Arm installs the ledger that will record subsequent subscriptions.
func (e *Emitter) Arm(l *Ledger) {
	e.mu.Lock()
	e.ledger = l
	e.mu.Unlock()
}

// Disarm stops recording subscriptions.
func (e *Emitter) Disarm() {
	e.mu.Lock()
	e.ledger = nil
	e.mu.Unlock()
}

func (e *Emitter) remove(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[sub.event]
	for i, candidate := range subs {
		if candidate == sub {
			e.handlers[sub.event] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Ledger records the subscriptions made during a single request so they
// can be unwound afterwards. Unwinding runs in reverse attachment order
// and tolerates handlers that detached themselves mid-request.
type Ledger struct {
	mu   sync.Mutex
	subs []*Subscription
}

// NewLedger creates an empty subscription ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) record(sub *Subscription) {
	l.mu.Lock()
	l.subs = append(l.subs, sub)
	l.mu.Unlock()
}

// Len reports the number of recorded subscriptions, detached or not.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// UnwindAll detaches every recorded subscription, newest first, and
// empties the ledger. It reports how many were still attached.
func (l *Ledger) UnwindAll() int {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	detached := 0
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i].active {
			detached++
		}
		subs[i].Detach()
	}
	return detached
}
