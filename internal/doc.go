// Package internal contains the worker orchestrator: the lifecycle
// state machine, per-request scope, component registry, event ledger,
// session handling, and the error boundary. The public API lives in the
// root bridge package, which re-exports the types defined here.
package internal
