// Package memguard tracks a long-lived worker's memory ceiling and
// advises the host when the worker should be recycled.
//
// The guard is deliberately advisory. Clean reports true once usage
// reaches 90% of the configured ceiling, but killing or recycling the
// worker is the host's decision. The ceiling can be set directly in
// bytes, parsed from a limit string ("128M", "2G", "unlimited"), or
// re-derived lazily from the runtime's reported soft limit when a
// non-positive value is set.
//
// Example:
//
//	g := memguard.New(memguard.WithLimitString("512M"))
//	if g.Clean() {
//	    // schedule this worker for recycling
//	}
//
// The package also provides BufferStack, a stack of output capture
// buffers that the guard can force-discard between requests so that a
// buffer left open by a misbehaving handler never leaks into the next
// request's output.
package memguard
