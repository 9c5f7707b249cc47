package memguard

import "bytes"

// BufferStack is a LIFO stack of output capture buffers. Handlers may
// open nested buffers to capture output; well-behaved code closes each
// buffer it opens. The stack exists so the guard can discard whatever
// was left open when a handler misbehaved.
type BufferStack struct {
	bufs []*bytes.Buffer
}

// NewBufferStack creates an empty stack.
func NewBufferStack() *BufferStack {
	return &BufferStack{}
}

// Open pushes a fresh capture buffer and returns it.
func (s *BufferStack) Open() *bytes.Buffer {
	b := &bytes.Buffer{}
	s.bufs = append(s.bufs, b)
	return b
}

// Close pops the innermost buffer and returns its contents.
// Returns false if no buffer is open.
func (s *BufferStack) Close() ([]byte, bool) {
	if len(s.bufs) == 0 {
		return nil, false
	}
	b := s.bufs[len(s.bufs)-1]
	s.bufs = s.bufs[:len(s.bufs)-1]
	return b.Bytes(), true
}

// Depth returns the number of open buffers.
func (s *BufferStack) Depth() int {
	return len(s.bufs)
}

// DiscardAll drops every open buffer without flushing its contents and
// returns how many were dropped.
func (s *BufferStack) DiscardAll() int {
	n := len(s.bufs)
	s.bufs = s.bufs[:0]
	return n
}
