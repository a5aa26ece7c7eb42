// Package hub tracks connected lobby clients and their session rooms and
// fans encoded frames out to them.
package hub

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBacklogged is returned by Push when the endpoint's buffer is full.
var ErrBacklogged = errors.New("frame buffer full")

// Endpoint routes pushed frames to a buffered channel drained by the
// connection's writer goroutine. A client that stops reading loses frames
// rather than stalling the session that produced them; Dropped counts them.
type Endpoint struct {
	id      string
	frames  chan []byte
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewEndpoint creates an Endpoint for the given connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Endpoint with an open frames channel.
func NewEndpoint(id string, bufferSize int) *Endpoint {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Endpoint{
		id:     id,
		frames: make(chan []byte, bufferSize),
	}
}

// ID returns the connection id.
func (e *Endpoint) ID() string {
	return e.id
}

// Push enqueues frame without blocking.
//
// Postcondition: frame is enqueued, or an error is returned if the endpoint
// is closed or its buffer is full.
func (e *Endpoint) Push(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("endpoint %s is closed", e.id)
	}
	select {
	case e.frames <- frame:
		return nil
	default:
		e.dropped++
		return fmt.Errorf("endpoint %s: %w (%d dropped)", e.id, ErrBacklogged, e.dropped)
	}
}

// Dropped returns how many frames Push has discarded because the buffer was full.
func (e *Endpoint) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Backlog returns the number of frames waiting for the writer.
func (e *Endpoint) Backlog() int {
	return len(e.frames)
}

// Frames returns the read-only frames channel. It is closed by Close.
func (e *Endpoint) Frames() <-chan []byte {
	return e.frames
}

// Close marks the endpoint closed and closes the frames channel. It is safe
// to call more than once.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.frames)
	}
}

// IsClosed reports whether the endpoint has been closed.
func (e *Endpoint) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
