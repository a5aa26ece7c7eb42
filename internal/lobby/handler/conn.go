// Package handler binds connections to lobby sessions and runs the inbound
// lobby events against them.
package handler

import (
	"sync"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

// ConnContext is the per-connection association with at most one
// (session, player) pair. It carries no transport capability.
type ConnContext struct {
	ID string

	mu      sync.Mutex
	session *lobby.Session
	player  *lobby.Player
}

// NewConnContext creates an unbound context for the connection id.
func NewConnContext(id string) *ConnContext {
	return &ConnContext{ID: id}
}

// Bound returns the current binding; both are nil when unbound.
func (c *ConnContext) Bound() (*lobby.Session, *lobby.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.player
}

func (c *ConnContext) bind(s *lobby.Session, p *lobby.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.player = p
}

// Unbind clears the binding and returns the previous one. Only the first of
// two racing calls observes a non-nil session.
func (c *ConnContext) Unbind() (*lobby.Session, *lobby.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, p := c.session, c.player
	c.session, c.player = nil, nil
	return s, p
}
