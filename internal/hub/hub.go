package hub

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks connected endpoints and room membership. It implements
// protocol.Transport. All methods are safe for concurrent use.
type Hub struct {
	mu         sync.RWMutex
	endpoints  map[string]*Endpoint       // conn id → endpoint
	rooms      map[string]map[string]bool // room → set of conn ids
	bufferSize int
	logger     *zap.Logger
}

// New creates an empty Hub whose endpoints buffer bufferSize frames.
//
// Precondition: logger must be non-nil.
func New(bufferSize int, logger *zap.Logger) *Hub {
	return &Hub{
		endpoints:  make(map[string]*Endpoint),
		rooms:      make(map[string]map[string]bool),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Connect registers a new endpoint for connID.
//
// Postcondition: Returns the endpoint, or an error if connID is already connected.
func (h *Hub) Connect(connID string) (*Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.endpoints[connID]; exists {
		return nil, fmt.Errorf("connection %q already registered", connID)
	}
	ep := NewEndpoint(connID, h.bufferSize)
	h.endpoints[connID] = ep
	return ep, nil
}

// Disconnect removes connID from every room and closes its endpoint.
// Unknown ids are ignored.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ep, exists := h.endpoints[connID]
	if !exists {
		return
	}
	for room, members := range h.rooms {
		if members[connID] {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	ep.Close()
	delete(h.endpoints, connID)
}

// Send enqueues frame for connID.
//
// Postcondition: Returns an error if connID is unknown, closed or backlogged.
func (h *Hub) Send(connID string, frame []byte) error {
	h.mu.RLock()
	ep, ok := h.endpoints[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %q not found", connID)
	}
	return ep.Push(frame)
}

// Broadcast enqueues frame for every member of room except exceptConnID.
// Members whose buffers cannot take the frame are skipped with a warning.
func (h *Hub) Broadcast(room, exceptConnID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		ep, ok := h.endpoints[connID]
		if !ok {
			continue
		}
		if err := ep.Push(frame); err != nil {
			h.logger.Warn("dropping broadcast frame",
				zap.String("room", room),
				zap.String("conn_id", connID),
				zap.Uint64("dropped", ep.Dropped()),
				zap.Int("backlog", ep.Backlog()),
				zap.Error(err),
			)
		}
	}
}

// Subscribe adds connID to room. Unknown connections are ignored.
func (h *Hub) Subscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.endpoints[connID]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][connID] = true
}

// Unsubscribe removes connID from room.
func (h *Hub) Unsubscribe(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Members returns the conn ids subscribed to room.
//
// Postcondition: Returns a slice of conn ids (may be empty).
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[room]
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// Dropped returns the total frames discarded across connected endpoints.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n uint64
	for _, ep := range h.endpoints {
		n += ep.Dropped()
	}
	return n
}

// ConnectionCount returns the number of connected endpoints.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}
