package lobby

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces candidate session identifiers.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

// NewID calls f.
func (f IDFunc) NewID() string { return f() }

// UUIDGenerator returns an IDGenerator producing random UUIDv4 strings.
func UUIDGenerator() IDGenerator {
	return IDFunc(uuid.NewString)
}

// Registry owns the set of live sessions keyed by id.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ids      IDGenerator
}

// NewRegistry creates an empty Registry.
//
// Precondition: ids must be non-nil.
func NewRegistry(ids IDGenerator) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ids:      ids,
	}
}

// Register assigns s a fresh id, regenerating on collision with any live id,
// and inserts it.
//
// Precondition: s must not already be registered.
// Postcondition: s.ID is unique among live sessions and Lookup(s.ID) returns s.
func (r *Registry) Register(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.ids.NewID()
	for {
		if _, taken := r.sessions[id]; !taken {
			break
		}
		id = r.ids.NewID()
	}
	s.ID = id
	r.sessions[id] = s
	return id
}

// Lookup returns the live session with the given id.
//
// Postcondition: Returns the session, or a sessionNotFound *Error.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound(id)
	}
	return s, nil
}

// Unregister removes the session with the given id. Absent ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
