package session

import (
	"sync"
)

// Registry indexes live sessions by connection and by session id. Detaching
// a connection keeps the session reachable by id so it can be resumed.
type Registry interface {
	Put(s *State)
	Bind(connID string, s *State)
	ByConnection(connID string) (*State, bool)
	BySessionID(id string) (*State, bool)
	Detach(connID string) (*State, bool)
	Remove(id string)
	Snapshot() []*State
	Len() int
}

type MemoryRegistry struct {
	mu     sync.RWMutex
	byConn map[string]*State
	byID   map[string]*State
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byConn: make(map[string]*State),
		byID:   make(map[string]*State),
	}
}

func (r *MemoryRegistry) Put(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

// Bind points connID at s, replacing whatever it was bound to before. Any
// other connection still bound to s is unbound.
func (r *MemoryRegistry) Bind(connID string, s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c, existing := range r.byConn {
		if existing == s && c != connID {
			delete(r.byConn, c)
		}
	}
	r.byConn[connID] = s
	r.byID[s.ID] = s
}

func (r *MemoryRegistry) ByConnection(connID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[connID]
	return s, ok
}

func (r *MemoryRegistry) BySessionID(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *MemoryRegistry) Detach(connID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[connID]
	delete(r.byConn, connID)
	return s, ok
}

// Remove forgets a session entirely, including any connection bound to it.
func (r *MemoryRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	for c, existing := range r.byConn {
		if existing == s {
			delete(r.byConn, c)
		}
	}
}

// Snapshot returns the sessions currently bound to a connection. The slice
// is a copy; callers may iterate while the registry changes.
func (r *MemoryRegistry) Snapshot() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*State, 0, len(r.byConn))
	for _, s := range r.byConn {
		out = append(out, s)
	}
	return out
}

// Len returns the number of bound connections.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
