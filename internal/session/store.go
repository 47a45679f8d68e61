package session

import "sync"

// Store abstracts session persistence so the proxy core is decoupled from
// any particular storage mechanism.
type Store interface {
	// Load returns the session for the given browser ID, creating an empty
	// one if none exists.
	Load(id string) *Session

	// Save persists the session under the given browser ID. For in-memory
	// stores that hand out live pointers this is a no-op on mutation, but
	// external stores need an explicit write-back point.
	Save(id string, s *Session)
}

// MemoryStore is a thread-safe in-memory session store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load returns the session for id, creating it on first use.
func (m *MemoryStore) Load(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = New()
		m.sessions[id] = s
	}
	return s
}

// Save stores the session under id.
func (m *MemoryStore) Save(id string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
}
