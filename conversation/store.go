package conversation

import "sync"

// Store holds the contexts of live sessions keyed by session id. Each
// context carries its own lock, so sessions never contend with each other.
type Store struct {
	limit    int
	contexts sync.Map // session id -> *Context
}

// NewStore returns a store whose contexts retain at most limit messages.
func NewStore(limit int) *Store {
	return &Store{limit: limit}
}

// Get returns the context of a session.
func (s *Store) Get(sessionID string) (*Context, bool) {
	value, ok := s.contexts.Load(sessionID)
	if !ok {
		return nil, false
	}
	return value.(*Context), true
}

// GetOrCreate returns the context of a session, creating it when missing.
func (s *Store) GetOrCreate(sessionID string) *Context {
	if c, ok := s.Get(sessionID); ok {
		return c
	}
	value, _ := s.contexts.LoadOrStore(sessionID, NewContext(sessionID, s.limit))
	return value.(*Context)
}

// Delete discards the context of a session.
func (s *Store) Delete(sessionID string) {
	s.contexts.Delete(sessionID)
}

// Len returns the number of stored contexts.
func (s *Store) Len() int {
	n := 0
	s.contexts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
