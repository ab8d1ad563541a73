package supabase

import (
	"sync"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
)

// TokenStorage holds the single active session for a provider instance.
// The provider is the only writer; implementations must be safe for
// concurrent use because reads happen on caller goroutines.
type TokenStorage interface {
	// Store replaces the current session. A nil session clears the slot.
	Store(s *domainauth.Session)
	// Load returns a copy of the stored session, or nil when empty.
	Load() *domainauth.Session
	// Clear empties the slot.
	Clear()
}

// MemoryTokenStorage keeps the session in process memory. This is the
// default: tokens never touch disk or the snapshot store.
type MemoryTokenStorage struct {
	mu      sync.RWMutex
	session *domainauth.Session
}

var _ TokenStorage = (*MemoryTokenStorage)(nil)

// NewMemoryTokenStorage returns an empty in-memory slot.
func NewMemoryTokenStorage() *MemoryTokenStorage {
	return &MemoryTokenStorage{}
}

// Store replaces the current session.
func (m *MemoryTokenStorage) Store(s *domainauth.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		m.session = nil
		return
	}
	cp := *s
	m.session = &cp
}

// Load returns a copy of the stored session so callers cannot mutate the slot.
func (m *MemoryTokenStorage) Load() *domainauth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Clear empties the slot.
func (m *MemoryTokenStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}
