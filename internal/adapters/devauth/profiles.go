package devauth

import (
	"context"
	"errors"
	"strings"
	"sync"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// ProfileStore keeps perfiles rows in memory so mock mode runs without a
// database or a hosted data API.
type ProfileStore struct {
	mu   sync.Mutex
	rows map[string]domainauth.Profile
}

var _ ports.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore builds an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{rows: make(map[string]domainauth.Profile)}
}

// Get loads a profile by provider user ID.
func (s *ProfileStore) Get(_ context.Context, userID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[userID]
	if !ok {
		return nil, apperrors.NotFoundf("perfil %s not found", userID)
	}
	out := p
	return &out, nil
}

// Insert creates a profile row. Duplicate IDs surface as a conflict, the
// same contract the real backends honor.
func (s *ProfileStore) Insert(_ context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile ID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("profile email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[p.ID]; exists {
		return apperrors.Conflictf("perfil %s already exists", p.ID)
	}
	s.rows[p.ID] = p
	return nil
}
