package memory

import (
	"context"
	"sync"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// maxEvents bounds the in-memory audit trail.
const maxEvents = 1000

// Store serves the default role table and keeps recent auth events in memory.
type Store struct {
	mu     sync.Mutex
	roles  []models.Role
	events []models.AuthEvent
}

// NewStore returns a store seeded with models.DefaultRoles.
func NewStore() *Store {
	return &Store{roles: models.DefaultRoles()}
}

func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		role.Permissions = append([]string(nil), role.Permissions...)
		out = append(out, role)
	}
	return out, nil
}

func (s *Store) RecordAuthEvent(ctx context.Context, event models.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (s *Store) Events() []models.AuthEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuthEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Close() {}
