package user

import (
	"context"
	"fmt"
	"sync"

	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// Store resolves user IDs. Implementations return sentinel.ErrNotFound for
// unknown IDs; services translate that into a coded NotFound.
type Store interface {
	Save(ctx context.Context, u *User) error
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
}

// InMemoryStore keeps users in memory for tests and dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*User)}
}

func (s *InMemoryStore) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}
