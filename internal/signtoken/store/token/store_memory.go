package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ronflow/internal/signtoken/models"
	"ronflow/pkg/platform/sentinel"
)

// InMemoryStore keeps signature tokens in memory for tests and dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.SignatureToken
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.SignatureToken)}
}

func (s *InMemoryStore) Save(_ context.Context, t *models.SignatureToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.tokens[t.Value] = &clone
	return nil
}

func (s *InMemoryStore) FindByValue(_ context.Context, value string) (*models.SignatureToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tokens[value]; ok {
		clone := *t
		return &clone, nil
	}
	return nil, fmt.Errorf("signature token not found: %w", sentinel.ErrNotFound)
}

// DeleteExpired removes tokens past their TTL as of now. The time parameter
// is injected for testability.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for value, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, value)
			deleted++
		}
	}
	return deleted, nil
}
