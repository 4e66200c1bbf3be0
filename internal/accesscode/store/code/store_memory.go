package code

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ronflow/internal/accesscode/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// InMemoryStore keeps access codes in memory for tests and dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*models.ClientAccessCode
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*models.ClientAccessCode)}
}

func (s *InMemoryStore) Save(_ context.Context, c *models.ClientAccessCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codes[c.Value]; exists {
		return fmt.Errorf("access code already exists: %w", sentinel.ErrConflict)
	}
	clone := *c
	s.codes[c.Value] = &clone
	return nil
}

func (s *InMemoryStore) FindByValue(_ context.Context, value string) (*models.ClientAccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[value]
	if !ok {
		return nil, fmt.Errorf("access code not found: %w", sentinel.ErrNotFound)
	}
	clone := *c
	return &clone, nil
}

// FindActiveBySession returns the session's current active code, if any.
func (s *InMemoryStore) FindActiveBySession(_ context.Context, sessionID id.SessionID) (*models.ClientAccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.codes {
		if c.SessionID == sessionID && c.Status == models.CodeActive {
			clone := *c
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("no active code for session: %w", sentinel.ErrNotFound)
}

// Execute atomically validates and mutates a code. The store lock is held
// for both callbacks.
func (s *InMemoryStore) Execute(_ context.Context, value string, validate func(*models.ClientAccessCode) error, mutate func(*models.ClientAccessCode)) (*models.ClientAccessCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[value]
	if !ok {
		return nil, fmt.Errorf("access code not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)
	clone := *c
	return &clone, nil
}

// ListByCertifier returns codes the certifier issued, newest first. An empty
// status filters nothing.
func (s *InMemoryStore) ListByCertifier(_ context.Context, certifierID id.UserID, status models.CodeStatus) ([]*models.ClientAccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ClientAccessCode
	for _, c := range s.codes {
		if c.CertifierID != certifierID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// MarkExpired demotes active codes past their TTL as of now, returning how
// many changed.
func (s *InMemoryStore) MarkExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, c := range s.codes {
		if c.Status == models.CodeActive && c.Expired(now) {
			c.ApplyExpiry(now)
			expired++
		}
	}
	return expired, nil
}
