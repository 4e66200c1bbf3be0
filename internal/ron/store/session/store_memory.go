package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ronflow/internal/ron/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// InMemoryStore keeps RON sessions in memory for tests and dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.RonSession
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.RonSession)}
}

func (s *InMemoryStore) Create(_ context.Context, sess *models.RonSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session already exists: %w", sentinel.ErrConflict)
	}
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.RonSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	clone := *sess
	return &clone, nil
}

// Execute atomically validates and mutates a session. The store lock is held
// for both callbacks, so concurrent joiners serialize and the loser
// re-validates against the winner's state.
func (s *InMemoryStore) Execute(_ context.Context, sessionID id.SessionID, validate func(*models.RonSession) error, mutate func(*models.RonSession)) (*models.RonSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(sess); err != nil {
		return nil, err
	}
	mutate(sess)
	clone := *sess
	return &clone, nil
}

// ListByParticipant returns sessions the user is client or certifier on,
// soonest scheduled first.
func (s *InMemoryStore) ListByParticipant(_ context.Context, userID id.UserID) ([]*models.RonSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RonSession
	for _, sess := range s.sessions {
		if sess.IsParticipant(userID) {
			clone := *sess
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out, nil
}

// ListStale returns sessions the reaper should cancel as of now.
func (s *InMemoryStore) ListStale(_ context.Context, now time.Time, scheduledGrace, activeGrace time.Duration) ([]*models.RonSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RonSession
	for _, sess := range s.sessions {
		if sess.Stale(now, scheduledGrace, activeGrace) {
			clone := *sess
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out, nil
}
