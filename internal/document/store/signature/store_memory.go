package signature

import (
	"context"
	"sort"
	"sync"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
)

// InMemoryStore keeps signatures in memory for tests and dev.
type InMemoryStore struct {
	mu         sync.RWMutex
	signatures []*models.Signature
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Record appends a signature, superseding any previous effective signature
// for the same (document, role) pair. Both steps happen under one lock.
func (s *InMemoryStore) Record(_ context.Context, sig *models.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.signatures {
		if existing.DocumentID == sig.DocumentID && existing.Role == sig.Role && !existing.Superseded {
			existing.Superseded = true
		}
	}
	clone := *sig
	s.signatures = append(s.signatures, &clone)
	return nil
}

// ListEffective returns the non-superseded signatures for a document.
func (s *InMemoryStore) ListEffective(_ context.Context, docID id.DocumentID) ([]*models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Signature
	for _, sig := range s.signatures {
		if sig.DocumentID == docID && !sig.Superseded {
			clone := *sig
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}

// ListByDocument returns every capture for a document, superseded included,
// oldest first. This is the evidence trail.
func (s *InMemoryStore) ListByDocument(_ context.Context, docID id.DocumentID) ([]*models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Signature
	for _, sig := range s.signatures {
		if sig.DocumentID == docID {
			clone := *sig
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out, nil
}
