package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested document does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps documents in memory for tests and dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{documents: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document already exists: %w", sentinel.ErrConflict)
	}
	clone := *doc
	s.documents[doc.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	clone := *doc
	return &clone, nil
}

// Execute atomically validates and mutates a document. The store lock is
// held for both callbacks, so a losing racer re-validates against the
// winner's state. Returns the mutated document.
func (s *InMemoryStore) Execute(_ context.Context, docID id.DocumentID, validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)
	clone := *doc
	return &clone, nil
}

// ListPendingCertification returns upload-branch documents awaiting a
// certifier decision, oldest first.
func (s *InMemoryStore) ListPendingCertification(_ context.Context, certifierID id.UserID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.documents {
		if doc.Branch != models.BranchUpload || doc.CertifierID != certifierID {
			continue
		}
		if doc.Status == models.StatusUploaded || doc.Status == models.StatusProcessing {
			clone := *doc
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListByParticipant returns documents the user is client or certifier on,
// newest first.
func (s *InMemoryStore) ListByParticipant(_ context.Context, userID id.UserID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.documents {
		if doc.IsParticipant(userID) {
			clone := *doc
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
