package pdf

import (
	"context"
	"fmt"
	"sync"

	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// ArtifactStore keeps the latest rendered artifact per document.
type ArtifactStore interface {
	Put(ctx context.Context, docID id.DocumentID, artifact []byte) error
	Get(ctx context.Context, docID id.DocumentID) ([]byte, error)
}

// InMemoryArtifactStore keeps artifacts in memory for tests and dev.
type InMemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[id.DocumentID][]byte
}

func NewInMemoryArtifactStore() *InMemoryArtifactStore {
	return &InMemoryArtifactStore{artifacts: make(map[id.DocumentID][]byte)}
}

func (s *InMemoryArtifactStore) Put(_ context.Context, docID id.DocumentID, artifact []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[docID] = append([]byte(nil), artifact...)
	return nil
}

func (s *InMemoryArtifactStore) Get(_ context.Context, docID id.DocumentID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[docID]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %w", sentinel.ErrNotFound)
	}
	return append([]byte(nil), artifact...), nil
}
