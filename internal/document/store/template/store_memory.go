package template

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
	"ronflow/pkg/platform/sentinel"
)

// InMemoryStore keeps templates in memory for tests and dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]*models.Template
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{templates: make(map[id.TemplateID]*models.Template)}
}

func (s *InMemoryStore) Save(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *t
	s.templates[t.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, templateID id.TemplateID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.templates[templateID]; ok {
		clone := *t
		return &clone, nil
	}
	return nil, fmt.Errorf("template not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Template, 0, len(s.templates))
	for _, t := range s.templates {
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}
