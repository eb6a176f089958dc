package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alimasry/go-page-editor/schema"
)

// MemoryStore is an in-memory implementation of PageStore.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]*Page
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]*Page), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, id string, cs schema.ContentSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pages[id]; exists {
		return fmt.Errorf("create %q: %w", id, ErrExists)
	}
	now := s.now()
	s.pages[id] = &Page{
		ID:        id,
		Schema:    cs.Clone(),
		Status:    StatusDraft,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("load %q: %w", id, ErrNotFound)
	}
	out := *p
	out.Schema = p.Schema.Clone()
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]PageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]PageInfo, 0, len(s.pages))
	for _, p := range s.pages {
		result = append(result, p.info())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, cs schema.ContentSchema, expectedRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[id]
	if !ok {
		return 0, fmt.Errorf("save %q: %w", id, ErrNotFound)
	}
	if p.Revision != expectedRevision {
		return 0, fmt.Errorf("save %q at revision %d (current %d): %w", id, expectedRevision, p.Revision, ErrConflict)
	}
	p.Schema = cs.Clone()
	p.Revision++
	p.UpdatedAt = s.now()
	return p.Revision, nil
}

// put stores p as is, replacing any existing page.
func (s *MemoryStore) put(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Schema = p.Schema.Clone()
	s.pages[p.ID] = &p
}
