package asset

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avfoundry/proxa/internal/verr"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs the engine
// when no database is configured, and is the store used by the unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	assets map[uuid.UUID]*VideoAsset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[uuid.UUID]*VideoAsset)}
}

func (s *MemoryStore) Create(_ context.Context, params CreateParams) (*VideoAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	record := &VideoAsset{
		ID:              uuid.New(),
		Title:           params.Title,
		Description:     params.Description,
		SourceRef:       params.SourceRef,
		ThumbnailRef:    params.ThumbnailRef,
		DurationSeconds: params.DurationSeconds,
		Width:           params.Width,
		Height:          params.Height,
		Codec:           params.Codec,
		Status:          StatusIngested,
		OutputFiles:     OutputFileList{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.assets[record.ID] = record
	return record.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*VideoAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.assets[id]
	if !ok {
		return nil, verr.Newf(verr.NotFound, "asset %s not found", id)
	}

	return record.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, mutate func(*VideoAsset) error) (*VideoAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.assets[id]
	if !ok {
		return nil, verr.Newf(verr.NotFound, "asset %s not found", id)
	}

	updated := record.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}

	updated.UpdatedAt = time.Now()
	s.assets[id] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return verr.Newf(verr.NotFound, "asset %s not found", id)
	}

	delete(s.assets, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*VideoAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*VideoAsset, 0, len(s.assets))
	for _, record := range s.assets {
		all = append(all, record.Clone())
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all, nil
}
