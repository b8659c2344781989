package repository

import (
	"context"
	"encoding/json"
	"sync"

	"postovik/internal/models"
)

// MemoryStatusRepository keeps the snapshot as serialized bytes, mirroring
// the redis layout, so callers always get their own copy back.
type MemoryStatusRepository struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryStatusRepository() *MemoryStatusRepository {
	return &MemoryStatusRepository{}
}

func (r *MemoryStatusRepository) LoadStatus(ctx context.Context) (*models.WatchStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return nil, nil
	}

	var status models.WatchStatus
	if err := json.Unmarshal(r.data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *MemoryStatusRepository) SaveStatus(ctx context.Context, status *models.WatchStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	return nil
}

func (r *MemoryStatusRepository) ClearStatus(ctx context.Context) error {
	r.mu.Lock()
	r.data = nil
	r.mu.Unlock()
	return nil
}
