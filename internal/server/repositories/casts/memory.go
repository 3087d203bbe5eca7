package casts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	casts map[string]models.Cast
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{casts: make(map[string]models.Cast)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *models.Cast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.casts[c.ID]; ok {
		return fmt.Errorf("db error: duplicate cast id %s", c.ID)
	}
	r.casts[c.ID] = *c
	return nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status models.CastStatus, contentID, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.casts[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Status = status
	c.ContentID = contentID
	c.Error = errMsg
	c.UpdatedAt = at
	r.casts[id] = c
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, id string) (*models.Cast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.casts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}
