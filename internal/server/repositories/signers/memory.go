package signers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

// MemoryRepository keeps the cache in process memory with the same merge
// rules as the Postgres table.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.Signer
	byToken map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.Signer),
		byToken: make(map[string]string),
	}
}

func (r *MemoryRepository) Upsert(ctx context.Context, s *models.Signer) (*models.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[s.ID]
	if !ok {
		cur = clone(s)
	} else {
		merge(cur, s)
	}
	r.byID[s.ID] = cur
	if cur.ApprovalToken != "" {
		r.byToken[cur.ApprovalToken] = cur.ID
	}
	return clone(cur), nil
}

func (r *MemoryRepository) Find(ctx context.Context, id string) (*models.Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(s), nil
}

func (r *MemoryRepository) FindByToken(ctx context.Context, approvalToken string) (*models.Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[approvalToken]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r.byID[id]), nil
}

// merge applies in onto cur following the Upsert rules.
func merge(cur, in *models.Signer) {
	if len(in.PublicKey) > 0 {
		cur.PublicKey = append([]byte(nil), in.PublicKey...)
	}
	if cur.State.Rank() <= in.State.Rank() {
		cur.State = in.State
	}
	if cur.OwnerUserID == nil && in.OwnerUserID != nil {
		fid := *in.OwnerUserID
		cur.OwnerUserID = &fid
	}
	if cur.ApprovalToken == "" {
		cur.ApprovalToken = in.ApprovalToken
	}
	if in.DeeplinkURL != "" {
		cur.DeeplinkURL = in.DeeplinkURL
	}
	if cur.Deadline.IsZero() {
		cur.Deadline = in.Deadline
	}
	cur.LastCheckedAt = in.LastCheckedAt
}

func clone(s *models.Signer) *models.Signer {
	c := *s
	c.PublicKey = append([]byte(nil), s.PublicKey...)
	if s.OwnerUserID != nil {
		fid := *s.OwnerUserID
		c.OwnerUserID = &fid
	}
	return &c
}
