// Package signers caches the authority's signer records. The cache never
// lets a signer's state move backwards and never rebinds an owner.
package signers

import (
	"context"

	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

type Repository interface {
	// Upsert merges s into the cache and returns the stored record.
	// A lower-ranked state, an empty token or a different owner never
	// overwrite what is already stored; LastCheckedAt always does.
	Upsert(ctx context.Context, s *models.Signer) (*models.Signer, error)
	Find(ctx context.Context, id string) (*models.Signer, error)
	FindByToken(ctx context.Context, approvalToken string) (*models.Signer, error)
}
