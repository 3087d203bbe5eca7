// Package casts stores the cast ledger: one entry per publish attempt, so an
// ambiguous outcome can be looked up instead of retried blindly.
package casts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Cast) error
	UpdateStatus(ctx context.Context, id string, status models.CastStatus, contentID, errMsg string, at time.Time) error
	Find(ctx context.Context, id string) (*models.Cast, error)
}
