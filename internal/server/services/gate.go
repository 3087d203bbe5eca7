package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/dbx"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/repomanager"
)

// AuthorizationGate owns the rule deciding whether a user may act through a
// signer. Every write path goes through Authorize or Check.
type AuthorizationGate struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	authority       Authority
	logger          logging.Logger
	upstreamTimeout time.Duration
	now             func() time.Time
}

func NewAuthorizationGate(db *sql.DB, m repomanager.RepositoryManager, a Authority, cfg *config.Config, l logging.Logger) *AuthorizationGate {
	return &AuthorizationGate{
		db:              db,
		repomanager:     m,
		authority:       a,
		logger:          l.With("module", "gate"),
		upstreamTimeout: cfg.UpstreamTimeout,
		now:             time.Now,
	}
}

// Resolve returns the signers the authority lists for userID, most recently
// created first, and binds them to userID in the cache. No signers is not an
// error.
func (g *AuthorizationGate) Resolve(ctx context.Context, userID int64) ([]*models.Signer, error) {
	uctx, cancel := context.WithTimeout(ctx, g.upstreamTimeout)
	defer cancel()

	recs, err := g.authority.ListSigners(uctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	result := make([]*models.Signer, 0, len(recs))

	err = g.repomanager.InTx(ctx, g.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Signers(tx)
		for i := range recs {
			signer, err := toSigner(&recs[i])
			if err != nil {
				return err
			}
			owner := userID
			signer.OwnerUserID = &owner
			signer.LastCheckedAt = now
			if signer.CreatedAt.IsZero() {
				signer.CreatedAt = now
			}

			stored, err := repo.Upsert(ctx, signer)
			if err != nil {
				return fmt.Errorf("%w: cache signer: %v", common.ErrorInternal, err)
			}
			if !stored.OwnedBy(userID) {
				g.logger.Warn(ctx, "signer bound to another user", "signer_id", stored.ID, "fid", userID)
				continue
			}
			if stored.Expired(now) {
				stored.State = models.SignerRevoked
				if _, err := repo.Upsert(ctx, stored); err != nil {
					return fmt.Errorf("%w: cache signer: %v", common.ErrorInternal, err)
				}
			}
			result = append(result, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// Authorize reports whether userID may act through signerID: the signer
// exists, is approved, and belongs to userID. An unknown signer is false,
// not an error; a failed lookup is an error and never true.
func (g *AuthorizationGate) Authorize(ctx context.Context, signerID string, userID int64) (bool, error) {
	_, ok, err := g.Check(ctx, signerID, userID)
	return ok, err
}

// Check is Authorize that also returns the signer it looked at, or nil when
// the signer does not exist.
func (g *AuthorizationGate) Check(ctx context.Context, signerID string, userID int64) (*models.Signer, bool, error) {
	if signerID == "" || userID <= 0 {
		return nil, false, nil
	}

	uctx, cancel := context.WithTimeout(ctx, g.upstreamTimeout)
	defer cancel()

	rec, err := g.authority.GetSigner(uctx, signerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	signer, err := toSigner(rec)
	if err != nil {
		return nil, false, err
	}
	if signer.ID == "" {
		signer.ID = signerID
	}

	now := g.now()
	signer.LastCheckedAt = now
	if signer.CreatedAt.IsZero() {
		signer.CreatedAt = now
	}

	// The authority names the approving fid; only that user can own it.
	upstreamOwner := rec.FID > 0 && rec.FID == userID
	if upstreamOwner && signer.State == models.SignerApproved {
		owner := userID
		signer.OwnerUserID = &owner
	}

	repo := g.repomanager.Signers(g.db)

	stored, err := repo.Upsert(ctx, signer)
	if err != nil {
		return nil, false, fmt.Errorf("%w: cache signer: %v", common.ErrorInternal, err)
	}
	if stored.Expired(now) {
		stored.State = models.SignerRevoked
		if stored, err = repo.Upsert(ctx, stored); err != nil {
			return nil, false, fmt.Errorf("%w: cache signer: %v", common.ErrorInternal, err)
		}
		g.logger.Info(ctx, "pending signer expired", "signer_id", stored.ID, "deadline", stored.Deadline)
	}

	ok := upstreamOwner && stored.State == models.SignerApproved && stored.OwnedBy(userID)
	if !ok {
		g.logger.Info(ctx, "authorization denied", "signer_id", signerID, "fid", userID, "state", stored.State)
	}
	return stored, ok, nil
}
