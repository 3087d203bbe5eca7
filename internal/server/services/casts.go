package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/archive"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CastService publishes casts through authorized signers and keeps a ledger
// of every attempt.
type CastService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	authority       Authority
	gate            *AuthorizationGate
	archiver        archive.Archiver
	logger          logging.Logger
	metrics         *metrics.Metrics
	upstreamTimeout time.Duration
	now             func() time.Time
}

func NewCastService(db *sql.DB, m repomanager.RepositoryManager, a Authority, gate *AuthorizationGate,
	ar archive.Archiver, cfg *config.Config, l logging.Logger, mt *metrics.Metrics) *CastService {
	if ar == nil {
		ar = archive.Nop{}
	}
	return &CastService{
		db:              db,
		repomanager:     m,
		authority:       a,
		gate:            gate,
		archiver:        ar,
		logger:          l.With("module", "casts"),
		metrics:         mt,
		upstreamTimeout: cfg.UpstreamTimeout,
		now:             time.Now,
	}
}

// Publish submits text through signerID on behalf of callerUserID.
//
// The returned cast is the ledger entry; it is also returned with
// ErrPublishFailed and ErrUpstreamUnavailable so the caller can re-query it.
func (s *CastService) Publish(ctx context.Context, signerID string, callerUserID int64, text string) (cast *models.Cast, err error) {
	defer func() { s.metrics.CastPublished(err) }()

	if strings.TrimSpace(text) == "" {
		return nil, common.ErrEmptyContent
	}
	if len(text) > common.MaxCastBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", common.ErrContentTooLong, len(text), common.MaxCastBytes)
	}

	ok, err := s.gate.Authorize(ctx, signerID, callerUserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	now := s.now()
	cast = &models.Cast{
		ID:           uuid.NewString(),
		SignerID:     signerID,
		AuthorUserID: callerUserID,
		Text:         text,
		Status:       models.CastPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	repo := s.repomanager.Casts(s.db)
	if err := repo.Create(ctx, cast); err != nil {
		return nil, fmt.Errorf("%w: record cast: %v", common.ErrorInternal, err)
	}

	uctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	hash, submitErr := s.authority.SubmitCast(uctx, signerID, text)

	switch {
	case submitErr == nil:
		cast.Status = models.CastPublished
		cast.ContentID = hash
	case errors.Is(submitErr, common.ErrPublishFailed):
		cast.Status = models.CastUnknown
		cast.Error = submitErr.Error()
	default:
		cast.Status = models.CastFailed
		cast.Error = submitErr.Error()
	}
	cast.UpdatedAt = s.now()

	// The outcome is recorded even if the caller has gone away.
	lctx := context.WithoutCancel(ctx)
	if err := repo.UpdateStatus(lctx, cast.ID, cast.Status, cast.ContentID, cast.Error, cast.UpdatedAt); err != nil {
		s.logger.Error(ctx, "cast ledger update failed", "cast_id", cast.ID, "status", cast.Status, "error", err)
	}

	if submitErr != nil {
		s.logger.Warn(ctx, "cast not published", "cast_id", cast.ID, "signer_id", signerID, "error", submitErr)
		return cast, submitErr
	}

	if err := s.archiver.Archive(lctx, cast); err != nil {
		s.logger.Warn(ctx, "cast receipt not archived", "cast_id", cast.ID, "error", err)
	}

	s.logger.Info(ctx, "cast published", "cast_id", cast.ID, "signer_id", signerID, "hash", hash)
	return cast, nil
}

// Status returns a ledger entry. Entries of other users are reported as not found.
func (s *CastService) Status(ctx context.Context, castID string, callerUserID int64) (*models.Cast, error) {
	if _, err := uuid.Parse(castID); err != nil {
		return nil, common.ErrorNotFound
	}

	cast, err := s.repomanager.Casts(s.db).Find(ctx, castID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if cast.AuthorUserID != callerUserID {
		return nil, common.ErrorNotFound
	}
	return cast, nil
}
