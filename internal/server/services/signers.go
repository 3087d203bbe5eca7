package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/repomanager"
	"golang.org/x/sync/singleflight"
)

// SignerService creates signers and tracks their approval. The authority is
// the source of truth; the repository is a cache rewritten on every read.
type SignerService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	authority       Authority
	sponsor         KeySponsor
	gate            *AuthorizationGate
	logger          logging.Logger
	metrics         *metrics.Metrics
	requestTTL      time.Duration
	upstreamTimeout time.Duration
	now             func() time.Time
	polls           singleflight.Group
}

func NewSignerService(db *sql.DB, m repomanager.RepositoryManager, a Authority, sp KeySponsor,
	gate *AuthorizationGate, cfg *config.Config, l logging.Logger, mt *metrics.Metrics) *SignerService {
	return &SignerService{
		db:              db,
		repomanager:     m,
		authority:       a,
		sponsor:         sp,
		gate:            gate,
		logger:          l.With("module", "signers"),
		metrics:         mt,
		requestTTL:      cfg.SignerRequestTTL,
		upstreamTimeout: cfg.UpstreamTimeout,
		now:             time.Now,
	}
}

// Create asks the authority for a new key, sponsors it with the app identity
// and returns the pending signer with its approval token.
func (s *SignerService) Create(ctx context.Context) (signer *models.Signer, err error) {
	defer func() { s.metrics.SignerCreated(err) }()

	uctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	rec, err := s.authority.CreateKey(uctx)
	if err != nil {
		return nil, err
	}
	key, err := toSigner(rec)
	if err != nil {
		return nil, err
	}
	if len(key.PublicKey) == 0 {
		return nil, fmt.Errorf("%w: authority returned signer %q without a key", common.ErrorInternal, rec.SignerID)
	}

	now := s.now()
	deadline := now.Add(s.requestTTL)

	sp, err := s.sponsor.SignKeyRequest(key.PublicKey, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	rec, err = s.authority.Sponsor(uctx, rec.SignerID, sp)
	if err != nil {
		return nil, err
	}
	signer, err = toSigner(rec)
	if err != nil {
		return nil, err
	}
	if signer.ApprovalToken == "" {
		return nil, fmt.Errorf("%w: authority returned signer %q without an approval token", common.ErrorInternal, rec.SignerID)
	}

	if len(signer.PublicKey) == 0 {
		signer.PublicKey = key.PublicKey
	}
	if signer.Deadline.IsZero() {
		signer.Deadline = deadline
	}
	if signer.CreatedAt.IsZero() {
		signer.CreatedAt = now
	}
	signer.LastCheckedAt = now

	stored, err := s.repomanager.Signers(s.db).Upsert(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("%w: cache signer: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "signer created", "signer_id", stored.ID, "deadline", stored.Deadline)
	return stored, nil
}

// Poll reports the current state of the signer behind approvalToken.
// Concurrent polls for the same token share one upstream call, and the
// cache write never moves a state backwards, so polling cannot race a
// transition. A caller that gives up stops waiting; the shared call still
// finishes within the upstream timeout.
func (s *SignerService) Poll(ctx context.Context, approvalToken string) (*models.Signer, error) {
	if approvalToken == "" {
		return nil, common.ErrorNotFound
	}

	ch := s.polls.DoChan(approvalToken, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.upstreamTimeout)
		defer cancel()
		return s.poll(pctx, approvalToken)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.metrics.SignerPolled("", res.Err)
			return nil, res.Err
		}
		// Callers sharing a result must not share the pointer.
		signer := *res.Val.(*models.Signer)
		s.metrics.SignerPolled(string(signer.State), nil)
		return &signer, nil
	}
}

func (s *SignerService) poll(ctx context.Context, approvalToken string) (*models.Signer, error) {
	// Revoked is final, so a cached revocation needs no upstream call.
	cached, err := s.repomanager.Signers(s.db).FindByToken(ctx, approvalToken)
	switch {
	case err == nil && cached.State.Terminal():
		return cached, nil
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		s.logger.Warn(ctx, "signer cache read failed", "error", err)
	}

	rec, err := s.authority.Poll(ctx, approvalToken)
	if err != nil {
		return nil, err
	}
	signer, err := toSigner(rec)
	if err != nil {
		return nil, err
	}
	if signer.ApprovalToken == "" {
		signer.ApprovalToken = approvalToken
	}

	now := s.now()
	signer.LastCheckedAt = now
	if signer.CreatedAt.IsZero() {
		signer.CreatedAt = now
	}

	return s.refresh(ctx, signer, now), nil
}

// refresh writes signer into the cache and applies the approval deadline.
// Cache failures are logged and the authority's view is returned as is.
func (s *SignerService) refresh(ctx context.Context, signer *models.Signer, now time.Time) *models.Signer {
	repo := s.repomanager.Signers(s.db)

	stored, err := repo.Upsert(ctx, signer)
	if err != nil {
		s.logger.Warn(ctx, "signer cache write failed", "signer_id", signer.ID, "error", err)
		stored = signer
	}

	if stored.Expired(now) {
		stored.State = models.SignerRevoked
		if _, err := repo.Upsert(ctx, stored); err != nil {
			s.logger.Warn(ctx, "signer cache write failed", "signer_id", signer.ID, "error", err)
		}
		s.logger.Info(ctx, "pending signer expired", "signer_id", stored.ID, "deadline", stored.Deadline)
	}

	return stored
}

// Revoke removes an approved signer on its owner's request.
func (s *SignerService) Revoke(ctx context.Context, signerID string, callerUserID int64) (*models.Signer, error) {
	cached, err := s.repomanager.Signers(s.db).Find(ctx, signerID)
	switch {
	case err == nil && cached.State.Terminal():
		return nil, common.ErrTerminalState
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		s.logger.Warn(ctx, "signer cache read failed", "signer_id", signerID, "error", err)
	}

	current, ok, err := s.gate.Check(ctx, signerID, callerUserID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, common.ErrorNotFound
	}
	if current.State.Terminal() {
		return nil, common.ErrTerminalState
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	uctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	rec, err := s.authority.Revoke(uctx, signerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	signer, err := toSigner(rec)
	if err != nil {
		return nil, err
	}
	if signer.State != models.SignerRevoked {
		return nil, fmt.Errorf("%w: authority reported %s after revoke", common.ErrorInternal, signer.State)
	}

	now := s.now()
	signer.LastCheckedAt = now
	if signer.CreatedAt.IsZero() {
		signer.CreatedAt = current.CreatedAt
	}

	stored := s.refresh(ctx, signer, now)
	s.logger.Info(ctx, "signer revoked", "signer_id", signerID, "fid", callerUserID)
	return stored, nil
}
