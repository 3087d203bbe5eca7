package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/auth"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/nonces"
	"github.com/dmitrijs2005/signerrelay/internal/server/siwe"
)

// nonceBytes is the entropy of an issued nonce; it is hex encoded.
const nonceBytes = 16

// SignInService issues sign-in challenges and verifies the signed answers.
type SignInService struct {
	nonces          nonces.Store
	registry        IdentityRegistry
	logger          logging.Logger
	metrics         *metrics.Metrics
	jwtSecret       []byte
	domain          string
	staticNonce     string
	challengeTTL    time.Duration
	sessionTTL      time.Duration
	upstreamTimeout time.Duration
	now             func() time.Time
}

func NewSignInService(ns nonces.Store, r IdentityRegistry, cfg *config.Config, l logging.Logger, mt *metrics.Metrics) *SignInService {
	return &SignInService{
		nonces:          ns,
		registry:        r,
		logger:          l.With("module", "signin"),
		metrics:         mt,
		jwtSecret:       []byte(cfg.SecretKey),
		domain:          cfg.SignInDomain,
		staticNonce:     cfg.SignInNonce,
		challengeTTL:    cfg.ChallengeTTL,
		sessionTTL:      cfg.SessionTokenValidityDuration,
		upstreamTimeout: cfg.UpstreamTimeout,
		now:             time.Now,
	}
}

// Issue creates a fresh challenge and a signed token the client returns with
// its answer. With a static nonce configured, that nonce is used instead.
func (s *SignInService) Issue(ctx context.Context) (models.SignInChallenge, string, error) {
	nonce := s.staticNonce
	if nonce == "" {
		var err error
		if nonce, err = common.MakeRandHexString(nonceBytes); err != nil {
			return models.SignInChallenge{}, "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
		}
	}

	ch := models.SignInChallenge{
		Domain:    s.domain,
		Nonce:     nonce,
		ExpiresAt: s.now().Add(s.challengeTTL).Truncate(time.Second),
	}

	token, err := auth.GenerateChallengeToken(ch, s.jwtSecret)
	if err != nil {
		return models.SignInChallenge{}, "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.logger.Debug(ctx, "challenge issued", "expires_at", ch.ExpiresAt)
	return ch, token, nil
}

// ParseChallenge recovers the challenge from a token made by Issue.
func (s *SignInService) ParseChallenge(token string) (models.SignInChallenge, error) {
	ch, err := auth.ParseChallengeToken(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return models.SignInChallenge{}, common.ErrChallengeExpired
		}
		return models.SignInChallenge{}, fmt.Errorf("%w: challenge token: %v", common.ErrInvalidSignature, err)
	}
	if ch.Domain != s.domain {
		return models.SignInChallenge{}, fmt.Errorf("%w: challenge issued for %q", common.ErrInvalidSignature, ch.Domain)
	}
	return ch, nil
}

// StaticEnabled reports whether a static nonce is configured.
func (s *SignInService) StaticEnabled() bool {
	return s.staticNonce != ""
}

// StaticChallenge builds the challenge for the configured static nonce.
// Such a challenge lives for the challenge TTL from the message's Issued At.
func (s *SignInService) StaticChallenge(message string) (models.SignInChallenge, error) {
	if s.staticNonce == "" {
		return models.SignInChallenge{}, fmt.Errorf("%w: challenge token required", common.ErrorValidation)
	}
	msg, err := siwe.Parse(message)
	if err != nil {
		return models.SignInChallenge{}, fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	}
	return models.SignInChallenge{
		Domain:    s.domain,
		Nonce:     s.staticNonce,
		ExpiresAt: msg.IssuedAt.Add(s.challengeTTL),
	}, nil
}

// Verify checks a signed sign-in message against its challenge and returns
// the identity it proves.
//
// The nonce is consumed last, only once every other check has passed and
// only if the caller is still waiting. An attempt abandoned before that
// point leaves the nonce usable; once consumed, the result is returned.
func (s *SignInService) Verify(ctx context.Context, attempt models.SignInAttempt) (id *models.VerifiedIdentity, err error) {
	defer func() { s.metrics.SignIn(err) }()

	ch := attempt.Challenge
	if ch.Domain == "" || ch.Nonce == "" {
		return nil, fmt.Errorf("%w: incomplete challenge", common.ErrorValidation)
	}

	now := s.now()
	if !now.Before(ch.ExpiresAt) {
		return nil, common.ErrChallengeExpired
	}

	msg, err := siwe.Parse(attempt.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	}
	if msg.Domain != ch.Domain {
		return nil, fmt.Errorf("%w: message domain %q does not match challenge", common.ErrInvalidSignature, msg.Domain)
	}
	if msg.Nonce != ch.Nonce {
		return nil, fmt.Errorf("%w: message nonce does not match challenge", common.ErrInvalidSignature)
	}
	if err := msg.ValidAt(now); err != nil {
		if errors.Is(err, siwe.ErrExpired) {
			return nil, common.ErrChallengeExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	}

	fid, ok := msg.FID()
	if !ok {
		return nil, fmt.Errorf("%w: message carries no fid", common.ErrInvalidSignature)
	}

	if err := siwe.Verify(attempt.Message, attempt.Signature, msg.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	}

	registered, err := s.lookupFID(ctx, msg)
	if err != nil {
		return nil, err
	}
	if registered != fid {
		return nil, fmt.Errorf("%w: %s is the custody address of fid %d, not %d", common.ErrInvalidSignature, msg.Address.Hex(), registered, fid)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.nonces.Consume(ctx, s.consumptionKey(ch, attempt.Message), ch.ExpiresAt); err != nil {
		if errors.Is(err, nonces.ErrConsumed) {
			return nil, common.ErrChallengeReused
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "sign-in verified", "fid", fid, "address", msg.Address.Hex())
	return &models.VerifiedIdentity{UserID: fid, Address: msg.Address.Hex(), VerifiedAt: now}, nil
}

func (s *SignInService) lookupFID(ctx context.Context, msg *siwe.Message) (int64, error) {
	rctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	fid, err := s.registry.FIDByAddress(rctx, msg.Address)
	switch {
	case err == nil:
		return fid, nil
	case errors.Is(err, common.ErrorNotFound):
		return 0, fmt.Errorf("%w: %s has no fid", common.ErrInvalidSignature, msg.Address.Hex())
	case errors.Is(err, common.ErrUpstreamVerification):
		return 0, err
	default:
		return 0, fmt.Errorf("%w: %v", common.ErrUpstreamVerification, err)
	}
}

// consumptionKey names the single-use entry for an attempt. Issued nonces
// are unique on their own; a static nonce is shared by every client, so it
// is qualified by the message that used it.
func (s *SignInService) consumptionKey(ch models.SignInChallenge, message string) string {
	if s.staticNonce != "" && ch.Nonce == s.staticNonce {
		return ch.Nonce + ":" + hex.EncodeToString(siwe.HashMessage(message))
	}
	return ch.Nonce
}

// IssueSession returns a session token for a verified identity.
func (s *SignInService) IssueSession(id *models.VerifiedIdentity) (string, error) {
	token, err := auth.GenerateToken(id.UserID, s.jwtSecret, s.sessionTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return token, nil
}

// SessionUser returns the fid carried by a session token.
func (s *SignInService) SessionUser(token string) (int64, error) {
	fid, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	return fid, nil
}
