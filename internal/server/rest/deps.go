// Package rest exposes the relay over HTTP with gin.
package rest

import (
	"context"

	"github.com/dmitrijs2005/signerrelay/internal/server/models"
)

type SignerService interface {
	Create(ctx context.Context) (*models.Signer, error)
	Poll(ctx context.Context, approvalToken string) (*models.Signer, error)
	Revoke(ctx context.Context, signerID string, callerUserID int64) (*models.Signer, error)
}

type SignInService interface {
	Issue(ctx context.Context) (models.SignInChallenge, string, error)
	ParseChallenge(token string) (models.SignInChallenge, error)
	StaticEnabled() bool
	StaticChallenge(message string) (models.SignInChallenge, error)
	Verify(ctx context.Context, attempt models.SignInAttempt) (*models.VerifiedIdentity, error)
	IssueSession(id *models.VerifiedIdentity) (string, error)
	SessionUser(token string) (int64, error)
}

type SignerResolver interface {
	Resolve(ctx context.Context, userID int64) ([]*models.Signer, error)
}

type CastService interface {
	Publish(ctx context.Context, signerID string, callerUserID int64, text string) (*models.Cast, error)
	Status(ctx context.Context, castID string, callerUserID int64) (*models.Cast, error)
}
