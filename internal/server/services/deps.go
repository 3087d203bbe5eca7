// Package services implements the relay core: the signer lifecycle, sign-in
// verification, the authorization gate and cast publishing.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/authority"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/sponsor"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Authority is the credential authority as seen by the core.
type Authority interface {
	CreateKey(ctx context.Context) (*authority.SignerRecord, error)
	Sponsor(ctx context.Context, signerID string, sp *sponsor.Sponsorship) (*authority.SignerRecord, error)
	Poll(ctx context.Context, token string) (*authority.SignerRecord, error)
	GetSigner(ctx context.Context, signerID string) (*authority.SignerRecord, error)
	ListSigners(ctx context.Context, fid int64) ([]authority.SignerRecord, error)
	Revoke(ctx context.Context, signerID string) (*authority.SignerRecord, error)
	SubmitCast(ctx context.Context, signerID, text string) (string, error)
}

// KeySponsor signs key requests with the app's identity.
type KeySponsor interface {
	FID() int64
	SignKeyRequest(key []byte, deadline time.Time) (*sponsor.Sponsorship, error)
}

// IdentityRegistry maps custody addresses to fids.
type IdentityRegistry interface {
	FIDByAddress(ctx context.Context, addr ethcommon.Address) (int64, error)
}

// toSigner converts an authority record. A record the relay cannot read is
// an upstream contract violation, not a caller error.
func toSigner(rec *authority.SignerRecord) (*models.Signer, error) {
	s, err := rec.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return s, nil
}
