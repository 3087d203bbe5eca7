package rest

import (
	"regexp"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/ethereum/go-ethereum/common/hexutil"
	validation "github.com/go-ozzo/ozzo-validation"
)

var signaturePattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{130}$`)

type signerResponse struct {
	SignerID      string `json:"signer_id"`
	PublicKey     string `json:"public_key,omitempty"`
	State         string `json:"state"`
	OwnerFID      *int64 `json:"fid,omitempty"`
	ApprovalToken string `json:"token,omitempty"`
	DeeplinkURL   string `json:"deeplink_url,omitempty"`
	Deadline      int64  `json:"deadline,omitempty"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

func newSignerResponse(s *models.Signer) signerResponse {
	r := signerResponse{
		SignerID:      s.ID,
		State:         string(s.State),
		OwnerFID:      s.OwnerUserID,
		ApprovalToken: s.ApprovalToken,
		DeeplinkURL:   s.DeeplinkURL,
	}
	if len(s.PublicKey) > 0 {
		r.PublicKey = hexutil.Encode(s.PublicKey)
	}
	if !s.Deadline.IsZero() {
		r.Deadline = s.Deadline.Unix()
	}
	if !s.CreatedAt.IsZero() {
		r.CreatedAt = s.CreatedAt.Unix()
	}
	return r
}

type challengeResponse struct {
	Domain         string    `json:"domain"`
	Nonce          string    `json:"nonce"`
	ExpiresAt      time.Time `json:"expires_at"`
	ChallengeToken string    `json:"challenge_token"`
}

type retrieveSignerRequest struct {
	Message        string `json:"message"`
	Signature      string `json:"signature"`
	ChallengeToken string `json:"challenge_token"`
}

func (r retrieveSignerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4096)),
		validation.Field(&r.Signature, validation.Required, validation.Match(signaturePattern)),
	)
}

type retrieveSignerResponse struct {
	FID          int64            `json:"fid"`
	Signers      []signerResponse `json:"signers"`
	SessionToken string           `json:"session_token"`
}

type castRequest struct {
	SignerID    string `json:"signerId"`
	CastMessage string `json:"castMessage"`
}

func (r castRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SignerID, validation.Required, validation.Length(1, 128)),
	)
}

type castResponse struct {
	Hash string `json:"hash"`
	ID   string `json:"id"`
}

type castStatusResponse struct {
	ID        string    `json:"id"`
	SignerID  string    `json:"signer_id"`
	Status    string    `json:"status"`
	Hash      string    `json:"hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCastStatusResponse(c *models.Cast) castStatusResponse {
	return castStatusResponse{
		ID:        c.ID,
		SignerID:  c.SignerID,
		Status:    string(c.Status),
		Hash:      c.ContentID,
		Error:     c.Error,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	CastID  string `json:"id,omitempty"`
}
