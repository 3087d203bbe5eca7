package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
)

// SignerState is the approval state of a delegated signer.
type SignerState string

const (
	SignerPending  SignerState = "pending"
	SignerApproved SignerState = "approved"
	SignerRevoked  SignerState = "revoked"
)

// transitions lists the states reachable from each state. Revoked is terminal.
var transitions = map[SignerState][]SignerState{
	SignerPending:  {SignerApproved, SignerRevoked},
	SignerApproved: {SignerRevoked},
	SignerRevoked:  {},
}

// Rank orders states so that a state never moves backwards.
func (s SignerState) Rank() int {
	switch s {
	case SignerPending:
		return 0
	case SignerApproved:
		return 1
	case SignerRevoked:
		return 2
	default:
		return -1
	}
}

func (s SignerState) Valid() bool {
	return s.Rank() >= 0
}

func (s SignerState) Terminal() bool {
	return s == SignerRevoked
}

// CanTransition reports whether to is reachable from s. Staying in the
// same state is always allowed.
func (s SignerState) CanTransition(to SignerState) bool {
	if s == to {
		return s.Valid()
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseSignerState maps an upstream state string onto SignerState.
// The authority reports "pending_approval" for requests awaiting the user.
func ParseSignerState(v string) (SignerState, error) {
	switch v {
	case "pending", "pending_approval", "generated":
		return SignerPending, nil
	case "approved":
		return SignerApproved, nil
	case "revoked":
		return SignerRevoked, nil
	default:
		return "", fmt.Errorf("%w: unknown signer state %q", common.ErrorValidation, v)
	}
}

// Signer is a delegated key that may publish casts for its owner once approved.
type Signer struct {
	ID        string
	PublicKey []byte
	State     SignerState
	// OwnerUserID stays nil until a verified identity resolves the signer.
	OwnerUserID   *int64
	CreatedAt     time.Time
	ApprovalToken string
	DeeplinkURL   string
	// Deadline is when a pending request stops being approvable.
	Deadline      time.Time
	LastCheckedAt time.Time
}

// Expired reports whether a pending signer has outlived its deadline.
func (s *Signer) Expired(now time.Time) bool {
	return s.State == SignerPending && !s.Deadline.IsZero() && now.After(s.Deadline)
}

// OwnedBy reports whether the signer is bound to userID.
func (s *Signer) OwnedBy(userID int64) bool {
	return s.OwnerUserID != nil && *s.OwnerUserID == userID
}
