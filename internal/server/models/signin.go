package models

import "time"

// SignInChallenge binds a sign-in message to a domain and a single-use nonce.
type SignInChallenge struct {
	Domain    string
	Nonce     string
	ExpiresAt time.Time
}

// SignInAttempt is what a client submits to prove control of its custody key.
type SignInAttempt struct {
	Message   string
	Signature []byte
	Challenge SignInChallenge
}

// VerifiedIdentity is the outcome of a successful sign-in.
type VerifiedIdentity struct {
	UserID     int64
	Address    string
	VerifiedAt time.Time
}
