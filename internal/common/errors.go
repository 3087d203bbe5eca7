// Package common defines shared constants and sentinel errors used across
// the relay. Every failure surfaced by the core is classified into exactly
// one of these values; callers match them with errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Upstream capability errors. ErrUpstreamUnavailable is retryable by the caller.
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrQuotaExceeded        = errors.New("sponsorship quota exceeded")
	ErrUpstreamVerification = errors.New("upstream verification error")

	// Sign-in rejections. Not retryable; the caller restarts the sign-in flow.
	ErrInvalidSignature = errors.New("invalid signature")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrChallengeReused  = errors.New("challenge reused")

	// Signer lifecycle errors.
	ErrTerminalState = errors.New("signer state is terminal")

	// Cast errors. ErrPublishFailed is ambiguous: the caller re-queries the
	// cast status before retrying.
	ErrEmptyContent   = errors.New("empty content")
	ErrContentTooLong = errors.New("content too long")
	ErrPublishFailed  = errors.New("publish failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
