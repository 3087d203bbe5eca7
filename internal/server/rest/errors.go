package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/signerrelay/internal/common"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{common.ErrorValidation, http.StatusBadRequest, "validation_error"},
	{common.ErrEmptyContent, http.StatusBadRequest, "empty_content"},
	{common.ErrContentTooLong, http.StatusBadRequest, "content_too_long"},
	{common.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{common.ErrChallengeExpired, http.StatusUnauthorized, "challenge_expired"},
	{common.ErrChallengeReused, http.StatusConflict, "challenge_reused"},
	{common.ErrorUnauthorized, http.StatusForbidden, "unauthorized"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
	{common.ErrTerminalState, http.StatusConflict, "terminal_state"},
	{common.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
	{common.ErrUpstreamVerification, http.StatusBadGateway, "upstream_verification_error"},
	{common.ErrPublishFailed, http.StatusBadGateway, "publish_failed"},
	{common.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// statusFor maps a core error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
