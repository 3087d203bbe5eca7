package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/siwe"
	"github.com/gin-gonic/gin"
)

func (s *HTTPServer) hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello")
}

func (s *HTTPServer) createSigner(c *gin.Context) {
	signer, err := s.signers.Create(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSignerResponse(signer))
}

func (s *HTTPServer) pollSigner(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		s.fail(c, errors.Join(common.ErrorValidation, errors.New("token is required")))
		return
	}

	signer, err := s.signers.Poll(c.Request.Context(), token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSignerResponse(signer))
}

func (s *HTTPServer) challenge(c *gin.Context) {
	ch, token, err := s.signIn.Issue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, challengeResponse{
		Domain:         ch.Domain,
		Nonce:          ch.Nonce,
		ExpiresAt:      ch.ExpiresAt,
		ChallengeToken: token,
	})
}

// retrieveSigner verifies a signed sign-in message and returns the caller's
// signers together with a session token.
func (s *HTTPServer) retrieveSigner(c *gin.Context) {
	ctx := c.Request.Context()

	var req retrieveSignerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Join(common.ErrorValidation, err))
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, errors.Join(common.ErrorValidation, err))
		return
	}

	sig, err := siwe.DecodeSignature(req.Signature)
	if err != nil {
		s.fail(c, errors.Join(common.ErrInvalidSignature, err))
		return
	}

	var ch models.SignInChallenge
	switch {
	case req.ChallengeToken != "":
		ch, err = s.signIn.ParseChallenge(req.ChallengeToken)
	default:
		ch, err = s.signIn.StaticChallenge(req.Message)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	id, err := s.signIn.Verify(ctx, models.SignInAttempt{Message: req.Message, Signature: sig, Challenge: ch})
	if err != nil {
		s.fail(c, err)
		return
	}

	signers, err := s.resolver.Resolve(ctx, id.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}

	session, err := s.signIn.IssueSession(id)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := retrieveSignerResponse{
		FID:          id.UserID,
		Signers:      make([]signerResponse, 0, len(signers)),
		SessionToken: session,
	}
	for _, signer := range signers {
		resp.Signers = append(resp.Signers, newSignerResponse(signer))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) publishCast(c *gin.Context) {
	var req castRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Join(common.ErrorValidation, err))
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, errors.Join(common.ErrorValidation, err))
		return
	}

	cast, err := s.casts.Publish(c.Request.Context(), req.SignerID, userID(c), req.CastMessage)
	if err != nil {
		status, code := statusFor(err)
		resp := errorResponse{Error: code, Message: publicMessage(status, err)}
		if cast != nil {
			resp.CastID = cast.ID
		}
		s.logRejection(c, status, err)
		c.AbortWithStatusJSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, castResponse{Hash: cast.ContentID, ID: cast.ID})
}

func (s *HTTPServer) castStatus(c *gin.Context) {
	cast, err := s.casts.Status(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCastStatusResponse(cast))
}

func (s *HTTPServer) revokeSigner(c *gin.Context) {
	signer, err := s.signers.Revoke(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSignerResponse(signer))
}

// fail writes the error response for err and stops the handler chain.
func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	s.logRejection(c, status, err)
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: publicMessage(status, err)})
}

func (s *HTTPServer) logRejection(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "route", c.FullPath(), "status", status, "error", err)
		return
	}
	s.logger.Info(c.Request.Context(), "request rejected", "route", c.FullPath(), "status", status, "error", err)
}

// publicMessage hides internal error details from clients.
func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return ""
	}
	return err.Error()
}
