package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	validSignature = "0x" + strings.Repeat("ab", 65)
	created        = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fakeSigners struct {
	signer    *models.Signer
	err       error
	lastToken string
	revokedBy int64
}

func (f *fakeSigners) Create(ctx context.Context) (*models.Signer, error) {
	return f.signer, f.err
}

func (f *fakeSigners) Poll(ctx context.Context, token string) (*models.Signer, error) {
	f.lastToken = token
	return f.signer, f.err
}

func (f *fakeSigners) Revoke(ctx context.Context, signerID string, caller int64) (*models.Signer, error) {
	f.revokedBy = caller
	return f.signer, f.err
}

type fakeSignIn struct {
	static      bool
	verifyErr   error
	parseErr    error
	lastAttempt models.SignInAttempt
}

func (f *fakeSignIn) Issue(ctx context.Context) (models.SignInChallenge, string, error) {
	return models.SignInChallenge{Domain: "example.xyz", Nonce: "abc", ExpiresAt: created}, "challenge-token", nil
}

func (f *fakeSignIn) ParseChallenge(token string) (models.SignInChallenge, error) {
	if f.parseErr != nil {
		return models.SignInChallenge{}, f.parseErr
	}
	return models.SignInChallenge{Domain: "example.xyz", Nonce: token}, nil
}

func (f *fakeSignIn) StaticEnabled() bool { return f.static }

func (f *fakeSignIn) StaticChallenge(message string) (models.SignInChallenge, error) {
	if !f.static {
		return models.SignInChallenge{}, fmt.Errorf("%w: challenge token required", common.ErrorValidation)
	}
	return models.SignInChallenge{Domain: "example.xyz", Nonce: "static"}, nil
}

func (f *fakeSignIn) Verify(ctx context.Context, a models.SignInAttempt) (*models.VerifiedIdentity, error) {
	f.lastAttempt = a
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &models.VerifiedIdentity{UserID: 42}, nil
}

func (f *fakeSignIn) IssueSession(id *models.VerifiedIdentity) (string, error) {
	return fmt.Sprintf("session-%d", id.UserID), nil
}

func (f *fakeSignIn) SessionUser(token string) (int64, error) {
	var fid int64
	if _, err := fmt.Sscanf(token, "session-%d", &fid); err != nil {
		return 0, common.ErrorUnauthorized
	}
	return fid, nil
}

type fakeResolver struct {
	signers []*models.Signer
	err     error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID int64) ([]*models.Signer, error) {
	return f.signers, f.err
}

type fakeCasts struct {
	cast       *models.Cast
	err        error
	lastCaller int64
	lastText   string
}

func (f *fakeCasts) Publish(ctx context.Context, signerID string, caller int64, text string) (*models.Cast, error) {
	f.lastCaller, f.lastText = caller, text
	return f.cast, f.err
}

func (f *fakeCasts) Status(ctx context.Context, castID string, caller int64) (*models.Cast, error) {
	f.lastCaller = caller
	return f.cast, f.err
}

type testServer struct {
	*HTTPServer
	signers  *fakeSigners
	signIn   *fakeSignIn
	resolver *fakeResolver
	casts    *fakeCasts
	registry *prometheus.Registry
}

func newTestServer() *testServer {
	owner := int64(42)
	ts := &testServer{
		signers: &fakeSigners{signer: &models.Signer{
			ID: "s1", PublicKey: []byte{0x01, 0x02}, State: models.SignerPending,
			ApprovalToken: "tok", DeeplinkURL: "farcaster://x", Deadline: created.Add(time.Hour), CreatedAt: created,
		}},
		signIn: &fakeSignIn{},
		resolver: &fakeResolver{signers: []*models.Signer{
			{ID: "s1", State: models.SignerApproved, OwnerUserID: &owner, CreatedAt: created},
		}},
		casts: &fakeCasts{cast: &models.Cast{
			ID: "c1", SignerID: "s1", AuthorUserID: 42, Status: models.CastPublished, ContentID: "0xhash",
		}},
		registry: prometheus.NewRegistry(),
	}
	ts.HTTPServer = NewHTTPServer(":0", logging.Nop{}, Services{
		Signers: ts.signers, SignIn: ts.signIn, Resolver: ts.resolver, Casts: ts.casts,
	}, metrics.New(ts.registry), ts.registry)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, session string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHello(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello", rec.Body.String())
}

func TestCreateSigner(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/signer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[signerResponse](t, rec)
	assert.Equal(t, "s1", got.SignerID)
	assert.Equal(t, "0x0102", got.PublicKey)
	assert.Equal(t, "pending", got.State)
	assert.Equal(t, "tok", got.ApprovalToken)
	assert.Equal(t, created.Add(time.Hour).Unix(), got.Deadline)
	assert.Nil(t, got.OwnerFID)

	ts.signers.err = common.ErrQuotaExceeded
	rec = ts.do(t, http.MethodPost, "/signer", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "quota_exceeded", decode[errorResponse](t, rec).Error)
}

func TestPollSigner(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/pollSigner", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/pollSigner?token=tok", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", ts.signers.lastToken)

	ts.signers.err = common.ErrorNotFound
	rec = ts.do(t, http.MethodGet, "/pollSigner?token=nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.signers.err = common.ErrUpstreamUnavailable
	rec = ts.do(t, http.MethodGet, "/pollSigner?token=tok", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChallenge(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/challenge", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[challengeResponse](t, rec)
	assert.Equal(t, "example.xyz", got.Domain)
	assert.Equal(t, "abc", got.Nonce)
	assert.Equal(t, "challenge-token", got.ChallengeToken)
	assert.True(t, created.Equal(got.ExpiresAt))
}

func TestRetrieveSigner(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/retrieveSigner", retrieveSignerRequest{
		Message: "msg", Signature: validSignature, ChallengeToken: "nonce-1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[retrieveSignerResponse](t, rec)
	assert.Equal(t, int64(42), got.FID)
	assert.Equal(t, "session-42", got.SessionToken)
	require.Len(t, got.Signers, 1)
	assert.Equal(t, "approved", got.Signers[0].State)
	require.NotNil(t, got.Signers[0].OwnerFID)
	assert.Equal(t, int64(42), *got.Signers[0].OwnerFID)

	assert.Equal(t, "nonce-1", ts.signIn.lastAttempt.Challenge.Nonce)
	assert.Len(t, ts.signIn.lastAttempt.Signature, 65)
}

func TestRetrieveSigner_NoSignersIsEmptyList(t *testing.T) {
	ts := newTestServer()
	ts.resolver.signers = nil

	rec := ts.do(t, http.MethodPost, "/retrieveSigner", retrieveSignerRequest{
		Message: "msg", Signature: validSignature, ChallengeToken: "n",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signers":[]`)
}

func TestRetrieveSigner_StaticChallenge(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/retrieveSigner", retrieveSignerRequest{Message: "msg", Signature: validSignature}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.signIn.static = true
	rec = ts.do(t, http.MethodPost, "/retrieveSigner", retrieveSignerRequest{Message: "msg", Signature: validSignature}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "static", ts.signIn.lastAttempt.Challenge.Nonce)
}

func TestRetrieveSigner_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		setup  func(*testServer)
		status int
		code   string
	}{
		{"malformed json", "not an object", nil, http.StatusBadRequest, "validation_error"},
		{"missing message", retrieveSignerRequest{Signature: validSignature, ChallengeToken: "n"}, nil, http.StatusBadRequest, "validation_error"},
		{"short signature", retrieveSignerRequest{Message: "m", Signature: "0xabcd", ChallengeToken: "n"}, nil, http.StatusBadRequest, "validation_error"},
		{"bad challenge token", retrieveSignerRequest{Message: "m", Signature: validSignature, ChallengeToken: "n"},
			func(ts *testServer) { ts.signIn.parseErr = common.ErrInvalidSignature }, http.StatusUnauthorized, "invalid_signature"},
		{"expired challenge", retrieveSignerRequest{Message: "m", Signature: validSignature, ChallengeToken: "n"},
			func(ts *testServer) { ts.signIn.parseErr = common.ErrChallengeExpired }, http.StatusUnauthorized, "challenge_expired"},
		{"reused", retrieveSignerRequest{Message: "m", Signature: validSignature, ChallengeToken: "n"},
			func(ts *testServer) { ts.signIn.verifyErr = common.ErrChallengeReused }, http.StatusConflict, "challenge_reused"},
		{"registry down", retrieveSignerRequest{Message: "m", Signature: validSignature, ChallengeToken: "n"},
			func(ts *testServer) { ts.signIn.verifyErr = common.ErrUpstreamVerification }, http.StatusBadGateway, "upstream_verification_error"},
		{"authority down", retrieveSignerRequest{Message: "m", Signature: validSignature, ChallengeToken: "n"},
			func(ts *testServer) { ts.resolver.err = common.ErrUpstreamUnavailable }, http.StatusServiceUnavailable, "upstream_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			if tt.setup != nil {
				tt.setup(ts)
			}
			rec := ts.do(t, http.MethodPost, "/retrieveSigner", tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Error)
			assert.NotContains(t, rec.Body.String(), "session_token")
		})
	}
}

func TestPublishCast(t *testing.T) {
	ts := newTestServer()
	body := castRequest{SignerID: "s1", CastMessage: "hello world"}

	rec := ts.do(t, http.MethodPost, "/cast", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/cast", body, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/cast", body, "session-42")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[castResponse](t, rec)
	assert.Equal(t, "0xhash", got.Hash)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, int64(42), ts.casts.lastCaller)
	assert.Equal(t, "hello world", ts.casts.lastText)

	rec = ts.do(t, http.MethodPost, "/cast", castRequest{CastMessage: "x"}, "session-42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishCast_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		cast   *models.Cast
		status int
		code   string
		castID string
	}{
		{"empty", common.ErrEmptyContent, nil, http.StatusBadRequest, "empty_content", ""},
		{"too long", common.ErrContentTooLong, nil, http.StatusBadRequest, "content_too_long", ""},
		{"not authorized", common.ErrorUnauthorized, nil, http.StatusForbidden, "unauthorized", ""},
		{"ambiguous", common.ErrPublishFailed, &models.Cast{ID: "c9", Status: models.CastUnknown}, http.StatusBadGateway, "publish_failed", "c9"},
		{"unavailable", common.ErrUpstreamUnavailable, &models.Cast{ID: "c8", Status: models.CastFailed}, http.StatusServiceUnavailable, "upstream_unavailable", "c8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.casts.err, ts.casts.cast = tt.err, tt.cast

			rec := ts.do(t, http.MethodPost, "/cast", castRequest{SignerID: "s1"}, "session-42")
			assert.Equal(t, tt.status, rec.Code)
			got := decode[errorResponse](t, rec)
			assert.Equal(t, tt.code, got.Error)
			assert.Equal(t, tt.castID, got.CastID)
			assert.NotContains(t, rec.Body.String(), "hash")
		})
	}
}

func TestCastStatus(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/cast/c1", nil, "session-7")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[castStatusResponse](t, rec)
	assert.Equal(t, "published", got.Status)
	assert.Equal(t, "0xhash", got.Hash)
	assert.Equal(t, int64(7), ts.casts.lastCaller)

	ts.casts.err = common.ErrorNotFound
	rec = ts.do(t, http.MethodGet, "/cast/c1", nil, "session-7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevokeSigner(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/signer/s1/revoke", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/signer/s1/revoke", nil, "session-42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), ts.signers.revokedBy)

	ts.signers.err = common.ErrTerminalState
	rec = ts.do(t, http.MethodPost, "/signer/s1/revoke", nil, "session-42")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInternalErrorsHideDetails(t *testing.T) {
	ts := newTestServer()
	ts.signers.err = fmt.Errorf("%w: db password is hunter2", common.ErrorInternal)

	rec := ts.do(t, http.MethodPost, "/signer", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrInvalidSignature, http.StatusUnauthorized},
		{common.ErrChallengeExpired, http.StatusUnauthorized},
		{common.ErrChallengeReused, http.StatusConflict},
		{common.ErrUpstreamVerification, http.StatusBadGateway},
		{common.ErrorUnauthorized, http.StatusForbidden},
		{common.ErrQuotaExceeded, http.StatusTooManyRequests},
		{common.ErrPublishFailed, http.StatusBadGateway},
		{common.ErrEmptyContent, http.StatusBadRequest},
		{common.ErrContentTooLong, http.StatusBadRequest},
		{common.ErrTerminalState, http.StatusConflict},
		{common.ErrorValidation, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{common.ErrorInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, code := statusFor(fmt.Errorf("wrapped: %w", tt.err))
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotEmpty(t, code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()

	ts.do(t, http.MethodGet, "/", nil, "")
	rec := ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signerrelay_http_requests_total{method="GET",route="/",status="200"} 1`)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ts := newTestServer()
	ts.address = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestRun_BadAddress(t *testing.T) {
	ts := newTestServer()
	ts.address = "127.0.0.1:99999"

	assert.Error(t, ts.Run(context.Background()))
}
