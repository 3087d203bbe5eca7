package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/authority"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/nonces"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/signerrelay/internal/server/siwe"
	"github.com/dmitrijs2005/signerrelay/internal/server/sponsor"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// --- fake authority ---

type fakeAuthority struct {
	mu      sync.Mutex
	signers map[string]*authority.SignerRecord
	tokens  map[string]string
	next    int

	createErr  error
	sponsorErr error
	pollErr    error
	getErr     error
	listErr    error
	castErr    error
	castHash   string

	pollGate  chan struct{}
	pollCalls   atomic.Int32
	getCalls    atomic.Int32
	revokeCalls atomic.Int32
	castCalls   atomic.Int32

	sponsorships []*sponsor.Sponsorship
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		signers:  map[string]*authority.SignerRecord{},
		tokens:   map[string]string{},
		castHash: "0xcafe",
	}
}

func (f *fakeAuthority) CreateKey(ctx context.Context) (*authority.SignerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.next++
	id := fmt.Sprintf("signer-%d", f.next)
	rec := &authority.SignerRecord{
		SignerID:  id,
		PublicKey: hexutil.Encode([]byte{byte(f.next), 0xee}),
		State:     "generated",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, f.next, 0, time.UTC).Unix(),
	}
	f.signers[id] = rec
	out := *rec
	return &out, nil
}

func (f *fakeAuthority) Sponsor(ctx context.Context, signerID string, sp *sponsor.Sponsorship) (*authority.SignerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sponsorErr != nil {
		return nil, f.sponsorErr
	}
	rec, ok := f.signers[signerID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	f.sponsorships = append(f.sponsorships, sp)
	rec.State = "pending_approval"
	rec.ApprovalToken = "token-" + signerID
	rec.DeeplinkURL = "farcaster://signed-key-request?token=" + rec.ApprovalToken
	f.tokens[rec.ApprovalToken] = signerID
	out := *rec
	return &out, nil
}

func (f *fakeAuthority) Poll(ctx context.Context, token string) (*authority.SignerRecord, error) {
	f.pollCalls.Add(1)
	if f.pollGate != nil {
		select {
		case <-f.pollGate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	id, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *f.signers[id]
	return &out, nil
}

func (f *fakeAuthority) GetSigner(ctx context.Context, signerID string) (*authority.SignerRecord, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.signers[signerID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *rec
	return &out, nil
}

func (f *fakeAuthority) ListSigners(ctx context.Context, fid int64) ([]authority.SignerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []authority.SignerRecord
	for _, rec := range f.signers {
		if rec.FID == fid {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeAuthority) Revoke(ctx context.Context, signerID string) (*authority.SignerRecord, error) {
	f.revokeCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.signers[signerID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	rec.State = "revoked"
	out := *rec
	return &out, nil
}

func (f *fakeAuthority) SubmitCast(ctx context.Context, signerID, text string) (string, error) {
	f.castCalls.Add(1)
	if f.castErr != nil {
		return "", f.castErr
	}
	return f.castHash, nil
}

// approve simulates the user approving the signer out of band.
func (f *fakeAuthority) approve(signerID string, fid int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.signers[signerID]
	rec.State = "approved"
	rec.FID = fid
}

// put stores a signer directly, bypassing creation.
func (f *fakeAuthority) put(rec authority.SignerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := rec
	f.signers[rec.SignerID] = &r
	if rec.ApprovalToken != "" {
		f.tokens[rec.ApprovalToken] = rec.SignerID
	}
}

// --- fake registry ---

type fakeRegistry struct {
	mu    sync.Mutex
	fids  map[ethcommon.Address]int64
	err   error
	calls int
}

func (r *fakeRegistry) FIDByAddress(ctx context.Context, addr ethcommon.Address) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	fid, ok := r.fids[addr]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return fid, nil
}

func (r *fakeRegistry) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// --- fake archiver ---

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*models.Cast
	err      error
}

func (a *fakeArchiver) Archive(ctx context.Context, c *models.Cast) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, c)
	return a.err
}

// --- environment ---

// baseNow tracks the wall clock because the nonce store keeps its own.
var baseNow = time.Now().UTC().Truncate(time.Second)

type testEnv struct {
	cfg       *config.Config
	authority *fakeAuthority
	registry  *fakeRegistry
	archiver  *fakeArchiver
	repos     *repomanager.MemoryRepositoryManager
	nonces    *nonces.MemoryStore
	sponsor   *sponsor.Sponsor

	gate    *AuthorizationGate
	signers *SignerService
	signIn  *SignInService
	casts   *CastService

	clock *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AppFID = 1
	cfg.SecretKey = "test-secret"
	cfg.UpstreamTimeout = time.Second
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, newTestConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	clock := &testClock{now: baseNow}
	l := logging.Nop{}

	e := &testEnv{
		cfg:       cfg,
		authority: newFakeAuthority(),
		registry:  &fakeRegistry{fids: map[ethcommon.Address]int64{}},
		archiver:  &fakeArchiver{},
		repos:     repomanager.NewMemoryRepositoryManager(),
		nonces:    nonces.NewMemoryStore(l),
		sponsor:   sponsor.New(cfg.AppFID, key),
		clock:     clock,
	}

	e.gate = NewAuthorizationGate(nil, e.repos, e.authority, cfg, l)
	e.gate.now = clock.Now
	e.signers = NewSignerService(nil, e.repos, e.authority, e.sponsor, e.gate, cfg, l, nil)
	e.signers.now = clock.Now
	e.signIn = NewSignInService(e.nonces, e.registry, cfg, l, nil)
	e.signIn.now = clock.Now
	e.casts = NewCastService(nil, e.repos, e.authority, e.gate, e.archiver, cfg, l, nil)
	e.casts.now = clock.Now

	return e
}

// --- sign-in helpers ---

type wallet struct {
	key  *ecdsa.PrivateKey
	addr ethcommon.Address
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// register makes the wallet the custody address of fid.
func (e *testEnv) register(w *wallet, fid int64) {
	e.registry.mu.Lock()
	defer e.registry.mu.Unlock()
	e.registry.fids[w.addr] = fid
}

func (w *wallet) message(domain, nonce string, fid int64, issuedAt time.Time) *siwe.Message {
	return &siwe.Message{
		Domain:    domain,
		Address:   w.addr,
		Statement: "Farcaster Auth",
		URI:       "https://" + domain + "/login",
		Version:   "1",
		ChainID:   10,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		Resources: []string{fmt.Sprintf("farcaster://fid/%d", fid)},
	}
}

func (w *wallet) sign(t *testing.T, msg string) []byte {
	t.Helper()
	sig, err := crypto.Sign(siwe.HashMessage(msg), w.key)
	require.NoError(t, err)
	sig[64] += 27
	return sig
}

func (w *wallet) attempt(t *testing.T, ch models.SignInChallenge, fid int64, issuedAt time.Time) models.SignInAttempt {
	t.Helper()
	msg := w.message(ch.Domain, ch.Nonce, fid, issuedAt).String()
	return models.SignInAttempt{Message: msg, Signature: w.sign(t, msg), Challenge: ch}
}
