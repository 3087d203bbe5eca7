// Package authority is the HTTP client for the credential authority: the
// service that generates signer keys, tracks their approval and accepts casts.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/dmitrijs2005/signerrelay/internal/server/sponsor"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// errDecode marks a 2xx response whose body could not be read.
var errDecode = errors.New("undecodable response")

// SignerRecord is the authority's view of a signer.
type SignerRecord struct {
	SignerID      string `json:"signer_id"`
	PublicKey     string `json:"public_key"`
	State         string `json:"state"`
	FID           int64  `json:"fid,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
	DeeplinkURL   string `json:"deeplink_url,omitempty"`
	Deadline      int64  `json:"deadline,omitempty"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// Signer converts the record into a models.Signer. The owner is left unset:
// only a verified identity binds it.
func (r *SignerRecord) Signer() (*models.Signer, error) {
	state, err := models.ParseSignerState(r.State)
	if err != nil {
		return nil, err
	}

	var pub []byte
	if r.PublicKey != "" {
		if pub, err = hexutil.Decode(r.PublicKey); err != nil {
			return nil, fmt.Errorf("%w: public key: %v", common.ErrorValidation, err)
		}
	}

	s := &models.Signer{
		ID:            r.SignerID,
		PublicKey:     pub,
		State:         state,
		ApprovalToken: r.ApprovalToken,
		DeeplinkURL:   r.DeeplinkURL,
	}
	if r.Deadline > 0 {
		s.Deadline = time.Unix(r.Deadline, 0).UTC()
	}
	if r.CreatedAt > 0 {
		s.CreatedAt = time.Unix(r.CreatedAt, 0).UTC()
	}
	return s, nil
}

type sponsorRequest struct {
	AppFID    int64  `json:"app_fid"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

type castRequest struct {
	SignerID string `json:"signer_id"`
	Text     string `json:"text"`
}

type castResponse struct {
	Hash string `json:"hash"`
}

type listResponse struct {
	Signers []SignerRecord `json:"signers"`
}

// Client talks to the authority over JSON/HTTP with a bearer token.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(base, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), token: token, http: hc}
}

// CreateKey asks the authority for a fresh signer key pair.
func (c *Client) CreateKey(ctx context.Context) (*SignerRecord, error) {
	var out SignerRecord
	if err := c.do(ctx, http.MethodPost, "/v1/signers", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("create signer key: %w", err)
	}
	return &out, nil
}

// Sponsor attaches the app's signed key request to a generated signer and
// returns the record with its approval token and deeplink.
func (c *Client) Sponsor(ctx context.Context, signerID string, sp *sponsor.Sponsorship) (*SignerRecord, error) {
	in := sponsorRequest{
		AppFID:    sp.RequestFID,
		Deadline:  sp.Deadline.Unix(),
		Signature: hexutil.Encode(sp.Signature),
	}
	var out SignerRecord
	if err := c.do(ctx, http.MethodPost, "/v1/signers/"+url.PathEscape(signerID)+"/sponsor", in, &out); err != nil {
		return nil, fmt.Errorf("sponsor signer: %w", err)
	}
	return &out, nil
}

// Poll looks a signer up by its approval token.
func (c *Client) Poll(ctx context.Context, token string) (*SignerRecord, error) {
	var out SignerRecord
	if err := c.do(ctx, http.MethodGet, "/v1/signers/poll?token="+url.QueryEscape(token), nil, &out); err != nil {
		return nil, fmt.Errorf("poll signer: %w", err)
	}
	return &out, nil
}

// GetSigner looks a signer up by id.
func (c *Client) GetSigner(ctx context.Context, signerID string) (*SignerRecord, error) {
	var out SignerRecord
	if err := c.do(ctx, http.MethodGet, "/v1/signers/"+url.PathEscape(signerID), nil, &out); err != nil {
		return nil, fmt.Errorf("get signer: %w", err)
	}
	return &out, nil
}

// ListSigners returns the signers registered for fid.
func (c *Client) ListSigners(ctx context.Context, fid int64) ([]SignerRecord, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/v1/signers?fid="+strconv.FormatInt(fid, 10), nil, &out); err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}
	return out.Signers, nil
}

// Revoke removes a signer's key.
func (c *Client) Revoke(ctx context.Context, signerID string) (*SignerRecord, error) {
	var out SignerRecord
	if err := c.do(ctx, http.MethodPost, "/v1/signers/"+url.PathEscape(signerID)+"/revoke", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("revoke signer: %w", err)
	}
	return &out, nil
}

// SubmitCast publishes text through signerID. An accepted cast without a
// hash is reported as common.ErrPublishFailed.
func (c *Client) SubmitCast(ctx context.Context, signerID, text string) (string, error) {
	var out castResponse
	err := c.do(ctx, http.MethodPost, "/v1/casts", castRequest{SignerID: signerID, Text: text}, &out)
	if errors.Is(err, errDecode) {
		return "", fmt.Errorf("submit cast: %w: %v", common.ErrPublishFailed, err)
	}
	if err != nil {
		return "", fmt.Errorf("submit cast: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("submit cast: %w: no hash returned", common.ErrPublishFailed)
	}
	return out.Hash, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}
	return nil
}

// classify maps a non-2xx response onto the relay's error taxonomy.
func classify(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(msg))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, detail)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", common.ErrQuotaExceeded, detail)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %s: %s", common.ErrUpstreamUnavailable, resp.Status, detail)
	default:
		return fmt.Errorf("%w: authority rejected request: %s: %s", common.ErrorInternal, resp.Status, detail)
	}
}
