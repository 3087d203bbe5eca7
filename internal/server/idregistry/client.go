// Package idregistry resolves custody addresses to Farcaster ids through a
// hub's HTTP API.
package idregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type idRegistryEvent struct {
	FID int64 `json:"fid"`
}

type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// FIDByAddress returns the fid whose custody address is addr.
//
// An address with no registration yields common.ErrorNotFound. Any failure
// to get an answer yields common.ErrUpstreamVerification, so a broken
// registry is never mistaken for a negative result.
func (c *Client) FIDByAddress(ctx context.Context, addr ethcommon.Address) (int64, error) {
	u := c.base + "/v1/onChainIdRegistryEventByAddress?address=" + url.QueryEscape(strings.ToLower(addr.Hex()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUpstreamVerification, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrUpstreamVerification, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: no fid for %s", common.ErrorNotFound, addr.Hex())
	case resp.StatusCode/100 != 2:
		return 0, fmt.Errorf("%w: registry: %s", common.ErrUpstreamVerification, resp.Status)
	}

	var ev idRegistryEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return 0, fmt.Errorf("%w: decode registry event: %v", common.ErrUpstreamVerification, err)
	}
	if ev.FID <= 0 {
		return 0, fmt.Errorf("%w: no fid for %s", common.ErrorNotFound, addr.Hex())
	}
	return ev.FID, nil
}
