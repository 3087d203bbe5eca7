// Package config handles configuration for the relay server, including
// defaults, JSON overlay, environment secrets and command-line flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
)

// Config holds runtime settings for the relay.
//
// Fields:
//   - EndpointAddrHTTP / EndpointAddrGRPC: bind addresses for the HTTP API and the gRPC health endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps the signer cache and cast ledger in memory.
//   - RedisAddr / RedisPassword: shared nonce set. Empty keeps it in process memory.
//   - SecretKey: HMAC secret for session and challenge tokens (HS256).
//   - AuthorityURL / AuthorityJWT: credential authority API and its bearer token.
//   - HubURL: identity registry (hub HTTP API) used to map custody addresses to fids.
//   - AppFID / AppMnemonic: sponsor identity used to sign new signer requests.
//   - SignInDomain / SignInNonce: challenge binding. A non-empty SignInNonce enables the static challenge.
//   - ChallengeTTL: challenge lifetime and nonce retention window.
//   - SignerRequestTTL: how long a pending signer may wait for approval.
//   - UpstreamTimeout: upper bound for every call to an external capability.
//   - S3*: optional archive of published cast receipts.
//   - LogBackend / LogLevel / LogFile: "slog" or "zap"; LogFile is honored by zap only.
type Config struct {
	EndpointAddrHTTP             string
	EndpointAddrGRPC             string
	DatabaseDSN                  string
	RedisAddr                    string
	RedisPassword                string
	SecretKey                    string
	SessionTokenValidityDuration time.Duration
	AuthorityURL                 string
	AuthorityJWT                 string
	HubURL                       string
	AppFID                       int64
	AppMnemonic                  string
	SignInDomain                 string
	SignInNonce                  string
	ChallengeTTL                 time.Duration
	SignerRequestTTL             time.Duration
	UpstreamTimeout              time.Duration
	S3RootUser                   string
	S3RootPassword               string
	S3Bucket                     string
	S3Region                     string
	S3BaseEndpoint               string
	LogBackend                   string
	LogLevel                     string
	LogFile                      string
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.SecretKey = "secretKey"
	c.SessionTokenValidityDuration = 24 * time.Hour
	c.AuthorityURL = "https://api.pinata.cloud/v3/farcaster"
	c.HubURL = "https://hub.pinata.cloud"
	c.SignInDomain = "example.xyz"
	c.ChallengeTTL = 10 * time.Minute
	c.SignerRequestTTL = 24 * time.Hour
	c.UpstreamTimeout = 10 * time.Second
	c.S3Region = "us-east-1"
	c.LogBackend = "slog"
	c.LogLevel = "info"
}

// Validate reports settings the relay cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.AppFID <= 0 {
		errs = append(errs, errors.New("app fid must be positive"))
	}
	if c.AppMnemonic == "" {
		errs = append(errs, errors.New("app mnemonic is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.SignInDomain == "" {
		errs = append(errs, errors.New("sign-in domain is required"))
	}
	if c.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("challenge ttl must be positive"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("upstream timeout must be positive"))
	}
	if c.LogBackend != "slog" && c.LogBackend != "zap" {
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.LogBackend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrorValidation, errors.Join(errs...))
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
