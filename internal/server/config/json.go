package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/flagx"
	"github.com/dmitrijs2005/signerrelay/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept "10m" style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	SecretKey                    string         `json:"secret_key"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration"`
	AuthorityURL                 string         `json:"authority_url"`
	AuthorityJWT                 string         `json:"authority_jwt"`
	HubURL                       string         `json:"hub_url"`
	AppFID                       int64          `json:"app_fid"`
	SignInDomain                 string         `json:"sign_in_domain"`
	SignInNonce                  string         `json:"sign_in_nonce"`
	ChallengeTTL                 timex.Duration `json:"challenge_ttl"`
	SignerRequestTTL             timex.Duration `json:"signer_request_ttl"`
	UpstreamTimeout              timex.Duration `json:"upstream_timeout"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	LogBackend                   string         `json:"log_backend"`
	LogLevel                     string         `json:"log_level"`
	LogFile                      string         `json:"log_file"`
}

// parseJson overlays the file named by -c/-config onto config. Keys absent
// from the file keep their current values. The mnemonic is deliberately not
// read from disk; it comes from the environment.
//
// A missing or malformed file panics, as with bad flags.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionTokenValidityDuration, c.SessionTokenValidityDuration)
	setString(&config.AuthorityURL, c.AuthorityURL)
	setString(&config.AuthorityJWT, c.AuthorityJWT)
	setString(&config.HubURL, c.HubURL)
	if c.AppFID != 0 {
		config.AppFID = c.AppFID
	}
	setString(&config.SignInDomain, c.SignInDomain)
	setString(&config.SignInNonce, c.SignInNonce)
	setDuration(&config.ChallengeTTL, c.ChallengeTTL)
	setDuration(&config.SignerRequestTTL, c.SignerRequestTTL)
	setDuration(&config.UpstreamTimeout, c.UpstreamTimeout)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
