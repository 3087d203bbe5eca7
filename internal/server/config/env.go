package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/flagx"
)

// Environment variables understood by the relay. The first three keep the
// names used by existing worker deployments.
const (
	EnvAuthorityJWT = "PINATA_JWT"
	EnvAppMnemonic  = "FARCASTER_DEVELOPER_MNEMONIC"
	EnvAppFID       = "FARCASTER_DEVELOPER_FID"
	EnvSecretKey    = "RELAY_SECRET_KEY"
	EnvDatabaseDSN  = "DATABASE_DSN"
	EnvRedisAddr    = "REDIS_ADDR"
	EnvS3User       = "S3_ROOT_USER"
	EnvS3Password   = "S3_ROOT_PASSWORD"

	EnvChallengeTTL     = "CHALLENGE_TTL"
	EnvSignerRequestTTL = "SIGNER_REQUEST_TTL"
	EnvUpstreamTimeout  = "UPSTREAM_TIMEOUT"
)

// parseEnv overlays secrets and timeouts from the environment. Durations use
// time.ParseDuration syntax ("90s", "10m"). An unparsable fid or duration
// panics.
func parseEnv(config *Config) {
	flagx.EnvString(&config.AuthorityJWT, EnvAuthorityJWT)
	flagx.EnvString(&config.AppMnemonic, EnvAppMnemonic)
	flagx.EnvString(&config.SecretKey, EnvSecretKey)
	flagx.EnvString(&config.DatabaseDSN, EnvDatabaseDSN)
	flagx.EnvString(&config.RedisAddr, EnvRedisAddr)
	flagx.EnvString(&config.S3RootUser, EnvS3User)
	flagx.EnvString(&config.S3RootPassword, EnvS3Password)

	if err := flagx.EnvInt64(&config.AppFID, EnvAppFID); err != nil {
		panic(fmt.Errorf("%s: %w", EnvAppFID, err))
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&config.ChallengeTTL, EnvChallengeTTL},
		{&config.SignerRequestTTL, EnvSignerRequestTTL},
		{&config.UpstreamTimeout, EnvUpstreamTimeout},
	}
	for _, d := range durations {
		if err := flagx.EnvDuration(d.dst, d.key); err != nil {
			panic(fmt.Errorf("%s: %w", d.key, err))
		}
	}
}
