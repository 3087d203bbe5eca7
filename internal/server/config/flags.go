package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/flagx"
)

var serverFlags = []string{
	"-a", "-g", "-d", "-r", "-s", "-t", "-u", "-n", "-f", "-o", "-x", "-b", "-e", "-l",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis address for the nonce set
//	-s string   session/challenge token HMAC secret
//	-t int      session token validity, minutes
//	-u string   credential authority base URL
//	-n string   hub (identity registry) base URL
//	-f int      app fid (sponsor)
//	-o string   sign-in domain
//	-x int      challenge ttl, minutes
//	-b string   S3 bucket for cast receipts
//	-e string   S3 base endpoint
//	-l string   log backend (slog|zap)
//
// Durations are given in whole minutes and only applied when the flag is present.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags...)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session token validity (in minutes)")

	fs.StringVar(&config.AuthorityURL, "u", config.AuthorityURL, "credential authority URL")
	fs.StringVar(&config.HubURL, "n", config.HubURL, "hub URL")
	fs.Int64Var(&config.AppFID, "f", config.AppFID, "app fid")
	fs.StringVar(&config.SignInDomain, "o", config.SignInDomain, "sign-in domain")

	challengeTTL := fs.Int("x", int(config.ChallengeTTL.Minutes()), "challenge ttl (in minutes)")

	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 receipts bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogBackend, "l", config.LogBackend, "log backend")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Only flags actually given override sub-minute values loaded earlier.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.SessionTokenValidityDuration = time.Duration(*sessionValidity) * time.Minute
		case "x":
			config.ChallengeTTL = time.Duration(*challengeTTL) * time.Minute
		}
	})
}
