package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/studynote/internal/flagx"
)

// parseFlags applies command-line flags. Durations are whole minutes.
//
//	-a gRPC bind address      -d PostgreSQL DSN        -s JWT secret
//	-t access token minutes   -r refresh token minutes
//	-u S3 user  -p S3 password  -b S3 bucket  -g S3 region  -e S3 endpoint
//	-m max failed sign-ins    -l sign-in lockout minutes
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e", "-m", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTTL := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (minutes)")
	refreshTTL := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for exports")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.IntVar(&config.MaxSignInAttempts, "m", config.MaxSignInAttempts, "failed sign-ins before lockout")
	lockout := fs.Int("l", int(config.SignInLockout.Minutes()), "sign-in lockout (minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTTL) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTTL) * time.Minute
	config.SignInLockout = time.Duration(*lockout) * time.Minute
}
