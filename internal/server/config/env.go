package config

import (
	"errors"

	"github.com/dmitrijs2005/studynote/internal/flagx"
)

func parseEnv(config *Config) error {
	flagx.EnvString(&config.EndpointAddrGRPC, "STUDYNOTE_GRPC_ADDR")
	flagx.EnvString(&config.DatabaseDSN, "STUDYNOTE_DATABASE_DSN")
	flagx.EnvString(&config.SecretKey, "STUDYNOTE_SECRET_KEY")
	flagx.EnvString(&config.S3RootUser, "STUDYNOTE_S3_USER")
	flagx.EnvString(&config.S3RootPassword, "STUDYNOTE_S3_PASSWORD")
	flagx.EnvString(&config.S3Bucket, "STUDYNOTE_S3_BUCKET")
	flagx.EnvString(&config.S3Region, "STUDYNOTE_S3_REGION")
	flagx.EnvString(&config.S3BaseEndpoint, "STUDYNOTE_S3_ENDPOINT")

	return errors.Join(
		flagx.EnvDuration(&config.AccessTokenValidityDuration, "STUDYNOTE_ACCESS_TOKEN_TTL"),
		flagx.EnvDuration(&config.RefreshTokenValidityDuration, "STUDYNOTE_REFRESH_TOKEN_TTL"),
		flagx.EnvInt(&config.MaxSignInAttempts, "STUDYNOTE_MAX_SIGN_IN_ATTEMPTS"),
		flagx.EnvDuration(&config.SignInLockout, "STUDYNOTE_SIGN_IN_LOCKOUT"),
	)
}
