// Package services holds the backend business logic: the authentication
// provider and the document store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/cryptox"
	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/server/auth"
	"github.com/dmitrijs2005/studynote/internal/server/config"
	"github.com/dmitrijs2005/studynote/internal/server/models"
	"github.com/dmitrijs2005/studynote/internal/server/repositories/repomanager"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

// Session is handed to a client after a successful sign-in, sign-up or
// token refresh.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	limiter                      *signInLimiter
	now                          func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		limiter:                      newSignInLimiter(cfg.MaxSignInAttempts, cfg.SignInLockout),
		now:                          time.Now,
	}
}

// normalizeEmail lower-cases and trims email and rejects anything that is
// not a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.NewAuthError(common.CodeInvalidEmail)
	}
	return email, nil
}

func (s *UserService) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, common.NewAuthError(common.CodeWeakPassword)
	}

	pw := []byte(password)
	hash, salt := cryptox.HashPassword(pw)
	common.WipeByteArray(pw)

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Session, error) {
		user, err := s.repomanager.Users(tx).Create(ctx, &models.User{Email: email, PasswordHash: hash, Salt: salt})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return nil, common.NewAuthError(common.CodeEmailInUse)
			}
			return nil, fmt.Errorf("error creating user: %w", err)
		}
		return s.issueSession(ctx, tx, user.ID, user.Email)
	})
}

func (s *UserService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !s.limiter.Allow(email) {
		return nil, common.NewAuthError(common.CodeTooManyRequests)
	}

	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.limiter.Fail(email)
			return nil, common.NewAuthError(common.CodeUserNotFound)
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	pw := []byte(password)
	ok := cryptox.VerifyPassword(pw, user.PasswordHash, user.Salt)
	common.WipeByteArray(pw)
	if !ok {
		s.limiter.Fail(email)
		return nil, common.NewAuthError(common.CodeWrongPassword)
	}
	s.limiter.Reset(email)

	return s.issueSession(ctx, s.db, user.ID, user.Email)
}

// RefreshToken rotates refreshToken: the old one is revoked and a new
// session is issued in the same transaction. An expired token is still
// revoked before ErrRefreshTokenExpired is returned.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	digest := cryptox.TokenDigest(refreshToken)

	expired := false
	sess, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Session, error) {
		repo := s.repomanager.RefreshTokens(tx)

		token, err := repo.Find(ctx, digest)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrInvalidToken
			}
			return nil, fmt.Errorf("error searching refresh token: %w", err)
		}
		if err := repo.Delete(ctx, digest); err != nil {
			return nil, fmt.Errorf("error deleting refresh token: %w", err)
		}
		if token.Expires.Before(s.now()) {
			expired = true
			return nil, nil
		}

		return s.issueSession(ctx, tx, token.UserID, "")
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}
	return sess, nil
}

// SignOut revokes refreshToken. Unknown tokens are ignored.
func (s *UserService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, cryptox.TokenDigest(refreshToken)); err != nil {
		return fmt.Errorf("error deleting refresh token: %w", err)
	}
	return nil
}

// PurgeExpiredTokens deletes refresh tokens past their expiry.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

func (s *UserService) issueSession(ctx context.Context, db dbx.DBTX, userID, email string) (*Session, error) {
	accessToken, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshToken, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repomanager.RefreshTokens(db).Create(ctx, userID, cryptox.TokenDigest(refreshToken), s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &Session{UserID: userID, Email: email, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
