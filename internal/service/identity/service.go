// Package identity handles registration, login, and the refresh-token
// rotation scheme with reuse detection.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/user"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
)

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// TokenStore persists refresh tokens.
type TokenStore interface {
	Create(ctx context.Context, t *user.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	Rotate(ctx context.Context, oldID uuid.UUID, next *user.RefreshToken) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// Service implements account and session management.
type Service struct {
	users  UserStore
	tokens TokenStore
	issuer *auth.TokenService
	logger *zap.Logger
}

// NewService creates the identity service.
func NewService(users UserStore, tokens TokenStore, issuer *auth.TokenService, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, issuer: issuer, logger: logger}
}

// Register creates an account and returns the user with a fresh session.
func (s *Service) Register(ctx context.Context, email, username, password string) (*user.User, *TokenPair, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, errors.NewValidationError("INVALID_PASSWORD", err.Error())
	}

	u, err := user.NewUser(email, username, hash)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	return u, pair, nil
}

// Login verifies credentials and returns a fresh session. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, *TokenPair, error) {
	invalid := errors.NewUnauthorizedError("invalid email or password")

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, nil, invalid
		}
		return nil, nil, err
	}
	if err := auth.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, nil, invalid
	}

	pair, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// successor is issued. Presenting an already-revoked token revokes every
// outstanding token of the owner, on the assumption the token was stolen.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	record, err := s.tokens.GetByHash(ctx, auth.HashRefreshToken(rawToken))
	if err != nil {
		return nil, err
	}

	if record.IsRevoked() {
		s.logger.Warn("revoked refresh token presented, revoking token family",
			zap.String("user_id", record.UserID.String()))
		if err := s.tokens.RevokeAllForUser(ctx, record.UserID); err != nil {
			s.logger.Error("failed to revoke token family", zap.Error(err))
		}
		return nil, errors.NewUnauthorizedError("refresh token has been revoked")
	}
	if record.IsExpired(time.Now().UTC()) {
		return nil, errors.NewUnauthorizedError("refresh token has expired")
	}

	u, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	raw, hash, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate refresh token")
	}
	next := user.NewRefreshToken(u.ID, hash, time.Now().UTC().Add(s.issuer.RefreshTokenExpiry()))
	if err := s.tokens.Rotate(ctx, record.ID, next); err != nil {
		return nil, err
	}

	access, err := s.issuer.GenerateAccessToken(u.ID, u.Email, u.Username)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate access token")
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(s.issuer.AccessTokenExpiry().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	record, err := s.tokens.GetByHash(ctx, auth.HashRefreshToken(rawToken))
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeUnauthorized) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, record.ID)
}

// GetUser loads a user profile.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) issueSession(ctx context.Context, u *user.User) (*TokenPair, error) {
	access, err := s.issuer.GenerateAccessToken(u.ID, u.Email, u.Username)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate access token")
	}

	raw, hash, err := s.issuer.GenerateRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate refresh token")
	}
	record := user.NewRefreshToken(u.ID, hash, time.Now().UTC().Add(s.issuer.RefreshTokenExpiry()))
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(s.issuer.AccessTokenExpiry().Seconds()),
	}, nil
}
