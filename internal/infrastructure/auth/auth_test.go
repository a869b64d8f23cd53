package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
)

func newTestTokenService() *TokenService {
	return NewTokenService(&config.SecurityConfig{
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		Issuer:             "live-auction",
		Audience:           "api",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	})
}

func TestTokenService_AccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService()
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "alice@example.com", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "live-auction", claims.Issuer)
}

func TestTokenService_RejectsTamperedToken(t *testing.T) {
	svc := newTestTokenService()

	token, err := svc.GenerateAccessToken(uuid.New(), "alice@example.com", "alice")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token + "x")
	assert.Error(t, err)
}

func TestTokenService_RejectsWrongIssuer(t *testing.T) {
	other := NewTokenService(&config.SecurityConfig{
		JWTSecret:         "0123456789abcdef0123456789abcdef",
		Issuer:            "someone-else",
		Audience:          "api",
		AccessTokenExpiry: 15 * time.Minute,
	})

	token, err := other.GenerateAccessToken(uuid.New(), "a@b.com", "a")
	require.NoError(t, err)

	_, err = newTestTokenService().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenService_RefreshTokenHash(t *testing.T) {
	svc := newTestTokenService()

	raw, hash, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, HashRefreshToken(raw), hash)

	raw2, hash2, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
	assert.NotEqual(t, hash, hash2)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, ComparePassword(hash, "correct horse battery staple"))
	assert.Error(t, ComparePassword(hash, "wrong password"))
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)
}
