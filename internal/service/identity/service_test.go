package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/domain/user"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
)

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return errors.NewConflictError("email or username already registered")
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*user.RefreshToken
}

func (m *memTokens) Create(_ context.Context, t *user.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokens) GetByHash(_ context.Context, hash string) (*user.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errors.NewUnauthorizedError("refresh token not recognized")
}

func (m *memTokens) Rotate(_ context.Context, oldID uuid.UUID, next *user.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldID]
	if !ok || old.RevokedAt != nil {
		return errors.NewConflictError("refresh token already rotated")
	}
	now := time.Now().UTC()
	old.RevokedAt = &now
	old.ReplacedBy = &next.ID
	cp := *next
	m.tokens[next.ID] = &cp
	return nil
}

func (m *memTokens) Revoke(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (m *memTokens) liveCountForUser(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			count++
		}
	}
	return count
}

func newTestService() (*Service, *memUsers, *memTokens) {
	users := &memUsers{users: make(map[uuid.UUID]*user.User)}
	tokens := &memTokens{tokens: make(map[uuid.UUID]*user.RefreshToken)}
	issuer := auth.NewTokenService(&config.SecurityConfig{
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		Issuer:             "live-auction",
		Audience:           "api",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	})
	return NewService(users, tokens, issuer, zap.NewNop()), users, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice@example.com", "alice", "hunter2hunter2")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "alice@example.com", u.Email)

	_, _, err = svc.Register(ctx, "alice@example.com", "alice2", "hunter2hunter2")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict), "duplicate email must conflict")

	_, loginPair, err := svc.Login(ctx, "alice@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, loginPair.AccessToken)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))

	_, _, err = svc.Login(ctx, "nobody@example.com", "hunter2hunter2")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized),
		"unknown email must look like a wrong password")
}

func TestRefresh_Rotation(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice@example.com", "alice", "hunter2hunter2")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The presented token is single-use: redeeming it again fails and
	// nukes the whole family, successor included.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
	assert.Equal(t, 0, tokens.liveCountForUser(u.ID))

	_, err = svc.Refresh(ctx, next.RefreshToken)
	assert.Error(t, err, "successor must be dead after reuse detection")
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Refresh(context.Background(), "not-a-real-token")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
}

func TestLogout(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice@example.com", "alice", "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, 1, tokens.liveCountForUser(u.ID))

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.Equal(t, 0, tokens.liveCountForUser(u.ID))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err, "logged-out token must not refresh")

	assert.NoError(t, svc.Logout(ctx, "unknown-token"), "unknown token logout is a no-op")
}

func TestRegister_WeakPassword(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, err := svc.Register(context.Background(), "alice@example.com", "alice", "short")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
