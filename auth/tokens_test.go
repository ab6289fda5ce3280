package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobylas-w/ThaiTable-sub000/testutil"
)

func newTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenConfig{
		AccessSecret:  testutil.AccessSecret,
		RefreshSecret: testutil.RefreshSecret,
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTokenManager(t)
	tok, err := m.GenerateAccessToken(42)
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
}

func TestAccessTokenExpires(t *testing.T) {
	m := newTokenManager(t)
	tok, err := m.GenerateAccessToken(42)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(24*time.Hour + time.Minute) }
	_, err = m.VerifyAccessToken(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	m := newTokenManager(t)
	access, err := m.GenerateAccessToken(1)
	require.NoError(t, err)
	refresh, err := m.GenerateRefreshToken(1)
	require.NoError(t, err)

	_, err = m.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = m.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTamperedTokenIsInvalid(t *testing.T) {
	m := newTokenManager(t)
	tok, err := m.GenerateAccessToken(1)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = m.VerifyAccessToken(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = m.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := newTokenManager(t)
	a, err := m.GenerateRefreshToken(1)
	require.NoError(t, err)
	b, err := m.GenerateRefreshToken(1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	claims, err := m.VerifyRefreshToken(a)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestDecodeRefreshTokenIgnoresExpiry(t *testing.T) {
	m := newTokenManager(t)
	tok, err := m.GenerateRefreshToken(9)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }
	_, err = m.VerifyRefreshToken(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)

	claims, err := m.DecodeRefreshToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(9), claims.UserID)

	_, err = m.DecodeRefreshToken("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokenManagerRejectsWeakSecrets(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{AccessSecret: "short", RefreshSecret: testutil.RefreshSecret, AccessTTL: time.Hour, RefreshTTL: time.Hour})
	assert.Error(t, err)

	_, err = NewTokenManager(TokenConfig{AccessSecret: testutil.AccessSecret, RefreshSecret: testutil.AccessSecret, AccessTTL: time.Hour, RefreshTTL: time.Hour})
	assert.ErrorContains(t, err, "must differ")
}

func TestIdentity(t *testing.T) {
	anon := Anonymous()
	assert.False(t, anon.IsAuthenticated())
	assert.Zero(t, anon.UserID())
	assert.False(t, anon.CanAccessRestaurant(1))
	assert.False(t, anon.HasRole("OWNER"))

	u := testUser(3, 1, "MANAGER")
	id := Authenticated(u)
	got, ok := id.User()
	assert.True(t, ok)
	assert.Same(t, u, got)
	assert.True(t, id.CanAccessRestaurant(1))
	assert.False(t, id.CanAccessRestaurant(2))
	assert.True(t, id.HasRole("OWNER", "MANAGER"))
	assert.False(t, id.HasRole("OWNER"))
}
