// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memBlacklist struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func (m *memBlacklist) RevokeToken(_ context.Context, jti string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[string]time.Time{}
	}
	m.ids[jti] = exp
	return nil
}

func (m *memBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[jti]
	return ok, nil
}

func TestIssueAndParse(t *testing.T) {
	ctx := context.Background()
	iss := NewIssuer("secret", time.Hour, 24*time.Hour, nil)

	pair, err := iss.Issue(42)
	require.NoError(t, err)

	access, err := iss.Parse(ctx, pair.Access, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), access.UserID)
	assert.Equal(t, AccessToken, access.TokenType)
	assert.NotEmpty(t, access.ID)

	refresh, err := iss.Parse(ctx, pair.Refresh, RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, access.ID, refresh.ID)
	assert.Equal(t, 24*time.Hour, refresh.ExpiresAt.Sub(refresh.IssuedAt.Time))
}

func TestParseRejectsWrongType(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 24*time.Hour, nil)
	pair, err := iss.Issue(1)
	require.NoError(t, err)

	_, err = iss.Parse(context.Background(), pair.Refresh, AccessToken)
	assert.ErrorIs(t, err, ErrTokenType)
}

func TestParseRejectsForeignKey(t *testing.T) {
	a := NewIssuer("one", time.Hour, time.Hour, nil)
	b := NewIssuer("two", time.Hour, time.Hour, nil)
	pair, err := a.Issue(1)
	require.NoError(t, err)

	_, err = b.Parse(context.Background(), pair.Access, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", time.Minute, time.Hour, nil)
	iss.SetClock(func() time.Time { return now })
	pair, err := iss.Issue(1)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = iss.Parse(context.Background(), pair.Access, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = iss.Parse(context.Background(), pair.Refresh, RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshAndRevoke(t *testing.T) {
	ctx := context.Background()
	bl := &memBlacklist{}
	iss := NewIssuer("secret", time.Hour, 24*time.Hour, bl)
	pair, err := iss.Issue(7)
	require.NoError(t, err)

	access, err := iss.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	claims, err := iss.Parse(ctx, access, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)

	require.NoError(t, iss.Revoke(ctx, pair.Refresh))
	_, err = iss.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// access tokens are not checked against the blacklist
	_, err = iss.Parse(ctx, pair.Access, AccessToken)
	assert.NoError(t, err)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), "header %q", tt.header)
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 3, TokenID: "x"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.UserID)
}

func TestPassword(t *testing.T) {
	BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { BcryptCost = bcrypt.DefaultCost })

	h, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "s3cret-pass"))
	assert.False(t, CheckPassword(h, "wrong"))
	assert.False(t, CheckPassword("", "s3cret-pass"))
}

func TestResetTokens(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	rt := NewResetTokens("secret", 72*time.Hour)
	rt.SetClock(func() time.Time { return now })

	tok := rt.Make(5, "hash-a")
	assert.True(t, rt.Check(5, "hash-a", tok))
	assert.False(t, rt.Check(6, "hash-a", tok), "other user")
	assert.False(t, rt.Check(5, "hash-b", tok), "password changed")
	assert.False(t, rt.Check(5, "hash-a", "garbage"))
	assert.False(t, rt.Check(5, "hash-a", "zz-"+tok[3:]))

	now = now.Add(73 * time.Hour)
	assert.False(t, rt.Check(5, "hash-a", tok), "expired")
}

func TestUID(t *testing.T) {
	uid := EncodeUID(123)
	id, err := DecodeUID(uid)
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	_, err = DecodeUID("!!")
	assert.ErrorIs(t, err, ErrBadUID)
	_, err = DecodeUID(EncodeUID(0) + "x")
	assert.Error(t, err)
}

func TestRedisBlacklist(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	bl, err := NewRedisBlacklist(ctx, RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bl.Close() })
	require.NoError(t, bl.Ping(ctx))

	revoked, err := bl.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.RevokeToken(ctx, "a", time.Now().Add(time.Hour)))
	revoked, err = bl.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Greater(t, mr.TTL(blacklistPrefix+"a"), 59*time.Minute)

	mr.FastForward(2 * time.Hour)
	revoked, err = bl.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)

	// already expired tokens are not stored
	require.NoError(t, bl.RevokeToken(ctx, "b", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(blacklistPrefix+"b"))
}

func TestRedisBlacklistUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisBlacklist(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}
