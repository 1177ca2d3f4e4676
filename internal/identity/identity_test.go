package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	t.Run("happy path - customer can originate", func(t *testing.T) {
		tok, err := v.Sign("alice", RoleCustomer, time.Hour)
		require.NoError(t, err)

		id, err := v.Verify(tok)
		require.NoError(t, err)
		assert.Equal(t, "alice", id.UserID)
		assert.Equal(t, RoleCustomer, id.Role)
		assert.True(t, id.CanOriginateConversation)
	})

	t.Run("happy path - provider cannot originate", func(t *testing.T) {
		tok, err := v.Sign("bob", RoleProvider, time.Hour)
		require.NoError(t, err)

		id, err := v.Verify(tok)
		require.NoError(t, err)
		assert.False(t, id.CanOriginateConversation)
	})

	t.Run("sad path - expired", func(t *testing.T) {
		tok, err := v.Sign("alice", RoleCustomer, -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(tok)
		assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
	})

	t.Run("sad path - wrong secret", func(t *testing.T) {
		tok, err := NewJWTVerifier("other").Sign("alice", RoleCustomer, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(tok)
		assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
	})

	t.Run("sad path - unknown role", func(t *testing.T) {
		tok, err := v.Sign("alice", Role("wizard"), time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("sad path - malformed subject", func(t *testing.T) {
		tok, err := v.Sign("not a valid id!", RoleCustomer, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("sad path - none algorithm", func(t *testing.T) {
		claims := Claims{Role: RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(tok)
		assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
	})

	t.Run("sad path - garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.token")
		assert.True(t, apperr.Is(err, apperr.CodeNotAuthenticated))
	})
}

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("user_42-x"))
	assert.False(t, ValidUserID(""))
	assert.False(t, ValidUserID("has space"))
	assert.False(t, ValidUserID("a/b"))
}

func TestStoreAccounts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.UpsertAccount(ctx, &store.Account{UserID: "alice", DisplayName: "Alice", AvatarURL: "https://cdn/a.png"}))
	require.NoError(t, s.UpsertAccount(ctx, &store.Account{UserID: "mallory", Status: store.StatusSuspended}))
	accounts := NewStoreAccounts(s)

	status, err := accounts.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, status)

	status, err = accounts.Status(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuspended, status)

	_, err = accounts.Status(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrUnknownAccount)

	p, err := accounts.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Profile{UserID: "alice", DisplayName: "Alice", AvatarURL: "https://cdn/a.png"}, p)

	p, err = accounts.Profile(ctx, "mallory")
	require.NoError(t, err)
	assert.Equal(t, "mallory", p.DisplayName)

	p, err = accounts.Profile(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", p.DisplayName)
}
