package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

func TestCanonical(t *testing.T) {
	a, b := Canonical("alice", "bob")
	assert.Equal(t, "bob", a)
	assert.Equal(t, "alice", b)

	a2, b2 := Canonical("bob", "alice")
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestDirectoryResolveOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates once and indexes both users", func(t *testing.T) {
		h := newHarness(t)
		conv, err := h.dir.ResolveOrCreate(ctx, alice, "bob")
		require.NoError(t, err)
		assert.Equal(t, "bob", conv.UserA)
		assert.Equal(t, "alice", conv.UserB)

		again, err := h.dir.ResolveOrCreate(ctx, member("bob", identity.RoleCustomer), "alice")
		require.NoError(t, err)
		assert.Equal(t, conv.ID, again.ID)

		for _, u := range []string{"alice", "bob"} {
			ids, err := h.dir.List(ctx, u)
			require.NoError(t, err)
			assert.Equal(t, []string{conv.ID}, ids)
		}
	})

	t.Run("restricted role cannot originate", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.dir.ResolveOrCreate(ctx, bob, "carol")
		assert.ErrorIs(t, err, apperr.ErrOriginationDenied)

		ids, err := h.dir.List(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("restricted role may use an existing conversation", func(t *testing.T) {
		h := newHarness(t)
		conv, err := h.dir.ResolveOrCreate(ctx, alice, "bob")
		require.NoError(t, err)

		got, err := h.dir.ResolveOrCreate(ctx, bob, "alice")
		require.NoError(t, err)
		assert.Equal(t, conv.ID, got.ID)
	})

	t.Run("self conversation rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.dir.ResolveOrCreate(ctx, alice, "alice")
		assert.ErrorIs(t, err, apperr.ErrSelfConversation)
	})

	t.Run("invalid peer id rejected", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.dir.ResolveOrCreate(ctx, alice, "not valid")
		assert.True(t, apperr.Is(err, apperr.CodeBadRequest))
	})
}

func TestDirectoryConcurrentFirstContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := member("dave", identity.RoleCustomer)
	v := member("erin", identity.RoleCustomer)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := u, v.UserID
			if i%2 == 1 {
				from, to = v, u.UserID
			}
			conv, err := h.dir.ResolveOrCreate(ctx, from, to)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := h.dir.List(ctx, "dave")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDirectoryGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conv, err := h.dir.ResolveOrCreate(ctx, alice, "bob")
	require.NoError(t, err)

	got, slot, err := h.dir.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, store.SlotB, slot)

	_, _, err = h.dir.Get(ctx, conv.ID, "carol")
	assert.ErrorIs(t, err, apperr.ErrNotParticipant)

	_, _, err = h.dir.Get(ctx, "missing", "alice")
	assert.ErrorIs(t, err, apperr.ErrConversationAbsent)
}

func member(userID string, role identity.Role) identity.Identity {
	return identity.NewIdentity(userID, role)
}
