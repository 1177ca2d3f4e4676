package chat

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/pelusa-chat/internal/presence"
)

type brokenRegistry struct {
	presence.Registry
}

func (brokenRegistry) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestLocatorFind(t *testing.T) {
	ctx := context.Background()

	t.Run("offline", func(t *testing.T) {
		h := newHarness(t)
		_, ok := h.locator.Find(ctx, "alice")
		assert.False(t, ok)
	})

	t.Run("live", func(t *testing.T) {
		h := newHarness(t)
		want := h.online(t, "alice", AckConfirmed)
		d, ok := h.locator.Find(ctx, "alice")
		require.True(t, ok)
		assert.Same(t, want, d)
		assert.True(t, h.locator.Online(ctx, "alice"))
	})

	t.Run("stale record is released", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.reg.Register(ctx, "alice", testNode+":gone"))

		_, ok := h.locator.Find(ctx, "alice")
		assert.False(t, ok)
		assert.False(t, h.locator.Online(ctx, "alice"))

		_, registered, err := h.reg.Lookup(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, registered)
	})

	t.Run("record owned by another node is kept", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.reg.Register(ctx, "alice", "node-2:abc"))

		_, ok := h.locator.Find(ctx, "alice")
		assert.False(t, ok)
		assert.True(t, h.locator.Online(ctx, "alice"))

		handle, registered, err := h.reg.Lookup(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, registered)
		assert.Equal(t, "node-2:abc", handle)
	})

	t.Run("registry failure reads as offline", func(t *testing.T) {
		l := NewLocator(brokenRegistry{}, &fakeConns{live: map[string]Deliverer{}}, zerolog.Nop())
		_, ok := l.Find(ctx, "alice")
		assert.False(t, ok)
	})
}

func TestDeliverNotification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.False(t, h.locator.DeliverNotification(ctx, "alice", "booking_confirmed", nil))

	d := h.online(t, "alice", AckConfirmed)
	assert.True(t, h.locator.DeliverNotification(ctx, "alice", "booking_confirmed", map[string]string{"booking": "42"}))
	assert.Equal(t, []string{EventNotification}, d.notifiedTypes())
	assert.Zero(t, d.deliveredCount())
}
