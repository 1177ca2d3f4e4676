package chat

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/presence"
)

// Locator answers "where is this user live" by checking the presence
// registry against the connection table, and heals stale records it finds.
type Locator struct {
	presence presence.Registry
	conns    Connections
	log      zerolog.Logger
}

func NewLocator(reg presence.Registry, conns Connections, log zerolog.Logger) *Locator {
	return &Locator{presence: reg, conns: conns, log: log.With().Str("component", "locator").Logger()}
}

// Find returns the user's live connection on this node. A user connected
// through another node is not deliverable here, so callers queue instead.
// Registry failures fail open to "offline" so that messages fall back to the
// pending queue.
func (l *Locator) Find(ctx context.Context, userID string) (Deliverer, bool) {
	d, _ := l.locate(ctx, userID)
	return d, d != nil
}

// Online reports whether userID holds a live connection on any node.
func (l *Locator) Online(ctx context.Context, userID string) bool {
	_, online := l.locate(ctx, userID)
	return online
}

func (l *Locator) locate(ctx context.Context, userID string) (Deliverer, bool) {
	d, handle, err := l.resolve(ctx, userID)
	switch {
	case err == nil:
		return d, handle != ""
	case errors.Is(err, apperr.ErrStalePresence):
		l.log.Info().Str("user_id", userID).Str("handle", handle).Msg("releasing stale presence record")
		if rerr := l.presence.Release(ctx, userID, handle); rerr != nil {
			l.log.Warn().Err(rerr).Str("user_id", userID).Msg("release stale presence")
		}
		return nil, false
	default:
		l.log.Warn().Err(err).Str("user_id", userID).Msg("presence lookup failed; treating user as offline")
		return nil, false
	}
}

// resolve returns a nil Deliverer with a non-empty handle when the record
// belongs to another node. Only handles this node issued can be stale.
func (l *Locator) resolve(ctx context.Context, userID string) (Deliverer, string, error) {
	handle, ok, err := l.presence.Lookup(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", nil
	}
	if d, live := l.conns.Live(handle); live {
		return d, handle, nil
	}
	if !l.conns.Owns(handle) {
		return nil, handle, nil
	}
	return nil, handle, apperr.ErrStalePresence
}

// DeliverNotification pushes a fire-and-forget frame to the user if they are
// live. It never queues and reports whether the frame was handed off.
func (l *Locator) DeliverNotification(ctx context.Context, userID, kind string, payload any) bool {
	d, ok := l.Find(ctx, userID)
	if !ok {
		return false
	}
	sent := d.Notify(Outbound{Type: EventNotification, Data: notification{Kind: kind, Payload: payload}})
	if !sent {
		l.log.Debug().Str("user_id", userID).Str("kind", kind).Msg("notification dropped")
	}
	return sent
}

type notification struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload,omitempty"`
}
