package chat

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

// Directory maps unordered user pairs to their single conversation and keeps
// each user's conversation index.
type Directory struct {
	conversations store.ConversationStore
	index         store.IndexStore
	log           zerolog.Logger
}

func NewDirectory(cs store.ConversationStore, is store.IndexStore, log zerolog.Logger) *Directory {
	return &Directory{conversations: cs, index: is, log: log.With().Str("component", "directory").Logger()}
}

// Canonical orders a pair so that a > b.
func Canonical(u, v string) (a, b string) {
	if u > v {
		return u, v
	}
	return v, u
}

// Find returns the existing conversation between two users, if any.
func (d *Directory) Find(ctx context.Context, u, v string) (*store.Conversation, error) {
	if u == v {
		return nil, apperr.ErrSelfConversation
	}
	a, b := Canonical(u, v)
	conv, err := d.conversations.FindConversation(ctx, a, b)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrConversationAbsent
		}
		return nil, apperr.ErrStorage(err)
	}
	return conv, nil
}

// ResolveOrCreate returns the conversation between originator and peer,
// creating it when the originator is allowed to. Concurrent calls for the
// same pair converge on one conversation.
func (d *Directory) ResolveOrCreate(ctx context.Context, originator identity.Identity, peerID string) (*store.Conversation, error) {
	if !identity.ValidUserID(peerID) {
		return nil, apperr.ErrInvalidUserID
	}
	conv, err := d.Find(ctx, originator.UserID, peerID)
	if err == nil {
		return conv, d.indexBoth(ctx, conv)
	}
	if !errors.Is(err, apperr.ErrConversationAbsent) {
		return nil, err
	}
	if !originator.CanOriginateConversation {
		return nil, apperr.ErrOriginationDenied
	}

	a, b := Canonical(originator.UserID, peerID)
	conv, created, err := d.conversations.UpsertConversation(ctx, a, b)
	if err != nil {
		return nil, apperr.ErrStorage(err)
	}
	if created {
		d.log.Info().Str("conversation_id", conv.ID).Str("user_a", a).Str("user_b", b).Msg("conversation created")
	}
	return conv, d.indexBoth(ctx, conv)
}

// indexBoth is repeated on every resolve so a partially indexed pair heals
// on the next first-contact send.
func (d *Directory) indexBoth(ctx context.Context, conv *store.Conversation) error {
	if err := d.AppendToIndex(ctx, conv.UserA, conv.ID); err != nil {
		return err
	}
	return d.AppendToIndex(ctx, conv.UserB, conv.ID)
}

func (d *Directory) AppendToIndex(ctx context.Context, userID, conversationID string) error {
	if err := d.index.AddToIndex(ctx, userID, conversationID); err != nil {
		return apperr.ErrStorage(err)
	}
	return nil
}

// Get loads a conversation and the caller's slot in it.
func (d *Directory) Get(ctx context.Context, conversationID, userID string) (*store.Conversation, store.Slot, error) {
	conv, err := d.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", apperr.ErrConversationAbsent
		}
		return nil, "", apperr.ErrStorage(err)
	}
	slot, ok := conv.SlotOf(userID)
	if !ok {
		return nil, "", apperr.ErrNotParticipant
	}
	return conv, slot, nil
}

func (d *Directory) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := d.index.ListIndex(ctx, userID)
	if err != nil {
		return nil, apperr.ErrStorage(err)
	}
	return ids, nil
}
