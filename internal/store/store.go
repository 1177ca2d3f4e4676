// Package store is the document-style persistence used by the messaging core.
// Every mutation is a single atomic operation at the storage layer: upsert,
// set-append, pull or clear. Callers never read-modify-write.
package store

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

type ConversationStore interface {
	// UpsertConversation returns the conversation for the canonical pair
	// (a > b), creating it if absent. created reports whether this call
	// inserted it.
	UpsertConversation(ctx context.Context, a, b string) (conv *Conversation, created bool, err error)
	FindConversation(ctx context.Context, a, b string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// AppendPending adds messageID to the slot's pending list unless present.
	AppendPending(ctx context.Context, conversationID string, slot Slot, messageID string) error
	// RemovePending pulls one id from the slot's pending list, if present.
	RemovePending(ctx context.Context, conversationID string, slot Slot, messageID string) error
	ClearPending(ctx context.Context, conversationID string, slot Slot) error
}

type MessageStore interface {
	// InsertMessage assigns ID and CreatedAt. When ClientMsgID is set and a
	// message with the same (SenderID, ConversationID, ClientMsgID) exists,
	// that message is returned with duplicate=true.
	InsertMessage(ctx context.Context, msg *Message) (stored *Message, duplicate bool, err error)
	// ListMessages returns a page of a conversation, newest first.
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)
	// GetMessages returns the named messages in persistence order; unknown
	// ids are skipped.
	GetMessages(ctx context.Context, ids []string) ([]Message, error)
	LastMessage(ctx context.Context, conversationID string) (*Message, error)
}

type IndexStore interface {
	AddToIndex(ctx context.Context, userID, conversationID string) error
	ListIndex(ctx context.Context, userID string) ([]string, error)
}

type AccountStore interface {
	GetAccount(ctx context.Context, userID string) (*Account, error)
	UpsertAccount(ctx context.Context, acc *Account) error
}

type Store interface {
	ConversationStore
	MessageStore
	IndexStore
	AccountStore
	Close() error
}
