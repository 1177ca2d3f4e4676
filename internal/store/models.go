package store

import "time"

// Slot names one side of a canonical pair. Slot A holds the larger user id.
type Slot string

const (
	SlotA Slot = "a"
	SlotB Slot = "b"
)

// Conversation is the single thread between two users. UserA > UserB always.
type Conversation struct {
	ID          string    `json:"id" bson:"_id"`
	UserA       string    `json:"user_a" bson:"userA"`
	UserB       string    `json:"user_b" bson:"userB"`
	PendingForA []string  `json:"pending_for_a" bson:"pendingForA"`
	PendingForB []string  `json:"pending_for_b" bson:"pendingForB"`
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
}

// SlotOf reports which side userID occupies.
func (c *Conversation) SlotOf(userID string) (Slot, bool) {
	switch userID {
	case c.UserA:
		return SlotA, true
	case c.UserB:
		return SlotB, true
	}
	return "", false
}

// Peer returns the other participant.
func (c *Conversation) Peer(userID string) string {
	if userID == c.UserA {
		return c.UserB
	}
	return c.UserA
}

func (c *Conversation) Pending(slot Slot) []string {
	if slot == SlotA {
		return c.PendingForA
	}
	return c.PendingForB
}

type Message struct {
	ID             string    `json:"id" bson:"_id"`
	ConversationID string    `json:"conversation_id" bson:"conversationId"`
	SenderID       string    `json:"sender_id" bson:"senderId"`
	Text           string    `json:"text" bson:"text"`
	ClientMsgID    string    `json:"client_msg_id,omitempty" bson:"clientMsgId,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"createdAt"`
}

type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusBanned    AccountStatus = "banned"
)

type Account struct {
	UserID      string        `json:"user_id" bson:"_id"`
	Status      AccountStatus `json:"status" bson:"status"`
	DisplayName string        `json:"display_name" bson:"displayName"`
	AvatarURL   string        `json:"avatar_url" bson:"avatarUrl"`
}
