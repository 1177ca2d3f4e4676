package chat

import (
	"time"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

// inbound event types
const (
	EventPresence      = "presence"
	EventConversations = "conversations"
	EventHistory       = "history"
	EventSend          = "send"
	EventSendNew       = "send_new"
	EventRead          = "read"
	EventAck           = "ack"
)

// outbound-only event types
const (
	EventMessage      = "message"
	EventInboxUpdate  = "inbox_update"
	EventNotification = "notification"
	EventError        = "error"
)

// Inbound is a frame received from a client. Fields are used per Type.
type Inbound struct {
	Type            string   `json:"type"`
	ReqID           string   `json:"req_id,omitempty"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	ConversationIDs []string `json:"conversation_ids,omitempty"`
	To              string   `json:"to,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	Text            string   `json:"text,omitempty"`
	ClientMsgID     string   `json:"client_msg_id,omitempty"`
	Page            int      `json:"page,omitempty"`

	// ack frames
	AckID string `json:"ack_id,omitempty"`
	OK    bool   `json:"ok,omitempty"`
}

// Outbound is a frame pushed to a client. A non-empty AckID asks the client
// to answer with {"type":"ack","ack_id":...,"ok":true|false}.
type Outbound struct {
	Type  string           `json:"type"`
	ReqID string           `json:"req_id,omitempty"`
	AckID string           `json:"ack_id,omitempty"`
	Data  any              `json:"data,omitempty"`
	Error *apperr.AppError `json:"error,omitempty"`
}

// Receipt is what the sender learns: the message was persisted.
type Receipt struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	Duplicate      bool      `json:"duplicate,omitempty"`
}

type Page struct {
	Number int
	Size   int
}

func (p Page) offset() int { return p.Number * p.Size }

// ConversationHistory is one page of a conversation plus every message still
// pending for the caller, whichever page those fall on.
type ConversationHistory struct {
	ConversationID  string          `json:"conversation_id"`
	PeerID          string          `json:"peer_id"`
	Pending         []string        `json:"pending"`
	PendingMessages []store.Message `json:"pending_messages"`
	Messages        []store.Message `json:"messages"`
}

type ThreadPreview struct {
	ConversationID string `json:"conversation_id"`
	PeerID         string `json:"peer_id"`
	Title          string `json:"title"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	LastBody       string `json:"last_body"`
	LastTs         int64  `json:"last_ts"`
	Unread         int    `json:"unread"`
}

type PresenceInfo struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// AckResult is the outcome of a live push.
type AckResult int

const (
	AckConfirmed AckResult = iota
	AckRejected
	AckTimedOut
	AckUndeliverable
)

func (r AckResult) String() string {
	switch r {
	case AckConfirmed:
		return "confirmed"
	case AckRejected:
		return "rejected"
	case AckTimedOut:
		return "timed_out"
	default:
		return "undeliverable"
	}
}
