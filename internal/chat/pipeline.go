package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

const (
	maxTextRunes    = 4000
	enqueueAttempts = 3
	enqueueBackoff  = 50 * time.Millisecond
)

var (
	ErrTextTooLong       = apperr.BadRequest("message text is too long")
	ErrClientMsgIDReused = apperr.BadRequest("client_msg_id already used for a different message")
)

type PipelineConfig struct {
	AckTimeout time.Duration
	PageSize   int
}

type SendRequest struct {
	// ConversationID addresses an existing conversation; when empty the
	// conversation is found by RecipientID.
	ConversationID string
	RecipientID    string
	Text           string
	ClientMsgID    string
}

// Pipeline persists messages, queues them as pending for the recipient and
// pushes them to live recipients, dropping the pending entry once the push
// is confirmed.
type Pipeline struct {
	dir           *Directory
	conversations store.ConversationStore
	messages      store.MessageStore
	locator       *Locator
	accounts      identity.Accounts
	cfg           PipelineConfig
	log           zerolog.Logger

	inflight sync.WaitGroup
}

func NewPipeline(
	dir *Directory,
	conversations store.ConversationStore,
	messages store.MessageStore,
	locator *Locator,
	accounts identity.Accounts,
	cfg PipelineConfig,
	log zerolog.Logger,
) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &Pipeline{
		dir:           dir,
		conversations: conversations,
		messages:      messages,
		locator:       locator,
		accounts:      accounts,
		cfg:           cfg,
		log:           log.With().Str("component", "pipeline").Logger(),
	}
}

// Send delivers into an existing conversation. It returns once the message
// is persisted and queued; live delivery finishes afterwards.
func (p *Pipeline) Send(ctx context.Context, sender identity.Identity, req SendRequest) (*Receipt, error) {
	if err := validateText(req.Text); err != nil {
		return nil, err
	}

	var conv *store.Conversation
	var err error
	if req.ConversationID != "" {
		conv, _, err = p.dir.Get(ctx, req.ConversationID, sender.UserID)
	} else {
		if !identity.ValidUserID(req.RecipientID) {
			return nil, apperr.ErrInvalidUserID
		}
		conv, err = p.dir.Find(ctx, sender.UserID, req.RecipientID)
	}
	if err != nil {
		return nil, err
	}
	return p.dispatch(ctx, conv, sender.UserID, req.Text, req.ClientMsgID)
}

// SendFirstContact resolves or creates the conversation with recipientID,
// subject to the sender's origination rights, then sends.
func (p *Pipeline) SendFirstContact(ctx context.Context, sender identity.Identity, recipientID, text, clientMsgID string) (*Receipt, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	conv, err := p.dir.ResolveOrCreate(ctx, sender, recipientID)
	if err != nil {
		return nil, err
	}
	return p.dispatch(ctx, conv, sender.UserID, text, clientMsgID)
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.ErrEmptyText
	}
	if utf8.RuneCountInString(text) > maxTextRunes {
		return ErrTextTooLong
	}
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, conv *store.Conversation, senderID, text, clientMsgID string) (*Receipt, error) {
	msg, duplicate, err := p.messages.InsertMessage(ctx, &store.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Text:           text,
		ClientMsgID:    clientMsgID,
	})
	if err != nil {
		p.log.Error().Err(err).Str("conversation_id", conv.ID).Str("sender_id", senderID).Msg("persist message")
		return nil, apperr.ErrNotPersisted(err)
	}

	if duplicate && (msg.ConversationID != conv.ID || msg.Text != text) {
		return nil, ErrClientMsgIDReused
	}

	receipt := &Receipt{MessageID: msg.ID, ConversationID: conv.ID, CreatedAt: msg.CreatedAt, Duplicate: duplicate}
	if duplicate {
		// the first attempt may have stopped between persist and enqueue
		p.log.Debug().Str("message_id", msg.ID).Str("client_msg_id", clientMsgID).Msg("duplicate send, re-routing")
	}
	p.route(ctx, conv, conv.Peer(senderID), msg)
	return receipt, nil
}

// route queues the message as pending before any push, so the queue follows
// persistence order and is populated before Send returns. A live push waits
// for its ack in the background and pulls the entry back out on confirmation.
func (p *Pipeline) route(ctx context.Context, conv *store.Conversation, recipientID string, msg *store.Message) {
	slot, ok := conv.SlotOf(recipientID)
	if !ok {
		p.log.Error().Str("conversation_id", conv.ID).Str("recipient_id", recipientID).Msg("recipient not in conversation")
		return
	}
	p.enqueue(ctx, conv.ID, slot, msg.ID)

	d, live := p.locator.Find(ctx, recipientID)
	if !live {
		return
	}

	bg := context.WithoutCancel(ctx)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ackCtx, cancel := context.WithTimeout(bg, p.cfg.AckTimeout)
		result := d.Deliver(ackCtx, Outbound{Type: EventMessage, Data: msg})
		cancel()
		if result == AckConfirmed {
			if err := p.conversations.RemovePending(bg, conv.ID, slot, msg.ID); err != nil {
				p.log.Warn().Err(err).Str("message_id", msg.ID).Msg("remove acknowledged message from pending")
			}
			return
		}
		p.log.Info().
			Str("message_id", msg.ID).
			Str("recipient_id", recipientID).
			Stringer("ack", result).
			Msg("live delivery not confirmed, left pending")
		p.pushInboxSignal(bg, recipientID, conv.ID)
	}()
}

// enqueue failures are logged and dropped: the message is already in
// history and a retried send re-queues it.
func (p *Pipeline) enqueue(ctx context.Context, conversationID string, slot store.Slot, messageID string) {
	var err error
	for attempt := 1; attempt <= enqueueAttempts; attempt++ {
		if err = p.conversations.AppendPending(ctx, conversationID, slot, messageID); err == nil {
			return
		}
		p.log.Warn().Err(err).Int("attempt", attempt).Str("message_id", messageID).Msg("append pending")
		if attempt == enqueueAttempts {
			break
		}
		select {
		case <-ctx.Done():
			attempt = enqueueAttempts
		case <-time.After(enqueueBackoff * time.Duration(attempt)):
		}
	}
	p.log.Error().Err(err).Str("conversation_id", conversationID).Str("message_id", messageID).Msg("message not queued as pending")
}

// Wait blocks until in-flight live deliveries have settled.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

func (p *Pipeline) pageOf(page int) Page {
	if page < 0 {
		page = 0
	}
	return Page{Number: page, Size: p.cfg.PageSize}
}

// FetchPending returns, for each conversation holding messages pending for
// userID, its pending ids and bodies and a page of its history.
func (p *Pipeline) FetchPending(ctx context.Context, userID string, page int) ([]ConversationHistory, error) {
	ids, err := p.dir.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationHistory, 0)
	for _, id := range ids {
		conv, slot, err := p.dir.Get(ctx, id, userID)
		if err != nil {
			if errors.Is(err, apperr.ErrConversationAbsent) {
				continue
			}
			return nil, err
		}
		if len(conv.Pending(slot)) == 0 {
			continue
		}
		h, err := p.history(ctx, conv, slot, userID, p.pageOf(page))
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// History returns a page of each named conversation the user participates in.
func (p *Pipeline) History(ctx context.Context, userID string, conversationIDs []string, page int) ([]ConversationHistory, error) {
	out := make([]ConversationHistory, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		conv, slot, err := p.dir.Get(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		h, err := p.history(ctx, conv, slot, userID, p.pageOf(page))
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (p *Pipeline) history(ctx context.Context, conv *store.Conversation, slot store.Slot, userID string, page Page) (ConversationHistory, error) {
	msgs, err := p.messages.ListMessages(ctx, conv.ID, page.Size, page.offset())
	if err != nil {
		return ConversationHistory{}, apperr.ErrStorage(err)
	}
	pending := conv.Pending(slot)
	if pending == nil {
		pending = []string{}
	}
	bodies := []store.Message{}
	if len(pending) > 0 {
		if bodies, err = p.messages.GetMessages(ctx, pending); err != nil {
			return ConversationHistory{}, apperr.ErrStorage(err)
		}
	}
	return ConversationHistory{
		ConversationID:  conv.ID,
		PeerID:          conv.Peer(userID),
		Pending:         pending,
		PendingMessages: bodies,
		Messages:        msgs,
	}, nil
}

// ClearPending marks everything pending for userID in the conversation as read.
func (p *Pipeline) ClearPending(ctx context.Context, conversationID, userID string) error {
	_, slot, err := p.dir.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := p.conversations.ClearPending(ctx, conversationID, slot); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrConversationAbsent
		}
		return apperr.ErrStorage(err)
	}
	return nil
}
