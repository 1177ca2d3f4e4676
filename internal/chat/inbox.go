package chat

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

// Inbox lists the user's conversations, most recent activity first.
// Unread is the number of messages still pending for the user.
func (p *Pipeline) Inbox(ctx context.Context, userID string) ([]*ThreadPreview, error) {
	ids, err := p.dir.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	list := make([]*ThreadPreview, 0, len(ids))
	for _, id := range ids {
		conv, slot, err := p.dir.Get(ctx, id, userID)
		if err != nil {
			if errors.Is(err, apperr.ErrConversationAbsent) {
				continue
			}
			return nil, err
		}
		preview, err := p.preview(ctx, conv, slot, userID)
		if err != nil {
			return nil, err
		}
		list = append(list, preview)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].LastTs > list[j].LastTs })
	return list, nil
}

func (p *Pipeline) preview(ctx context.Context, conv *store.Conversation, slot store.Slot, userID string) (*ThreadPreview, error) {
	peer := conv.Peer(userID)
	tp := &ThreadPreview{
		ConversationID: conv.ID,
		PeerID:         peer,
		Title:          peer,
		LastTs:         conv.CreatedAt.UnixMilli(),
		Unread:         len(conv.Pending(slot)),
	}

	last, err := p.messages.LastMessage(ctx, conv.ID)
	switch {
	case err == nil:
		tp.LastBody, tp.LastTs = last.Text, last.CreatedAt.UnixMilli()
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, apperr.ErrStorage(err)
	}

	if p.accounts != nil {
		prof, err := p.accounts.Profile(ctx, peer)
		if err != nil {
			p.log.Warn().Err(err).Str("user_id", peer).Msg("load peer profile")
		} else {
			tp.Title, tp.AvatarURL = prof.DisplayName, prof.AvatarURL
		}
	}
	return tp, nil
}

// MarkRead clears the user's pending list and signals their live
// connection to refresh its inbox.
func (p *Pipeline) MarkRead(ctx context.Context, userID, conversationID string) error {
	if err := p.ClearPending(ctx, conversationID, userID); err != nil {
		return err
	}
	p.pushInboxSignal(ctx, userID, conversationID)
	return nil
}

// pushInboxSignal carries no message body; clients re-fetch the inbox.
func (p *Pipeline) pushInboxSignal(ctx context.Context, userID, conversationID string) {
	if d, ok := p.locator.Find(ctx, userID); ok {
		d.Notify(Outbound{Type: EventInboxUpdate, Data: map[string]string{"conversation_id": conversationID}})
	}
}
