package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
	"github.com/pelusa-v/pelusa-chat/internal/presence"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

const eventBuffer = 32

type GatewayConfig struct {
	SendBuffer int
}

// Gateway owns connection lifecycle: authentication, presence registration,
// event routing and teardown.
type Gateway struct {
	conns    *Manager
	verifier identity.Verifier
	accounts identity.Accounts
	presence presence.Registry
	locator  *Locator
	pipeline *Pipeline
	cfg      GatewayConfig
	log      zerolog.Logger
}

func NewGateway(
	conns *Manager,
	verifier identity.Verifier,
	accounts identity.Accounts,
	reg presence.Registry,
	locator *Locator,
	pipeline *Pipeline,
	cfg GatewayConfig,
	log zerolog.Logger,
) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Gateway{
		conns:    conns,
		verifier: verifier,
		accounts: accounts,
		presence: reg,
		locator:  locator,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// Connect authenticates the connection and makes it LIVE. On error nothing
// is registered and the caller should close conn.
func (g *Gateway) Connect(ctx context.Context, token string, conn ConnLike) (*Client, error) {
	c := newClient(conn, g.cfg.SendBuffer)
	c.Handle = g.conns.newHandle()

	id, err := g.verifier.Verify(token)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	status, err := g.accounts.Status(ctx, id.UserID)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	if status != store.StatusActive {
		c.setState(StateDisconnected)
		g.log.Info().Str("user_id", id.UserID).Str("status", string(status)).Msg("connection refused")
		return nil, apperr.ErrAccountRestricted
	}
	c.Identity = id
	c.setState(StateAuthenticated)

	g.conns.attach(c)
	if err := g.presence.Register(ctx, id.UserID, c.Handle); err != nil {
		// the user stays connected but is seen as offline; messages queue
		g.log.Warn().Err(err).Str("user_id", id.UserID).Msg("register presence")
	}
	c.setState(StateLive)
	g.log.Info().Str("user_id", id.UserID).Str("handle", c.Handle).Msg("client connected")
	return c, nil
}

// Serve runs the client's pumps until the connection ends, then
// disconnects it. Acks are resolved on the read loop; other events are
// handled in arrival order on a per-connection worker.
func (g *Gateway) Serve(ctx context.Context, c *Client) {
	events := make(chan Inbound, eventBuffer)
	go c.WritePump()
	go func() {
		for in := range events {
			g.handle(ctx, c, in)
		}
	}()

	c.ReadPump(func(data []byte) {
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.Notify(Outbound{Type: EventError, Error: apperr.Public(apperr.BadRequest("malformed frame"))})
			return
		}
		if in.Type == EventAck {
			c.resolveAck(in.AckID, in.OK)
			return
		}
		select {
		case events <- in:
		case <-c.done:
		}
	})
	close(events)
	g.Disconnect(ctx, c)
}

func (g *Gateway) handle(ctx context.Context, c *Client, in Inbound) {
	if c.State() != StateLive {
		return
	}
	out := g.Route(ctx, c.Identity, in)
	if !c.Notify(out) {
		g.log.Debug().Str("user_id", c.Identity.UserID).Str("type", in.Type).Msg("reply dropped")
	}
}

// Disconnect is idempotent. The presence record is released only if it
// still points at this connection.
func (g *Gateway) Disconnect(ctx context.Context, c *Client) {
	if !c.markDisconnected() {
		return
	}
	g.conns.detach(c)
	c.Close()
	if c.Identity.UserID == "" {
		return
	}
	if err := g.presence.Release(context.WithoutCancel(ctx), c.Identity.UserID, c.Handle); err != nil {
		g.log.Warn().Err(err).Str("user_id", c.Identity.UserID).Msg("release presence")
	}
	g.log.Info().Str("user_id", c.Identity.UserID).Str("handle", c.Handle).Msg("client disconnected")
}

// Route answers one inbound event on behalf of id.
func (g *Gateway) Route(ctx context.Context, id identity.Identity, in Inbound) Outbound {
	out := Outbound{Type: in.Type + "_result", ReqID: in.ReqID}
	var data any
	var err error

	switch in.Type {
	case EventPresence:
		data, err = g.Presence(ctx, in.UserID)
	case EventConversations:
		data, err = g.pipeline.Inbox(ctx, id.UserID)
	case EventHistory:
		ids := in.ConversationIDs
		if in.ConversationID != "" {
			ids = append([]string{in.ConversationID}, ids...)
		}
		if len(ids) == 0 {
			data, err = g.pipeline.FetchPending(ctx, id.UserID, in.Page)
		} else {
			data, err = g.pipeline.History(ctx, id.UserID, ids, in.Page)
		}
	case EventSend:
		data, err = g.pipeline.Send(ctx, id, SendRequest{
			ConversationID: in.ConversationID,
			RecipientID:    in.To,
			Text:           in.Text,
			ClientMsgID:    in.ClientMsgID,
		})
	case EventSendNew:
		data, err = g.pipeline.SendFirstContact(ctx, id, in.To, in.Text, in.ClientMsgID)
	case EventRead:
		err = g.pipeline.MarkRead(ctx, id.UserID, in.ConversationID)
	default:
		out.Type = EventError
		err = apperr.BadRequest("unsupported event type")
	}

	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeTransient || apperr.CodeOf(err) == apperr.CodeInternal {
			g.log.Error().Err(err).Str("user_id", id.UserID).Str("type", in.Type).Msg("event failed")
		}
		out.Error = apperr.Public(err)
		return out
	}
	out.Data = data
	return out
}

// Presence reports whether userID is live along with their profile.
func (g *Gateway) Presence(ctx context.Context, userID string) (PresenceInfo, error) {
	if !identity.ValidUserID(userID) {
		return PresenceInfo{}, apperr.ErrInvalidUserID
	}
	info := PresenceInfo{UserID: userID, Online: g.locator.Online(ctx, userID), DisplayName: userID}
	prof, err := g.accounts.Profile(ctx, userID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", userID).Msg("load profile")
		return info, nil
	}
	info.DisplayName, info.AvatarURL = prof.DisplayName, prof.AvatarURL
	return info, nil
}

// Notify is the fire-and-forget entry point for other subsystems.
func (g *Gateway) Notify(ctx context.Context, userID, kind string, payload any) bool {
	return g.locator.DeliverNotification(ctx, userID, kind, payload)
}

func (g *Gateway) Connections() *Manager { return g.conns }
