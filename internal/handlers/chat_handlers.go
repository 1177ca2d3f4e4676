package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/chat"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
)

type Handler struct {
	gw          *chat.Gateway
	pipeline    *chat.Pipeline
	verifier    identity.Verifier
	notifyToken string
	log         zerolog.Logger
}

func New(gw *chat.Gateway, pipeline *chat.Pipeline, verifier identity.Verifier, notifyToken string, log zerolog.Logger) *Handler {
	return &Handler{
		gw:          gw,
		pipeline:    pipeline,
		verifier:    verifier,
		notifyToken: notifyToken,
		log:         log.With().Str("component", "http").Logger(),
	}
}

// Register mounts every route under /api.
func (h *Handler) Register(app fiber.Router) {
	api := app.Group("/api")
	api.Get("/health", h.Health)
	api.Post("/notify", h.Notify)
	api.Get("/ws", h.Upgrade, websocket.New(h.ServeWS))

	api.Get("/conversations", h.RequireIdentity, h.Inbox)
	api.Get("/conversations/:id/messages", h.RequireIdentity, h.Messages)
	api.Post("/conversations/:id/read", h.RequireIdentity, h.MarkRead)
	api.Get("/pending", h.RequireIdentity, h.Pending)
	api.Get("/presence/:user", h.RequireIdentity, h.Presence)
}

// Health GET /api/health, scoped to this node.
func (h *Handler) Health(c *fiber.Ctx) error {
	conns := h.gw.Connections()
	return c.JSON(fiber.Map{
		"status":      "ok",
		"node":        conns.NodeID(),
		"connections": conns.Count(),
		"online":      conns.OnlineUsers(),
	})
}

// Upgrade rejects plain HTTP and carries the token into the socket handler.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(localToken, bearerToken(c))
	return c.Next()
}

// ServeWS GET /api/ws?token=
func (h *Handler) ServeWS(conn *websocket.Conn) {
	token, _ := conn.Locals(localToken).(string)
	ctx := context.Background()

	client, err := h.gw.Connect(ctx, token, conn)
	if err != nil {
		h.log.Info().Err(err).Msg("websocket rejected")
		if b, merr := json.Marshal(chat.Outbound{Type: chat.EventError, Error: apperr.Public(err)}); merr == nil {
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
		_ = conn.Close()
		return
	}
	h.gw.Serve(ctx, client)
}

// Inbox GET /api/conversations
func (h *Handler) Inbox(c *fiber.Ctx) error {
	list, err := h.pipeline.Inbox(c.UserContext(), caller(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Messages GET /api/conversations/:id/messages?page=
func (h *Handler) Messages(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)
	if page < 0 {
		return apperr.BadRequest("page must not be negative")
	}
	hist, err := h.pipeline.History(c.UserContext(), caller(c).UserID, []string{c.Params("id")}, page)
	if err != nil {
		return err
	}
	return c.JSON(hist[0])
}

// MarkRead POST /api/conversations/:id/read
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	if err := h.pipeline.MarkRead(c.UserContext(), caller(c).UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Pending GET /api/pending?page=
func (h *Handler) Pending(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)
	if page < 0 {
		return apperr.BadRequest("page must not be negative")
	}
	list, err := h.pipeline.FetchPending(c.UserContext(), caller(c).UserID, page)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// Presence GET /api/presence/:user
func (h *Handler) Presence(c *fiber.Ctx) error {
	info, err := h.gw.Presence(c.UserContext(), c.Params("user"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

type notifyRequest struct {
	UserID  string          `json:"user_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Notify POST /api/notify, for other platform services. Requires the
// X-Notify-Token header; disabled when no token is configured.
func (h *Handler) Notify(c *fiber.Ctx) error {
	if h.notifyToken == "" {
		return fiber.ErrNotFound
	}
	if c.Get("X-Notify-Token") != h.notifyToken {
		return apperr.Unauthenticated("invalid notify token")
	}
	var req notifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid body")
	}
	if !identity.ValidUserID(req.UserID) {
		return apperr.ErrInvalidUserID
	}
	if req.Kind == "" {
		return apperr.BadRequest("kind is required")
	}
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	delivered := h.gw.Notify(c.UserContext(), req.UserID, req.Kind, payload)
	return c.JSON(fiber.Map{"delivered": delivered})
}
