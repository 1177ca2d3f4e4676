package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/apperr"
	"github.com/pelusa-v/pelusa-chat/internal/identity"
)

const (
	localIdentity = "identity"
	localToken    = "token"
)

// bearerToken reads "Authorization: Bearer <t>", falling back to ?token=
// since browsers cannot set headers on websocket handshakes.
func bearerToken(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return c.Query("token")
}

func (h *Handler) RequireIdentity(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return apperr.Unauthenticated("missing bearer token")
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		return err
	}
	c.Locals(localIdentity, id)
	return c.Next()
}

func caller(c *fiber.Ctx) identity.Identity {
	id, _ := c.Locals(localIdentity).(identity.Identity)
	return id
}

// ErrorHandler renders AppErrors as {"error":{"code","message"}} with the
// matching status. Causes are logged, never returned.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fiber.Map{"code": apperr.CodeUnknown, "message": fe.Message}})
		}
		code := apperr.CodeOf(err)
		status := apperr.HTTPStatus(code)
		if status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		return c.Status(status).JSON(fiber.Map{"error": apperr.Public(err)})
	}
}
