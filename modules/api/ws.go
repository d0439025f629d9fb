package api

import (
	"github.com/example/chat-backend/domain/apperr"
	"github.com/example/chat-backend/modules/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Handshake authenticates a socket before the upgrade. The token comes from
// the token query parameter or a bearer header. Nothing is registered for a
// connection that fails here.
func (h *Handlers) Handshake(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		token, _ = bearerToken(c)
	}
	if token == "" {
		return writeError(c, apperr.Unauthenticated(msgSignIn))
	}

	identity, err := h.auth.Authenticate(c.UserContext(), token)
	if err != nil {
		return writeError(c, err)
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if h.realtime == nil || h.realtime.Gateway() == nil {
		return fiber.ErrServiceUnavailable
	}

	c.Locals(SessionContextKey, realtime.NewSession(identity))
	return c.Next()
}

// ServeSocket hands an upgraded connection to the realtime gateway.
func (h *Handlers) ServeSocket(conn *websocket.Conn) {
	session, ok := conn.Locals(SessionContextKey).(realtime.Session)
	if !ok {
		_ = conn.Close()
		return
	}
	h.realtime.Gateway().Serve(session, conn)
}
