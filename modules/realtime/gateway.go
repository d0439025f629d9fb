package realtime

import (
	"context"

	"github.com/example/chat-backend/domain/apperr"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Gateway runs the read loop of every authenticated connection.
type Gateway struct {
	registry *Registry
	groups   *Groups
	handler  *Handler
	logger   types.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGateway creates a Gateway. Handlers run under a context that is
// cancelled by Close.
func NewGateway(registry *Registry, groups *Groups, handler *Handler, logger types.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		registry: registry,
		groups:   groups,
		handler:  handler,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve registers the connection under session and processes its frames
// until the peer disconnects. It blocks for the lifetime of the connection.
func (g *Gateway) Serve(session Session, conn Conn) {
	client := NewClient(session, conn)
	g.registry.Register(client)
	g.logger.Info("Client connected",
		"connID", session.ConnID,
		"userID", session.UserID)

	defer g.disconnect(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("Connection closed unexpectedly", "connID", session.ConnID, "error", err)
			}
			return
		}
		g.dispatch(client, raw)
	}
}

// dispatch handles one frame. A panic is contained to that frame.
func (g *Gateway) dispatch(client *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Recovered from panic in socket handler",
				"connID", client.ID(),
				"panic", r)
			_ = client.SendError(apperr.GenericMessage)
		}
	}()
	g.handler.Handle(g.ctx, client, raw)
}

func (g *Gateway) disconnect(client *Client) {
	g.groups.LeaveAll(client)
	lastConnection := g.registry.Unregister(client)
	if err := client.Close(); err != nil {
		g.logger.Debug("Close failed", "connID", client.ID(), "error", err)
	}
	g.logger.Info("Client disconnected",
		"connID", client.ID(),
		"userID", client.UserID(),
		"offline", lastConnection)
}

// Close cancels in-flight handlers and closes every live connection, which
// ends their read loops.
func (g *Gateway) Close() int {
	g.cancel()
	clients := g.registry.All()
	for _, c := range clients {
		_ = c.Close()
	}
	return len(clients)
}
