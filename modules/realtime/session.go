// Package realtime serves chat rooms over websocket connections: it tracks
// live connections per user, groups them by room and dispatches socket events
// to the room module.
package realtime

import (
	"time"

	"github.com/example/chat-backend/domain/user"
	"github.com/google/uuid"
)

// Session is the identity bound to one connection at handshake. It never
// changes for the lifetime of the socket.
type Session struct {
	ConnID      string
	UserID      string
	Email       string
	Name        string
	ConnectedAt time.Time
}

// NewSession binds a fresh connection id to an authenticated identity.
func NewSession(identity *user.Identity) Session {
	return Session{
		ConnID:      uuid.New().String(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		Name:        identity.Name,
		ConnectedAt: time.Now().UTC(),
	}
}
