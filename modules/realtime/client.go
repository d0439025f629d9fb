package realtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// ErrClientClosed is returned when sending on a closed connection.
var ErrClientClosed = errors.New("client closed")

// Conn is the part of a websocket connection the gateway uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one live connection. Writes are serialized so concurrent
// broadcasts never interleave frames.
type Client struct {
	session Session
	conn    Conn

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a connection for the given session.
func NewClient(session Session, conn Conn) *Client {
	return &Client{session: session, conn: conn}
}

// Session returns the identity bound to the connection.
func (c *Client) Session() Session {
	return c.session
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.session.ConnID
}

// UserID returns the id of the connected user.
func (c *Client) UserID() string {
	return c.session.UserID
}

// Send writes one event frame.
func (c *Client) Send(event string, data any) error {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// SendError writes an error event carrying message.
func (c *Client) SendError(message string) error {
	return c.Send(EventError, message)
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write to %s: %w", c.session.ConnID, err)
	}
	return nil
}

// Close closes the connection once. Later sends fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
