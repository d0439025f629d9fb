package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	userdomain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/modules/database"
	"github.com/example/chat-backend/modules/room"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

// fakeConn records written frames and replays queued incoming frames.
type fakeConn struct {
	mu         sync.Mutex
	written    [][]byte
	incoming   chan []byte
	closed     bool
	failWrites bool
}

func newFakeConn(incoming ...string) *fakeConn {
	ch := make(chan []byte, len(incoming))
	for _, frame := range incoming {
		ch <- []byte(frame)
	}
	close(ch)
	return &fakeConn{incoming: ch}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-c.incoming
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, raw, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frames(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make([]Frame, 0, len(c.written))
	for _, raw := range c.written {
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		frames = append(frames, f)
	}
	return frames
}

func (c *fakeConn) last(t *testing.T) Frame {
	t.Helper()
	frames := c.frames(t)
	require.NotEmpty(t, frames, "no frame written")
	return frames[len(frames)-1]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func dataOf[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func errorText(t *testing.T, f Frame) string {
	t.Helper()
	require.Equal(t, EventError, f.Event)
	return dataOf[string](t, f)
}

func newTestClient(userID string) (*Client, *fakeConn) {
	conn := newFakeConn()
	session := NewSession(&userdomain.Identity{UserID: userID, Name: "name-" + userID})
	return NewClient(session, conn), conn
}

type prefixHasher struct{}

func (prefixHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

type fixedGuard struct {
	allow bool
	keys  []string
}

func (g *fixedGuard) Allow(_ context.Context, key string) bool {
	g.keys = append(g.keys, key)
	return g.allow
}

// setupService returns a room service on an in-memory database seeded with users.
func setupService(t *testing.T, userIDs ...string) *room.Service {
	t.Helper()

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := room.NewRoomStore(db)
	require.NoError(t, store.Migrate())
	for _, id := range userIDs {
		require.NoError(t, db.Create(&userdomain.User{
			ID:           id,
			Name:         "name-" + id,
			Email:        id + "@example.com",
			PasswordHash: "hash",
			Active:       true,
			CreatedAt:    time.Now(),
		}).Error)
	}

	svc, err := room.NewService(store, prefixHasher{}, nil, &mockLogger{})
	require.NoError(t, err)
	return svc
}
