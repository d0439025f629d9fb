package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.Empty(t, r.ConnectionsFor("A"), "unknown users have no connections")
	assert.NotNil(t, r.ConnectionsFor("A"))

	a1, _ := newTestClient("A")
	a2, _ := newTestClient("A")
	b1, _ := newTestClient("B")
	r.Register(a1)
	r.Register(a2)
	r.Register(b1)

	assert.Len(t, r.ConnectionsFor("A"), 2)
	assert.True(t, r.Online("B"))
	connections, users := r.Counts()
	assert.Equal(t, 3, connections)
	assert.Equal(t, 2, users)
	assert.Len(t, r.All(), 3)

	assert.False(t, r.Unregister(a1), "A still has a live connection")
	assert.True(t, r.Unregister(a2), "last connection of A")
	assert.False(t, r.Online("A"))
	assert.True(t, r.Unregister(a2), "unregistering twice is harmless")

	connections, users = r.Counts()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 1, users)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, _ := newTestClient("A")
			r.Register(c)
			_ = r.ConnectionsFor("A")
			r.Unregister(c)
		}()
	}
	wg.Wait()

	connections, users := r.Counts()
	assert.Zero(t, connections)
	assert.Zero(t, users)
}

func TestGroups(t *testing.T) {
	g := NewGroups()
	a, _ := newTestClient("A")
	a2, _ := newTestClient("A")
	b, _ := newTestClient("B")

	g.Join("r1", a)
	g.Join("r1", a)
	g.Join("r1", a2)
	g.Join("r1", b)
	g.Join("r2", a)
	assert.Len(t, g.Members("r1"), 3)
	assert.Equal(t, 2, g.Count())

	g.Leave("r1", b)
	assert.False(t, g.Subscribed("r1", b))
	assert.Len(t, g.Members("r1"), 2)

	g.RemoveUser("r1", "A")
	assert.Empty(t, g.Members("r1"))
	assert.True(t, g.Subscribed("r2", a), "other rooms are untouched")
	assert.Equal(t, 1, g.Count())

	g.Join("r3", a)
	g.LeaveAll(a)
	assert.False(t, g.Subscribed("r2", a))
	assert.False(t, g.Subscribed("r3", a))
	assert.Zero(t, g.Count())
}

func TestGroups_Drop(t *testing.T) {
	g := NewGroups()
	a, _ := newTestClient("A")
	b, _ := newTestClient("B")
	g.Join("r1", a)
	g.Join("r1", b)
	g.Join("r2", a)

	dropped := g.Drop("r1")
	assert.Len(t, dropped, 2)
	assert.Empty(t, g.Members("r1"))
	assert.True(t, g.Subscribed("r2", a))
	assert.Empty(t, g.Drop("missing"))
}

func TestClient_Send(t *testing.T) {
	c, conn := newTestClient("A")

	assert.NoError(t, c.Send(EventRoomDeleted, RoomDeletedData{RoomID: "r1"}))
	frame := conn.last(t)
	assert.Equal(t, EventRoomDeleted, frame.Event)
	assert.JSONEq(t, `{"roomID":"r1"}`, string(frame.Data))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, c.SendError("late"), ErrClientClosed)
}
