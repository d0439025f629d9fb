package realtime

import "sync"

// Groups tracks which connections are subscribed to which room.
type Groups struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Client
	joined map[string]map[string]struct{}
}

// NewGroups creates an empty set of room groups.
func NewGroups() *Groups {
	return &Groups{
		rooms:  make(map[string]map[string]*Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join subscribes c to roomID. Joining twice is harmless.
func (g *Groups) Join(roomID string, c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	members, ok := g.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		g.rooms[roomID] = members
	}
	members[c.ID()] = c

	rooms, ok := g.joined[c.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		g.joined[c.ID()] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave unsubscribes c from roomID.
func (g *Groups) Leave(roomID string, c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(roomID, c.ID())
}

// LeaveAll unsubscribes c from every room.
func (g *Groups) LeaveAll(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for roomID := range g.joined[c.ID()] {
		g.leaveLocked(roomID, c.ID())
	}
	delete(g.joined, c.ID())
}

// RemoveUser unsubscribes every connection of userID from roomID.
func (g *Groups) RemoveUser(roomID, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for connID, c := range g.rooms[roomID] {
		if c.UserID() == userID {
			g.leaveLocked(roomID, connID)
		}
	}
}

// Drop removes the group and returns the connections that were subscribed.
func (g *Groups) Drop(roomID string) []*Client {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := g.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for connID, c := range members {
		clients = append(clients, c)
		if rooms, ok := g.joined[connID]; ok {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(g.joined, connID)
			}
		}
	}
	delete(g.rooms, roomID)
	return clients
}

// Members returns the connections subscribed to roomID.
func (g *Groups) Members(roomID string) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members := g.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// Subscribed reports whether c is in roomID's group.
func (g *Groups) Subscribed(roomID string, c *Client) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[roomID][c.ID()]
	return ok
}

// Count returns the number of rooms with at least one subscriber.
func (g *Groups) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Groups) leaveLocked(roomID, connID string) {
	if members, ok := g.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.rooms, roomID)
		}
	}
	if rooms, ok := g.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(g.joined, connID)
		}
	}
}
