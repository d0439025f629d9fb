package realtime

import "sync"

// Registry maps user ids to their live connections. It only drives delivery
// and is rebuilt from scratch on restart.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]map[string]*Client)}
}

// Register adds a connection under its user.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.UserID()]
	if !ok {
		conns = make(map[string]*Client)
		r.byUser[c.UserID()] = conns
	}
	conns[c.ID()] = c
}

// Unregister removes a connection. It reports whether the user has no live
// connection left.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.byUser[c.UserID()]
	if !ok {
		return true
	}
	delete(conns, c.ID())
	if len(conns) == 0 {
		delete(r.byUser, c.UserID())
		return true
	}
	return false
}

// ConnectionsFor returns the user's live connections. A user without any
// gets an empty slice.
func (r *Registry) ConnectionsFor(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	clients := make([]*Client, 0, len(conns))
	for _, c := range conns {
		clients = append(clients, c)
	}
	return clients
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Counts returns the number of live connections and distinct users.
func (r *Registry) Counts() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conns := range r.byUser {
		connections += len(conns)
	}
	return connections, len(r.byUser)
}

// All returns every live connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var clients []*Client
	for _, conns := range r.byUser {
		for _, c := range conns {
			clients = append(clients, c)
		}
	}
	return clients
}
