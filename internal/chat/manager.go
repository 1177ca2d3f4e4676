package chat

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Deliverer is a live connection as seen by the delivery pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, out Outbound) AckResult
	Notify(out Outbound) bool
}

// Connections is the table of handles that are live right now on this node.
type Connections interface {
	Live(handle string) (Deliverer, bool)
	// Owns reports whether handle was issued by this node, live or not.
	Owns(handle string) bool
}

// Manager owns the live-connection table. The presence registry may lag
// behind it; Manager is the ground truth for "is this handle open" for the
// handles it issued. Handles are "<node>:<uuid>".
type Manager struct {
	node    string
	mu      sync.RWMutex
	clients map[string]*Client // handle -> client
}

func NewManager(nodeID string) *Manager {
	return &Manager{node: nodeID, clients: map[string]*Client{}}
}

func (m *Manager) NodeID() string { return m.node }

func (m *Manager) newHandle() string {
	return m.node + ":" + uuid.NewString()
}

func (m *Manager) Owns(handle string) bool {
	return strings.HasPrefix(handle, m.node+":")
}

func (m *Manager) attach(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.Handle] = c
}

func (m *Manager) detach(c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.Handle]; !ok {
		return false
	}
	delete(m.clients, c.Handle)
	return true
}

func (m *Manager) Live(handle string) (Deliverer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[handle]
	// attached clients are past authentication; a push during the
	// AUTHENTICATED window is buffered until the write pump starts
	if !ok || c.State() == StateDisconnected {
		return nil, false
	}
	return c, true
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// OnlineUsers lists the distinct users holding a live connection here.
func (m *Manager) OnlineUsers() []string {
	m.mu.RLock()
	seen := map[string]bool{}
	for _, c := range m.clients {
		if c.State() == StateLive {
			seen[c.Identity.UserID] = true
		}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CloseAll closes every connection; their read pumps then run the normal
// disconnect path.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
