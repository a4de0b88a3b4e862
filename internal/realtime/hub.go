package realtime

import (
	"encoding/json"
	"sync"

	"github.com/youngleee/thesis/internal/metrics"
	"go.uber.org/zap"
)

// Hub is the registry of live clients on this instance, indexed by client
// ID and by owner key.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	byOwner map[string]map[string]*Client

	logger  *zap.Logger
	metrics *metrics.Metrics
}

type HubOption func(*Hub)

func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		byOwner: make(map[string]map[string]*Client),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "hub"))
	return h
}

// Register adds c to the hub. Registering a closed client is a no-op.
func (h *Hub) Register(c *Client) {
	if c.State() == StateClosed {
		return
	}
	c.hub.Store(h)

	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		h.mu.Unlock()
		return
	}
	h.clients[c.id] = c
	key := c.owner.Key()
	if h.byOwner[key] == nil {
		h.byOwner[key] = make(map[string]*Client)
	}
	h.byOwner[key][c.id] = c
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Debug("client_registered",
		zap.String("client_id", c.id),
		zap.String("owner", key),
	)

	// a concurrent Close may have missed the hub pointer
	if c.State() == StateClosed {
		h.Unregister(c)
	}
}

// Unregister removes c. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	key := c.owner.Key()

	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	if set := h.byOwner[key]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.byOwner, key)
		}
	}
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
	h.logger.Debug("client_unregistered",
		zap.String("client_id", c.id),
		zap.String("owner", key),
	)
}

// Deliver hands msg to its audience: cart updates reach the owner's clients,
// everything else reaches every client. It returns how many clients accepted
// the frame.
func (h *Hub) Deliver(msg Message) int {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast_encode_failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		return 0
	}

	targets := h.audience(msg)
	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			h.metrics.Delivered(string(msg.Kind))
			continue
		}
		h.metrics.Dropped(string(msg.Kind), "client_unavailable")
	}
	return delivered
}

// SendTo writes msg to a single client, reporting whether it was accepted.
func (h *Hub) SendTo(c *Client, msg Message) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast_encode_failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		return false
	}
	if !c.Send(frame) {
		h.metrics.Dropped(string(msg.Kind), "client_unavailable")
		return false
	}
	h.metrics.Delivered(string(msg.Kind))
	return true
}

func (h *Hub) audience(msg Message) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.Kind == KindCartUpdate {
		set := h.byOwner[msg.Owner]
		out := make([]*Client, 0, len(set))
		for _, c := range set {
			out = append(out, c)
		}
		return out
	}

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CountFor returns the number of registered clients of one owner.
func (h *Hub) CountFor(ownerKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byOwner[ownerKey])
}

// CloseAll closes every registered client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
