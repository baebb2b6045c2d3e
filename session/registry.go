package session

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps recipient ids to the connection this instance holds for
// them. One connection per recipient: a new connection for an id displaces
// and closes the old one.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.SugaredLogger
}

// NewRegistry creates an empty session registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		logger:  log.Named("sessions"),
	}
}

// Register installs client as the connection for its recipient id.
// Last connection wins: a displaced client is closed so its pumps exit.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	old := r.clients[client.recipientID]
	r.clients[client.recipientID] = client
	r.mu.Unlock()

	if old != nil {
		old.Close()
		r.logger.Infow("Displaced previous connection", "recipient_id", client.recipientID)
	}
	r.logger.Infow("Session registered", "recipient_id", client.recipientID)
}

// Unregister removes client if it is still the registered connection for its
// id. A disconnect racing with a newer registration must not evict the newer
// connection.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	current, ok := r.clients[client.recipientID]
	if ok && current == client {
		delete(r.clients, client.recipientID)
	}
	r.mu.Unlock()

	if ok && current == client {
		r.logger.Infow("Session unregistered", "recipient_id", client.recipientID)
	}
}

// Get returns the connection for a recipient id, or nil.
func (r *Registry) Get(recipientID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[recipientID]
}

// Count returns the number of live sessions on this instance.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// SendLocal delivers payload to the recipient's connection if this instance
// holds one. Missing recipients, closed connections and full buffers are
// swallowed: delivery is best-effort and another instance may hold the
// connection.
func (r *Registry) SendLocal(recipientID string, payload []byte) {
	client := r.Get(recipientID)
	if client == nil {
		r.logger.Debugw("No local session for recipient", "recipient_id", recipientID)
		return
	}

	if !client.Enqueue(payload) {
		r.logger.Warnw("Dropping message for recipient",
			"recipient_id", recipientID,
			"size_bytes", len(payload))
	}
}

// SendAll delivers payload to every session this instance holds.
func (r *Registry) SendAll(payload []byte) {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, c := range clients {
		if !c.Enqueue(payload) {
			r.logger.Warnw("Dropping broadcast for recipient",
				"recipient_id", c.recipientID)
		}
	}
}

// CloseAll closes every session, typically at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		clients = append(clients, c)
		delete(r.clients, id)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
