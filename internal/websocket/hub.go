package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// AdminChannel receives every ledger event regardless of agent assignment
const AdminChannel int32 = 0

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// ClientInterface defines the interface that clients must implement
type ClientInterface interface {
	ID() string
	Channel() int32
	Wants(entity EntityType) bool
	Send(data []byte) error
	Close() error
}

// Hub manages WebSocket connections grouped by channel.
// Agents listen on their own agent ID, admins on AdminChannel.
type Hub struct {
	channels map[int32]map[string]ClientInterface
	mu       sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		channels: make(map[int32]map[string]ClientInterface),
	}
}

// Register adds a client to the hub under its channel
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := client.Channel()
	clientID := client.ID()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]ClientInterface)
	}

	h.channels[channel][clientID] = client

	log.Debug().
		Int32("channel", channel).
		Str("client_id", clientID).
		Msg("WebSocket client registered")
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := client.Channel()
	clientID := client.ID()

	clients, ok := h.channels[channel]
	if !ok {
		return
	}
	if _, exists := clients[clientID]; !exists {
		return
	}

	delete(clients, clientID)
	if len(clients) == 0 {
		delete(h.channels, channel)
	}

	log.Debug().
		Int32("channel", channel).
		Str("client_id", clientID).
		Msg("WebSocket client unregistered")
}

// Broadcast sends an event to the clients on a channel subscribed to its entity
func (h *Hub) Broadcast(channel int32, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Int32("channel", channel).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	h.mu.RLock()
	clients, ok := h.channels[channel]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy clients to avoid holding lock during send
	clientsCopy := make([]ClientInterface, 0, len(clients))
	skipped := 0
	for _, client := range clients {
		if !client.Wants(event.Entity) {
			skipped++
			continue
		}
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	for _, client := range clientsCopy {
		go func(c ClientInterface) {
			if err := c.Send(data); err != nil {
				log.Warn().
					Err(err).
					Int32("channel", channel).
					Str("client_id", c.ID()).
					Msg("Failed to send to client")
			}
		}(client)
	}

	log.Debug().
		Int32("channel", channel).
		Str("event_type", event.Type).
		Int("client_count", len(clientsCopy)).
		Int("filtered_count", skipped).
		Msg("Broadcast event")
}

// Close disconnects every client and empties the hub. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []ClientInterface
	for _, clients := range h.channels {
		for _, client := range clients {
			all = append(all, client)
		}
	}
	h.channels = make(map[int32]map[string]ClientInterface)
	h.mu.Unlock()

	for _, client := range all {
		if err := client.Close(); err != nil {
			log.Debug().Err(err).Str("client_id", client.ID()).Msg("Error closing WebSocket client")
		}
	}

	log.Info().Int("client_count", len(all)).Msg("WebSocket hub closed")
}

// ClientCount returns the number of clients listening on a channel
func (h *Hub) ClientCount(channel int32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.channels[channel]; ok {
		return len(clients)
	}
	return 0
}

// TotalClientCount returns the total number of connected clients across all channels
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.channels {
		total += len(clients)
	}
	return total
}
