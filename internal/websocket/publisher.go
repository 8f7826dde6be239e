package websocket

// EventPublisher defines the interface for publishing events to WebSocket clients
type EventPublisher interface {
	// Publish sends an event to all clients listening on the channel
	Publish(channel int32, event Event)
}

// Ensure Hub implements EventPublisher
var _ EventPublisher = (*Hub)(nil)

// Publish implements EventPublisher by broadcasting the event to the channel
func (h *Hub) Publish(channel int32, event Event) {
	h.Broadcast(channel, event)
}

// ChannelsFor returns the channels interested in a borrower owned by agentID.
// Admins always listen; the owning agent listens when there is one.
func ChannelsFor(agentID *int32) []int32 {
	channels := []int32{AdminChannel}
	if agentID != nil && *agentID != AdminChannel {
		channels = append(channels, *agentID)
	}
	return channels
}

// PublishAll sends the event to every channel in order
func PublishAll(p EventPublisher, channels []int32, event Event) {
	for _, ch := range channels {
		p.Publish(ch, event)
	}
}

// NoOpPublisher is a publisher that does nothing (for testing or when WebSocket is disabled)
type NoOpPublisher struct{}

// Publish does nothing
func (n *NoOpPublisher) Publish(channel int32, event Event) {}
