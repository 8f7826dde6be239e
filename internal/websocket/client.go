package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// writeWait is time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// pongWait is time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending pings (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control messages
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client is one subscriber on the ledger event feed. It listens on a single
// hub channel and may narrow the entities it receives with control messages.
type Client struct {
	id           string
	channel      int32
	conn         *websocket.Conn
	hub          *Hub
	subscription *Subscription
	send         chan []byte
	closed       bool
	mu           sync.RWMutex
	closeOnce    sync.Once
}

// NewClient creates a new WebSocket client receiving every entity
func NewClient(conn *websocket.Conn, channel int32, hub *Hub) *Client {
	return &Client{
		id:           uuid.New().String(),
		channel:      channel,
		conn:         conn,
		hub:          hub,
		subscription: NewSubscription(),
		send:         make(chan []byte, sendBufferSize),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() string {
	return c.id
}

// Channel returns the hub channel the client listens on
func (c *Client) Channel() int32 {
	return c.channel
}

// Wants implements ClientInterface
func (c *Client) Wants(entity EntityType) bool {
	return c.subscription.Wants(entity)
}

// Send queues a message to be sent to the client
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer is full, client is too slow
		return ErrClientClosed
	}
}

// SendEvent serializes and queues a single event
func (c *Client) SendEvent(event Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Close closes the client connection
// Safe to call multiple times from different goroutines
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		closeErr = c.conn.Close()
	})
	return closeErr
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// ReadPump reads control messages until the peer disconnects.
// This should be run in a goroutine
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("client_id", c.id).
					Int32("channel", c.channel).
					Msg("WebSocket unexpected close")
			}
			break
		}
		c.handleControl(data)
	}
}

// handleControl applies one inbound frame and answers with the resulting feed
func (c *Client) handleControl(data []byte) {
	msg, err := ParseControlMessage(data)
	if err != nil {
		log.Debug().Err(err).Str("client_id", c.id).Msg("WebSocket control message rejected")
		if sendErr := c.SendEvent(ConnectionRejected(err.Error())); sendErr != nil {
			log.Debug().Err(sendErr).Str("client_id", c.id).Msg("Failed to queue rejection")
		}
		return
	}

	c.subscription.Apply(msg)
	entities := c.subscription.Entities()

	log.Debug().
		Str("client_id", c.id).
		Str("action", msg.Action).
		Int("entity_count", len(entities)).
		Msg("WebSocket subscription updated")

	if err := c.SendEvent(ConnectionSubscribed(entities)); err != nil {
		log.Debug().Err(err).Str("client_id", c.id).Msg("Failed to queue subscription ack")
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
// Each queued event is written as its own text frame.
// This should be run in a goroutine
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, hub closed this client
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("client_id", c.id).
					Int32("channel", c.channel).
					Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
