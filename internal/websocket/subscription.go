package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Control actions a client may send over its connection
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionReset       = "reset"
)

var (
	// ErrUnknownAction is returned for a control message with an unsupported action
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownEntity is returned when a control message names an entity with no events
	ErrUnknownEntity = errors.New("unknown entity")
)

// subscribable lists the entities clients may filter on
var subscribable = map[EntityType]bool{
	EntityTypeInstallment: true,
	EntityTypeLoan:        true,
	EntityTypeBorrower:    true,
	EntityTypeOverdue:     true,
}

// SubscribableEntities returns every entity a client may filter on, sorted
func SubscribableEntities() []EntityType {
	return NewSubscription().Entities()
}

// ControlMessage is an inbound frame that narrows or widens a client's feed.
// Example: {"action":"subscribe","entities":["installment","overdue"]}
type ControlMessage struct {
	Action   string       `json:"action"`
	Entities []EntityType `json:"entities"`
}

// ParseControlMessage decodes and validates an inbound frame
func ParseControlMessage(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("malformed control message: %w", err)
	}
	switch msg.Action {
	case ActionSubscribe, ActionUnsubscribe, ActionReset:
	default:
		return ControlMessage{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
	for _, entity := range msg.Entities {
		if !subscribable[entity] {
			return ControlMessage{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
		}
	}
	return msg, nil
}

// Subscription is the set of entities a client receives events for. A new
// subscription receives everything; connection events always pass.
type Subscription struct {
	mu       sync.RWMutex
	filtered bool
	entities map[EntityType]bool
}

// NewSubscription creates a subscription that receives every entity
func NewSubscription() *Subscription {
	return &Subscription{entities: make(map[EntityType]bool)}
}

// Wants reports whether an event about entity should be delivered
func (s *Subscription) Wants(entity EntityType) bool {
	if entity == EntityTypeConnection {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.filtered || s.entities[entity]
}

// Apply updates the subscription from a validated control message.
// The first subscribe narrows the full feed to the named entities; the first
// unsubscribe removes them from it.
func (s *Subscription) Apply(msg ControlMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Action {
	case ActionSubscribe:
		if !s.filtered {
			s.entities = make(map[EntityType]bool)
			s.filtered = true
		}
		for _, entity := range msg.Entities {
			s.entities[entity] = true
		}
	case ActionUnsubscribe:
		if !s.filtered {
			s.entities = make(map[EntityType]bool, len(subscribable))
			for entity := range subscribable {
				s.entities[entity] = true
			}
			s.filtered = true
		}
		for _, entity := range msg.Entities {
			delete(s.entities, entity)
		}
	case ActionReset:
		s.entities = make(map[EntityType]bool)
		s.filtered = false
	}
}

// Entities returns the entities currently delivered, sorted
func (s *Subscription) Entities() []EntityType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source := s.entities
	if !s.filtered {
		source = subscribable
	}
	entities := make([]EntityType, 0, len(source))
	for entity := range source {
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return entities
}
