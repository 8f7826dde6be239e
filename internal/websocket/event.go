package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents what happened to the entity
type EventType string

const (
	EventTypePaid       EventType = "paid"
	EventTypeUnpaid     EventType = "unpaid"
	EventTypeDeleted    EventType = "deleted"
	EventTypeReassigned EventType = "reassigned"
	EventTypeSwept      EventType = "swept"
	EventTypeReady      EventType = "ready"
	EventTypeSubscribed EventType = "subscribed"
	EventTypeRejected   EventType = "rejected"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeInstallment EntityType = "installment"
	EntityTypeLoan        EntityType = "loan"
	EntityTypeBorrower    EntityType = "borrower"
	EntityTypeOverdue     EntityType = "overdue"

	// EntityTypeConnection events describe the socket itself and bypass subscriptions
	EntityTypeConnection EntityType = "connection"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "installment.paid"
	Entity    EntityType  `json:"entity"`    // Entity type e.g. "installment"
	Payload   interface{} `json:"payload"`   // Full entity data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// InstallmentPaid creates an installment.paid event
func InstallmentPaid(payload interface{}) Event {
	return NewEvent(EventTypePaid, EntityTypeInstallment, payload)
}

// InstallmentUnpaid creates an installment.unpaid event
func InstallmentUnpaid(payload interface{}) Event {
	return NewEvent(EventTypeUnpaid, EntityTypeInstallment, payload)
}

// LoanDeleted creates a loan.deleted event
func LoanDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeLoan, payload)
}

// BorrowerReassigned creates a borrower.reassigned event
func BorrowerReassigned(payload interface{}) Event {
	return NewEvent(EventTypeReassigned, EntityTypeBorrower, payload)
}

// OverdueSwept creates an overdue.swept event
func OverdueSwept(payload interface{}) Event {
	return NewEvent(EventTypeSwept, EntityTypeOverdue, payload)
}

// ConnectionReady creates the connection.ready frame sent once after upgrade
func ConnectionReady(clientID string, channel int32, entities []EntityType) Event {
	return NewEvent(EventTypeReady, EntityTypeConnection, map[string]interface{}{
		"clientId": clientID,
		"channel":  channel,
		"entities": entities,
	})
}

// ConnectionSubscribed acknowledges a control message with the resulting feed
func ConnectionSubscribed(entities []EntityType) Event {
	return NewEvent(EventTypeSubscribed, EntityTypeConnection, map[string]interface{}{
		"entities": entities,
	})
}

// ConnectionRejected reports a control message that could not be applied
func ConnectionRejected(reason string) Event {
	return NewEvent(EventTypeRejected, EntityTypeConnection, map[string]interface{}{
		"error": reason,
	})
}
