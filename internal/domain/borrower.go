package domain

import (
	"context"
	"time"
)

// Borrower receives loans and is serviced by at most one agent at a time
type Borrower struct {
	ID             int32     `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	AgentID        *int32    `json:"agentId,omitempty"` // nil while unassigned
	GuarantorName  string    `json:"guarantorName"`
	GuarantorPhone string    `json:"guarantorPhone"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsAssignedTo reports whether the borrower is currently serviced by agentID
func (b *Borrower) IsAssignedTo(agentID int32) bool {
	return b.AgentID != nil && *b.AgentID == agentID
}

type BorrowerRepository interface {
	GetByID(ctx context.Context, id int32) (*Borrower, error)
	// UpdateAgent overwrites the borrower's agent reference and nothing else
	UpdateAgent(ctx context.Context, id int32, agentID int32, at time.Time) (*Borrower, error)
	// ListWithUnpaidDueBetween returns borrowers owning a non-PAID installment with
	// from <= due_date < to. A nil agentID means every agent.
	ListWithUnpaidDueBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*Borrower, error)
}
