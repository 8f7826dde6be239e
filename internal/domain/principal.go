package domain

import "github.com/google/uuid"

// Principal is the authenticated caller of a ledger operation. The ledger never
// authenticates; it only checks capabilities against what the caller supplies.
type Principal struct {
	UserID  uuid.UUID `json:"userId"`
	Role    Role      `json:"role"`
	AgentID *int32    `json:"agentId,omitempty"`
}

// IsAdmin reports whether the principal carries the ADMIN role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// RequireAdmin returns ErrAdminRequired unless the principal is an admin
func (p Principal) RequireAdmin() error {
	if !p.IsAdmin() {
		return ErrAdminRequired
	}
	return nil
}

// CanAccessBorrower reports whether the principal may act on the borrower's ledger
func (p Principal) CanAccessBorrower(b *Borrower) bool {
	if p.IsAdmin() {
		return true
	}
	if p.Role != RoleAgent || p.AgentID == nil {
		return false
	}
	return b.IsAssignedTo(*p.AgentID)
}

// AgentScope returns the agent filter for list queries: nil for admins
func (p Principal) AgentScope() *int32 {
	if p.IsAdmin() {
		return nil
	}
	if p.AgentID == nil {
		// An agent role without a profile sees nothing
		none := int32(-1)
		return &none
	}
	return p.AgentID
}
