package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger core wraps exactly one of these,
// so callers can classify failures with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Entity lookups
var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrAgentNotFound       = fmt.Errorf("agent %w", ErrNotFound)
	ErrBorrowerNotFound    = fmt.Errorf("borrower %w", ErrNotFound)
	ErrLoanNotFound        = fmt.Errorf("loan %w", ErrNotFound)
	ErrInstallmentNotFound = fmt.Errorf("installment %w", ErrNotFound)

	// ErrNoPendingInstallment is returned by next-action selection when a borrower
	// has nothing left in PENDING.
	ErrNoPendingInstallment = fmt.Errorf("pending installment %w", ErrNotFound)
)

// Business-rule conflicts
var (
	ErrLoanHasPaidInstallments = fmt.Errorf("%w: loan has paid installments", ErrConflict)
	ErrConcurrentModification  = fmt.Errorf("%w: installment was modified concurrently", ErrConflict)
)

// Input validation
var (
	ErrAmountInvalid      = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrExtraAmountInvalid = fmt.Errorf("%w: extra amount must not be negative", ErrValidation)
	ErrTimestampRequired  = fmt.Errorf("%w: timestamp is required", ErrValidation)
	ErrAgentIDRequired    = fmt.Errorf("%w: agent ID is required", ErrValidation)
	ErrNotesTooLong       = fmt.Errorf("%w: notes exceed maximum length", ErrValidation)
)

// Authorization
var (
	ErrAdminRequired    = fmt.Errorf("%w: admin role required", ErrForbidden)
	ErrBorrowerNotOwned = fmt.Errorf("%w: borrower is not assigned to this agent", ErrForbidden)
)

// TransitionError reports an illegal installment status change
type TransitionError struct {
	From InstallmentStatus
	To   InstallmentStatus
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) match any TransitionError
func (e TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Validation constants
const (
	MaxNotesLength = 500
)
