package domain

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus is the repayment state of a single installment
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "PENDING"
	InstallmentStatusOverdue InstallmentStatus = "OVERDUE"
	InstallmentStatusPaid    InstallmentStatus = "PAID"
)

// Valid reports whether s is a known status
func (s InstallmentStatus) Valid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusOverdue, InstallmentStatusPaid:
		return true
	}
	return false
}

// transitions lists every legal edge of the installment state machine
var transitions = map[InstallmentStatus][]InstallmentStatus{
	InstallmentStatusPending: {InstallmentStatusOverdue, InstallmentStatusPaid},
	InstallmentStatusOverdue: {InstallmentStatusPaid},
	InstallmentStatusPaid:    {InstallmentStatusPending},
}

// Installment is one scheduled repayment unit of a loan.
// Amount, ExtraAmount and PenaltyAmount are what was recorded against it;
// InstallmentAmount is what was scheduled.
type Installment struct {
	ID                int32             `json:"id"`
	LoanID            int32             `json:"loanId"`
	DueDate           time.Time         `json:"dueDate"`
	InstallmentAmount decimal.Decimal   `json:"installmentAmount"`
	Amount            decimal.Decimal   `json:"amount"`
	ExtraAmount       decimal.Decimal   `json:"extraAmount"`
	PenaltyAmount     decimal.Decimal   `json:"penaltyAmount"`
	DueAmount         decimal.Decimal   `json:"dueAmount"`
	Status            InstallmentStatus `json:"status"`
	PaidAt            *time.Time        `json:"paidAt,omitempty"`
	Version           int32             `json:"version"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// CanTransition reports whether the installment may move to the given status
func (i *Installment) CanTransition(to InstallmentStatus) bool {
	for _, next := range transitions[i.Status] {
		if next == to {
			return true
		}
	}
	return false
}

func (i *Installment) checkTransition(to InstallmentStatus) error {
	if !i.CanTransition(to) {
		return TransitionError{From: i.Status, To: to}
	}
	return nil
}

// IsLate reports whether the due date is strictly before asOf
func (i *Installment) IsLate(asOf time.Time) bool {
	return i.DueDate.Before(asOf)
}

// MarkOverdue moves a late PENDING installment to OVERDUE. Amounts are untouched.
func (i *Installment) MarkOverdue(asOf time.Time) error {
	if err := i.checkTransition(InstallmentStatusOverdue); err != nil {
		return err
	}
	if !i.IsLate(asOf) {
		return TransitionError{From: i.Status, To: InstallmentStatusOverdue}
	}
	i.Status = InstallmentStatusOverdue
	i.UpdatedAt = asOf
	return nil
}

// ApplyPayment records a payment and moves the installment to PAID
func (i *Installment) ApplyPayment(amount, extraAmount, penaltyAmount decimal.Decimal, at time.Time) error {
	if err := i.checkTransition(InstallmentStatusPaid); err != nil {
		return err
	}
	paidAt := at
	i.Amount = amount
	i.ExtraAmount = extraAmount
	i.PenaltyAmount = penaltyAmount
	i.DueAmount = decimal.Zero
	i.Status = InstallmentStatusPaid
	i.PaidAt = &paidAt
	i.UpdatedAt = at
	return nil
}

// Reverse undoes a payment, returning the installment to PENDING with all
// recorded amounts cleared
func (i *Installment) Reverse(at time.Time) error {
	if err := i.checkTransition(InstallmentStatusPending); err != nil {
		return err
	}
	i.Amount = decimal.Zero
	i.ExtraAmount = decimal.Zero
	i.PenaltyAmount = decimal.Zero
	i.DueAmount = decimal.Zero
	i.Status = InstallmentStatusPending
	i.PaidAt = nil
	i.UpdatedAt = at
	return nil
}

// NextActions is what a collector should act on for one borrower
type NextActions struct {
	Next    *Installment   `json:"next"`
	Overdue []*Installment `json:"overdue"`
}

// SelectNextActions picks the single earliest-due PENDING installment plus every
// OVERDUE installment. A schedule without any PENDING installment is an error.
func SelectNextActions(installments []*Installment) (*NextActions, error) {
	sorted := make([]*Installment, len(installments))
	copy(sorted, installments)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].DueDate.Equal(sorted[b].DueDate) {
			return sorted[a].ID < sorted[b].ID
		}
		return sorted[a].DueDate.Before(sorted[b].DueDate)
	})

	result := &NextActions{Overdue: []*Installment{}}
	for _, inst := range sorted {
		switch inst.Status {
		case InstallmentStatusPending:
			if result.Next == nil {
				result.Next = inst
			}
		case InstallmentStatusOverdue:
			result.Overdue = append(result.Overdue, inst)
		}
	}
	if result.Next == nil {
		return nil, ErrNoPendingInstallment
	}
	return result, nil
}

type InstallmentRepository interface {
	GetByID(ctx context.Context, id int32) (*Installment, error)
	ListByLoan(ctx context.Context, loanID int32) ([]*Installment, error)
	// ListByLoanForUpdate is ListByLoan that, inside a store transaction, locks every
	// returned row until commit
	ListByLoanForUpdate(ctx context.Context, loanID int32) ([]*Installment, error)
	ListByBorrower(ctx context.Context, borrowerID int32) ([]*Installment, error)
	// Update writes every mutable field and bumps Version, but only when the stored
	// version still equals expectedVersion. Otherwise it returns ErrConcurrentModification.
	Update(ctx context.Context, inst *Installment, expectedVersion int32) (*Installment, error)
	// ListOverdueCandidateIDs returns PENDING installments with due_date < asOf
	ListOverdueCandidateIDs(ctx context.Context, asOf time.Time) ([]int32, error)
	// MarkOverdue flips one installment to OVERDUE iff it is still PENDING and late.
	// It reports whether a row changed.
	MarkOverdue(ctx context.Context, id int32, asOf time.Time) (bool, error)
	DeleteByLoan(ctx context.Context, loanID int32) (int, error)
}
