package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "ACTIVE"
	LoanStatusClosed LoanStatus = "CLOSED"
)

type Loan struct {
	ID              int32           `json:"id"`
	BorrowerID      int32           `json:"borrowerId"`
	PrincipalAmount decimal.Decimal `json:"principalAmount"`
	Status          LoanStatus      `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CanDeleteLoan reports whether a loan owning installments may be deleted.
// Any PAID installment pins the loan.
func CanDeleteLoan(installments []*Installment) bool {
	for _, inst := range installments {
		if inst.Status == InstallmentStatusPaid {
			return false
		}
	}
	return true
}

// AllPaid reports whether every installment is PAID. An empty schedule is not paid off.
func AllPaid(installments []*Installment) bool {
	if len(installments) == 0 {
		return false
	}
	for _, inst := range installments {
		if inst.Status != InstallmentStatusPaid {
			return false
		}
	}
	return true
}

type LoanRepository interface {
	GetByID(ctx context.Context, id int32) (*Loan, error)
	// GetByIDForUpdate reads the loan and, inside a store transaction, locks its row
	GetByIDForUpdate(ctx context.Context, id int32) (*Loan, error)
	UpdateStatus(ctx context.Context, id int32, status LoanStatus) error
	Delete(ctx context.Context, id int32) error
}
