package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeInstallment TransactionType = "INSTALLMENT"
)

// Transaction is an immutable monetary event recorded against an installment
type Transaction struct {
	ID            int32           `json:"id"`
	InstallmentID int32           `json:"installmentId"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type TransactionRepository interface {
	Create(ctx context.Context, transaction *Transaction) (*Transaction, error)
	ListByInstallment(ctx context.Context, installmentID int32) ([]*Transaction, error)
	// ListCreatedBetween returns transactions with from <= created_at < to.
	// A non-nil agentID restricts results to borrowers assigned to that agent.
	ListCreatedBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*Transaction, error)
	DeleteByInstallmentAndType(ctx context.Context, installmentID int32, txType TransactionType) (int, error)
	DeleteByLoan(ctx context.Context, loanID int32) (int, error)
}
