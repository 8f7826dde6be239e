package service

import (
	"context"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRecorder appends and reverses monetary events against installments.
// It is always handed the repositories of an open store transaction so that the
// write commits together with the installment change that caused it.
type TransactionRecorder struct{}

// NewTransactionRecorder creates a new TransactionRecorder
func NewTransactionRecorder() *TransactionRecorder {
	return &TransactionRecorder{}
}

// Record appends one transaction to the installment
func (r *TransactionRecorder) Record(
	ctx context.Context,
	repos domain.Repositories,
	installmentID int32,
	txType domain.TransactionType,
	amount decimal.Decimal,
	notes *string,
	at time.Time,
) (*domain.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrAmountInvalid
	}
	if notes != nil && len(*notes) > domain.MaxNotesLength {
		return nil, domain.ErrNotesTooLong
	}
	if at.IsZero() {
		return nil, domain.ErrTimestampRequired
	}

	if _, err := repos.Installments().GetByID(ctx, installmentID); err != nil {
		return nil, err
	}

	return repos.Transactions().Create(ctx, &domain.Transaction{
		InstallmentID: installmentID,
		Type:          txType,
		Amount:        amount,
		Notes:         notes,
		CreatedAt:     at,
	})
}

// ReverseAll deletes every transaction of txType tied to the installment and
// returns how many were removed. Zero matches is not an error.
func (r *TransactionRecorder) ReverseAll(
	ctx context.Context,
	repos domain.Repositories,
	installmentID int32,
	txType domain.TransactionType,
) (int, error) {
	if _, err := repos.Installments().GetByID(ctx, installmentID); err != nil {
		return 0, err
	}
	return repos.Transactions().DeleteByInstallmentAndType(ctx, installmentID, txType)
}
