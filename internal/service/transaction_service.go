package service

import (
	"context"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
)

// TransactionService serves transaction read paths
type TransactionService struct {
	transactionRepo domain.TransactionRepository
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(transactionRepo domain.TransactionRepository) *TransactionService {
	return &TransactionService{transactionRepo: transactionRepo}
}

// ListTransactionsOn returns transactions created on the UTC day of day, oldest first.
// Agents only see transactions of their own borrowers.
func (s *TransactionService) ListTransactionsOn(ctx context.Context, p domain.Principal, day time.Time) ([]*domain.Transaction, error) {
	if day.IsZero() {
		return nil, domain.ErrTimestampRequired
	}
	from, to := dayBounds(day)

	transactions, err := s.transactionRepo.ListCreatedBetween(ctx, p.AgentScope(), from, to)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	return transactions, nil
}
