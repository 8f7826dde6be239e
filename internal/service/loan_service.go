package service

import (
	"context"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// LoanService guards destructive loan operations
type LoanService struct {
	store          domain.Store
	eventPublisher websocket.EventPublisher
}

// NewLoanService creates a new LoanService
func NewLoanService(store domain.Store) *LoanService {
	return &LoanService{store: store}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *LoanService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *LoanService) publishEvent(agentID *int32, event websocket.Event) {
	if s.eventPublisher != nil {
		websocket.PublishAll(s.eventPublisher, websocket.ChannelsFor(agentID), event)
	}
}

// DeleteLoanResult reports what a loan deletion removed
type DeleteLoanResult struct {
	LoanID              int32 `json:"loanId"`
	DeletedInstallments int   `json:"deletedInstallments"`
	DeletedTransactions int   `json:"deletedTransactions"`
}

// CanDeleteLoan reports whether the loan has no PAID installment
func (s *LoanService) CanDeleteLoan(ctx context.Context, p domain.Principal, loanID int32) (bool, error) {
	loan, err := s.store.Loans().GetByID(ctx, loanID)
	if err != nil {
		return false, err
	}
	if _, err := loadBorrower(ctx, s.store, p, loan.BorrowerID); err != nil {
		return false, err
	}

	installments, err := s.store.Installments().ListByLoan(ctx, loanID)
	if err != nil {
		return false, err
	}
	return domain.CanDeleteLoan(installments), nil
}

// DeleteLoan removes a loan with its installments and their transactions.
// The paid-installment check and every delete share one store transaction, and
// children go before parents.
func (s *LoanService) DeleteLoan(ctx context.Context, p domain.Principal, loanID int32) (*DeleteLoanResult, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}

	result := &DeleteLoanResult{LoanID: loanID}
	var borrowerAgent *int32
	err := s.store.RunInTx(ctx, func(tx domain.Repositories) error {
		loan, err := tx.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		// Locked so a concurrent pay waits for this transaction and then finds nothing
		installments, err := tx.Installments().ListByLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !domain.CanDeleteLoan(installments) {
			return domain.ErrLoanHasPaidInstallments
		}

		borrower, err := tx.Borrowers().GetByID(ctx, loan.BorrowerID)
		if err != nil {
			return err
		}
		borrowerAgent = borrower.AgentID

		if result.DeletedTransactions, err = tx.Transactions().DeleteByLoan(ctx, loanID); err != nil {
			return err
		}
		if result.DeletedInstallments, err = tx.Installments().DeleteByLoan(ctx, loanID); err != nil {
			return err
		}
		return tx.Loans().Delete(ctx, loanID)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("loan_id", loanID).
		Int("deleted_installments", result.DeletedInstallments).
		Int("deleted_transactions", result.DeletedTransactions).
		Str("user_id", p.UserID.String()).
		Msg("Loan deleted")

	s.publishEvent(borrowerAgent, websocket.LoanDeleted(result))

	return result, nil
}
