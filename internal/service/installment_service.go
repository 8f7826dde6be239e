package service

import (
	"context"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// InstallmentService drives the installment state machine and the transaction recorder
type InstallmentService struct {
	store          domain.Store
	recorder       *TransactionRecorder
	penalty        PenaltyPolicy
	eventPublisher websocket.EventPublisher
}

// NewInstallmentService creates a new InstallmentService. A nil policy charges no penalty.
func NewInstallmentService(store domain.Store, recorder *TransactionRecorder, penalty PenaltyPolicy) *InstallmentService {
	if penalty == nil {
		penalty = DailyPenaltyPolicy{}
	}
	return &InstallmentService{
		store:    store,
		recorder: recorder,
		penalty:  penalty,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *InstallmentService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes a WebSocket event to admins and the owning agent
func (s *InstallmentService) publishEvent(agentID *int32, event websocket.Event) {
	if s.eventPublisher != nil {
		websocket.PublishAll(s.eventPublisher, websocket.ChannelsFor(agentID), event)
	}
}

// PayInstallmentInput contains input for paying an installment
type PayInstallmentInput struct {
	Amount      decimal.Decimal
	ExtraAmount decimal.Decimal
	Notes       *string
	At          time.Time
}

func (in PayInstallmentInput) validate() error {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrAmountInvalid
	}
	if in.ExtraAmount.IsNegative() {
		return domain.ErrExtraAmountInvalid
	}
	if in.Notes != nil && len(*in.Notes) > domain.MaxNotesLength {
		return domain.ErrNotesTooLong
	}
	if in.At.IsZero() {
		return domain.ErrTimestampRequired
	}
	return nil
}

// InstallmentLedger is an installment with every transaction recorded against it
type InstallmentLedger struct {
	Installment  *domain.Installment   `json:"installment"`
	Transactions []*domain.Transaction `json:"transactions"`
}

// PayInstallment moves a PENDING or OVERDUE installment to PAID and records its
// INSTALLMENT transaction in the same store transaction. A caller that lost a
// race against another writer gets domain.ErrConcurrentModification.
func (s *InstallmentService) PayInstallment(ctx context.Context, p domain.Principal, id int32, input PayInstallmentInput) (*domain.Installment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	scope, err := loadInstallmentScope(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	snapshot := scope.installment
	if !snapshot.CanTransition(domain.InstallmentStatusPaid) {
		return nil, domain.TransitionError{From: snapshot.Status, To: domain.InstallmentStatusPaid}
	}

	penalty := s.penalty.Penalty(snapshot, input.At)
	loanClosed := false

	var paid *domain.Installment
	err = s.store.RunInTx(ctx, func(tx domain.Repositories) error {
		current, err := tx.Installments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Version != snapshot.Version {
			return domain.ErrConcurrentModification
		}

		if err := current.ApplyPayment(input.Amount, input.ExtraAmount, penalty, input.At); err != nil {
			return err
		}
		paid, err = tx.Installments().Update(ctx, current, snapshot.Version)
		if err != nil {
			return err
		}

		if _, err := s.recorder.Record(ctx, tx, id, domain.TransactionTypeInstallment, input.Amount, input.Notes, input.At); err != nil {
			return err
		}

		schedule, err := tx.Installments().ListByLoan(ctx, current.LoanID)
		if err != nil {
			return err
		}
		if domain.AllPaid(schedule) {
			loanClosed = true
			return tx.Loans().UpdateStatus(ctx, current.LoanID, domain.LoanStatusClosed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("installment_id", paid.ID).
		Int32("loan_id", paid.LoanID).
		Int32("borrower_id", scope.borrower.ID).
		Str("amount", input.Amount.StringFixed(2)).
		Str("penalty", penalty.StringFixed(2)).
		Bool("loan_closed", loanClosed).
		Msg("Installment paid")

	s.publishEvent(scope.borrower.AgentID, websocket.InstallmentPaid(installmentPayload(paid, scope.borrower.ID)))

	return paid, nil
}

// UnpayInstallment reverses a payment: every INSTALLMENT transaction of the
// installment is deleted and its recorded amounts are cleared, atomically.
func (s *InstallmentService) UnpayInstallment(ctx context.Context, p domain.Principal, id int32, at time.Time) (*domain.Installment, error) {
	if at.IsZero() {
		return nil, domain.ErrTimestampRequired
	}

	scope, err := loadInstallmentScope(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	snapshot := scope.installment
	if !snapshot.CanTransition(domain.InstallmentStatusPending) {
		return nil, domain.TransitionError{From: snapshot.Status, To: domain.InstallmentStatusPending}
	}

	reversed := 0
	var unpaid *domain.Installment
	err = s.store.RunInTx(ctx, func(tx domain.Repositories) error {
		current, err := tx.Installments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Version != snapshot.Version {
			return domain.ErrConcurrentModification
		}

		reversed, err = s.recorder.ReverseAll(ctx, tx, id, domain.TransactionTypeInstallment)
		if err != nil {
			return err
		}

		if err := current.Reverse(at); err != nil {
			return err
		}
		unpaid, err = tx.Installments().Update(ctx, current, snapshot.Version)
		if err != nil {
			return err
		}

		loan, err := tx.Loans().GetByID(ctx, current.LoanID)
		if err != nil {
			return err
		}
		if loan.Status == domain.LoanStatusClosed {
			return tx.Loans().UpdateStatus(ctx, loan.ID, domain.LoanStatusActive)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("installment_id", unpaid.ID).
		Int32("loan_id", unpaid.LoanID).
		Int32("borrower_id", scope.borrower.ID).
		Int("reversed_transactions", reversed).
		Msg("Installment unpaid")

	s.publishEvent(scope.borrower.AgentID, websocket.InstallmentUnpaid(installmentPayload(unpaid, scope.borrower.ID)))

	return unpaid, nil
}

// GetInstallmentLedger returns an installment with its transactions
func (s *InstallmentService) GetInstallmentLedger(ctx context.Context, p domain.Principal, id int32) (*InstallmentLedger, error) {
	scope, err := loadInstallmentScope(ctx, s.store, p, id)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.Transactions().ListByInstallment(ctx, id)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	return &InstallmentLedger{Installment: scope.installment, Transactions: transactions}, nil
}

func installmentPayload(inst *domain.Installment, borrowerID int32) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            inst.ID,
		"loanId":        inst.LoanID,
		"borrowerId":    borrowerID,
		"status":        inst.Status,
		"amount":        inst.Amount.StringFixed(2),
		"extraAmount":   inst.ExtraAmount.StringFixed(2),
		"penaltyAmount": inst.PenaltyAmount.StringFixed(2),
		"dueAmount":     inst.DueAmount.StringFixed(2),
		"version":       inst.Version,
	}
	if inst.PaidAt != nil {
		payload["paidAt"] = inst.PaidAt.Format(time.RFC3339)
	}
	return payload
}
