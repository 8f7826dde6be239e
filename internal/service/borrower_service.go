package service

import (
	"context"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// BorrowerService handles borrower assignment and collector read paths
type BorrowerService struct {
	store          domain.Store
	clock          Clock
	eventPublisher websocket.EventPublisher
}

// NewBorrowerService creates a new BorrowerService
func NewBorrowerService(store domain.Store, clock Clock) *BorrowerService {
	if clock == nil {
		clock = SystemClock
	}
	return &BorrowerService{store: store, clock: clock}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *BorrowerService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

func (s *BorrowerService) publishEvent(channels []int32, event websocket.Event) {
	if s.eventPublisher != nil {
		websocket.PublishAll(s.eventPublisher, channels, event)
	}
}

// ReassignBorrower points the borrower at a different agent. Loans, installments
// and transactions are left alone.
func (s *BorrowerService) ReassignBorrower(ctx context.Context, p domain.Principal, borrowerID, agentID int32) (*domain.Borrower, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	if agentID <= 0 {
		return nil, domain.ErrAgentIDRequired
	}

	var previous *int32
	var updated *domain.Borrower
	err := s.store.RunInTx(ctx, func(tx domain.Repositories) error {
		borrower, err := tx.Borrowers().GetByID(ctx, borrowerID)
		if err != nil {
			return err
		}
		if _, err := tx.Agents().GetByID(ctx, agentID); err != nil {
			return err
		}
		previous = borrower.AgentID

		updated, err = tx.Borrowers().UpdateAgent(ctx, borrowerID, agentID, s.clock())
		return err
	})
	if err != nil {
		return nil, err
	}

	event := log.Info().
		Int32("borrower_id", borrowerID).
		Int32("agent_id", agentID)
	if previous != nil {
		event = event.Int32("previous_agent_id", *previous)
	}
	event.Msg("Borrower reassigned")

	channels := websocket.ChannelsFor(&agentID)
	if previous != nil && *previous != agentID {
		channels = append(channels, *previous)
	}
	s.publishEvent(channels, websocket.BorrowerReassigned(map[string]interface{}{
		"borrowerId":      borrowerID,
		"agentId":         agentID,
		"previousAgentId": previous,
	}))

	return updated, nil
}

// GetNextActions returns the earliest PENDING installment and every OVERDUE one for a borrower.
// domain.ErrNoPendingInstallment is returned when nothing is PENDING.
func (s *BorrowerService) GetNextActions(ctx context.Context, p domain.Principal, borrowerID int32) (*domain.NextActions, error) {
	if _, err := loadBorrower(ctx, s.store, p, borrowerID); err != nil {
		return nil, err
	}

	installments, err := s.store.Installments().ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return domain.SelectNextActions(installments)
}

// ListBorrowersDueOn returns borrowers with an unpaid installment due on the UTC day of day.
// Agents only see their own borrowers.
func (s *BorrowerService) ListBorrowersDueOn(ctx context.Context, p domain.Principal, day time.Time) ([]*domain.Borrower, error) {
	if day.IsZero() {
		return nil, domain.ErrTimestampRequired
	}
	from, to := dayBounds(day)

	borrowers, err := s.store.Borrowers().ListWithUnpaidDueBetween(ctx, p.AgentScope(), from, to)
	if err != nil {
		return nil, err
	}
	if borrowers == nil {
		borrowers = []*domain.Borrower{}
	}
	return borrowers, nil
}
