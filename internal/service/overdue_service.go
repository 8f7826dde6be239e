package service

import (
	"context"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// OverdueService reclassifies late PENDING installments as OVERDUE
type OverdueService struct {
	installmentRepo domain.InstallmentRepository
	eventPublisher  websocket.EventPublisher
}

// NewOverdueService creates a new OverdueService
func NewOverdueService(installmentRepo domain.InstallmentRepository) *OverdueService {
	return &OverdueService{installmentRepo: installmentRepo}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *OverdueService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// SweepResult is the outcome of one overdue sweep
type SweepResult struct {
	AsOf        time.Time `json:"asOf"`
	Candidates  int       `json:"candidates"`
	Transitions int       `json:"transitions"`
}

// RunOverdueSweep marks every PENDING installment due strictly before asOf as
// OVERDUE and returns how many changed. Each write is conditional on the row
// still being PENDING, so an installment paid after selection is skipped.
func (s *OverdueService) RunOverdueSweep(ctx context.Context, asOf time.Time) (int, error) {
	result, err := s.sweep(ctx, asOf)
	if err != nil {
		return 0, err
	}
	return result.Transitions, nil
}

// TriggerSweep runs the sweep on behalf of an admin
func (s *OverdueService) TriggerSweep(ctx context.Context, p domain.Principal, asOf time.Time) (*SweepResult, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.sweep(ctx, asOf)
}

func (s *OverdueService) sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	if asOf.IsZero() {
		return nil, domain.ErrTimestampRequired
	}

	ids, err := s.installmentRepo.ListOverdueCandidateIDs(ctx, asOf)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{AsOf: asOf, Candidates: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := s.installmentRepo.MarkOverdue(ctx, id, asOf)
		if err != nil {
			log.Error().Err(err).Int32("installment_id", id).Msg("Failed to mark installment overdue")
			return nil, err
		}
		if changed {
			result.Transitions++
		}
	}

	if result.Transitions > 0 {
		log.Info().
			Time("as_of", asOf).
			Int("candidates", result.Candidates).
			Int("transitions", result.Transitions).
			Msg("Overdue sweep completed")
		if s.eventPublisher != nil {
			s.eventPublisher.Publish(websocket.AdminChannel, websocket.OverdueSwept(result))
		}
	}

	return result, nil
}
