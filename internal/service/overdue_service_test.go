package service

import (
	"context"
	"testing"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOverdueSweep(t *testing.T) {
	f := newLedgerFixture(t,
		domain.InstallmentStatusPending, // due 2024-01-01
		domain.InstallmentStatusPaid,    // due 2024-02-01
		domain.InstallmentStatusPending, // due 2024-03-01, exactly asOf
		domain.InstallmentStatusPending, // due 2024-04-01
	)
	svc := NewOverdueService(f.store.Installments())

	count, err := svc.RunOverdueSweep(context.Background(), day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.InstallmentStatusOverdue, f.store.InstallmentByID(f.installments[0].ID).Status)
	assert.Equal(t, domain.InstallmentStatusPaid, f.store.InstallmentByID(f.installments[1].ID).Status)
	assert.Equal(t, domain.InstallmentStatusPending, f.store.InstallmentByID(f.installments[2].ID).Status, "due date equal to asOf is not late")
	assert.Equal(t, domain.InstallmentStatusPending, f.store.InstallmentByID(f.installments[3].ID).Status)

	overdue := f.store.InstallmentByID(f.installments[0].ID)
	assert.True(t, overdue.DueAmount.Equal(f.installments[0].DueAmount), "sweep must not touch amounts")
}

func TestRunOverdueSweep_Idempotent(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending, domain.InstallmentStatusPending)
	svc := NewOverdueService(f.store.Installments())
	asOf := day(2024, 6, 1)

	first, err := svc.RunOverdueSweep(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := svc.RunOverdueSweep(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestRunOverdueSweep_PaidBetweenRunsStaysPaid(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending, domain.InstallmentStatusPending)
	sweeper := NewOverdueService(f.store.Installments())
	payments := f.installmentService()
	ctx := context.Background()

	_, err := sweeper.RunOverdueSweep(ctx, day(2024, 1, 15))
	require.NoError(t, err)

	_, err = payments.PayInstallment(ctx, f.agent, f.installments[0].ID, PayInstallmentInput{
		Amount: f.installments[0].InstallmentAmount,
		At:     day(2024, 1, 20),
	})
	require.NoError(t, err)

	count, err := sweeper.RunOverdueSweep(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the second installment is still pending")
	assert.Equal(t, domain.InstallmentStatusPaid, f.store.InstallmentByID(f.installments[0].ID).Status)
}

// payAfterListRepo pays an installment between candidate selection and the conditional update
type payAfterListRepo struct {
	domain.InstallmentRepository
	afterList func()
}

func (r *payAfterListRepo) ListOverdueCandidateIDs(ctx context.Context, asOf time.Time) ([]int32, error) {
	ids, err := r.InstallmentRepository.ListOverdueCandidateIDs(ctx, asOf)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return ids, err
}

func TestRunOverdueSweep_LostRaceIsSkipped(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending)
	payments := f.installmentService()
	target := f.installments[0].ID

	repo := &payAfterListRepo{
		InstallmentRepository: f.store.Installments(),
		afterList: func() {
			_, err := payments.PayInstallment(context.Background(), f.admin, target, payInput(500))
			require.NoError(t, err)
		},
	}

	count, err := NewOverdueService(repo).RunOverdueSweep(context.Background(), day(2024, 6, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, count)
	assert.Equal(t, domain.InstallmentStatusPaid, f.store.InstallmentByID(target).Status)
	assertPaidInvariant(t, f.store)
}

func TestRunOverdueSweep_RequiresTime(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := NewOverdueService(f.store.Installments()).RunOverdueSweep(context.Background(), time.Time{})
	assert.ErrorIs(t, err, domain.ErrTimestampRequired)
}

func TestTriggerSweep(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending)
	svc := NewOverdueService(f.store.Installments())
	publisher := &recordingPublisher{}
	svc.SetEventPublisher(publisher)

	_, err := svc.TriggerSweep(context.Background(), f.agent, day(2024, 6, 1))
	assert.ErrorIs(t, err, domain.ErrAdminRequired)
	assert.Equal(t, domain.InstallmentStatusPending, f.store.InstallmentByID(f.installments[0].ID).Status)

	result, err := svc.TriggerSweep(context.Background(), f.admin, day(2024, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Transitions)
	assert.Equal(t, []int32{0}, publisher.channelsFor("overdue.swept"))
}
