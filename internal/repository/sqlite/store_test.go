package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var seededAt = day(2023, 12, 1)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func exec(t *testing.T, s *Store, query string, args ...any) int32 {
	t.Helper()
	res, err := s.DB().Exec(query, args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return int32(id)
}

func seedUser(t *testing.T, s *Store, auth0ID string, role domain.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	exec(t, s, `INSERT INTO users (id, auth0_id, email, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), auth0ID, auth0ID+"@example.com", auth0ID, string(role), formatTime(seededAt))
	return id
}

func seedAgent(t *testing.T, s *Store, userID uuid.UUID) int32 {
	t.Helper()
	return exec(t, s, `INSERT INTO agents (user_id, commission_rate, created_at) VALUES (?, ?, ?)`,
		userID.String(), "2.50", formatTime(seededAt))
}

func seedBorrower(t *testing.T, s *Store, agentID *int32) int32 {
	t.Helper()
	return exec(t, s, `INSERT INTO borrowers (name, phone, agent_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"Siti", "0812", agentID, formatTime(seededAt), formatTime(seededAt))
}

func seedLoan(t *testing.T, s *Store, borrowerID int32) int32 {
	t.Helper()
	return exec(t, s, `INSERT INTO loans (borrower_id, principal_amount, created_at) VALUES (?, ?, ?)`,
		borrowerID, "1500.00", formatTime(seededAt))
}

func seedInstallment(t *testing.T, s *Store, loanID int32, due time.Time) int32 {
	t.Helper()
	return exec(t, s, `INSERT INTO installments (loan_id, due_date, installment_amount, due_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		loanID, formatDate(due), "500.00", "500.00", formatTime(seededAt), formatTime(seededAt))
}

type seeded struct {
	admin, agent domain.Principal
	agentID      int32
	otherAgentID int32
	borrowerID   int32
	loanID       int32
	installments []int32
}

func seed(t *testing.T, s *Store) seeded {
	t.Helper()
	adminID := seedUser(t, s, "auth0|admin", domain.RoleAdmin)
	agentUser := seedUser(t, s, "auth0|agent", domain.RoleAgent)
	otherUser := seedUser(t, s, "auth0|other", domain.RoleAgent)
	agentID := seedAgent(t, s, agentUser)
	otherAgentID := seedAgent(t, s, otherUser)
	borrowerID := seedBorrower(t, s, &agentID)
	loanID := seedLoan(t, s, borrowerID)

	var installments []int32
	for m := time.January; m <= time.March; m++ {
		installments = append(installments, seedInstallment(t, s, loanID, day(2024, m, 1)))
	}

	return seeded{
		admin:        domain.Principal{UserID: adminID, Role: domain.RoleAdmin},
		agent:        domain.Principal{UserID: agentUser, Role: domain.RoleAgent, AgentID: &agentID},
		agentID:      agentID,
		otherAgentID: otherAgentID,
		borrowerID:   borrowerID,
		loanID:       loanID,
		installments: installments,
	}
}

func TestNew_MigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := New(path)
	require.NoError(t, err)
	seedUser(t, s, "auth0|admin", domain.RoleAdmin)
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	user, err := reopened.Users().GetByAuth0ID(context.Background(), "auth0|admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}

func TestUsersAndAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	user, err := s.Users().GetByID(ctx, f.agent.UserID)
	require.NoError(t, err)
	assert.Equal(t, "auth0|agent", user.Auth0ID)
	assert.Equal(t, seededAt, user.CreatedAt)

	agent, err := s.Agents().GetByUserID(ctx, f.agent.UserID)
	require.NoError(t, err)
	assert.Equal(t, f.agentID, agent.ID)
	assert.True(t, agent.CommissionRate.Equal(decimal.RequireFromString("2.5")))

	_, err = s.Users().GetByAuth0ID(ctx, "auth0|missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.Agents().GetByUserID(ctx, f.admin.UserID)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	_, err = s.Agents().GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInstallmentRepository_ReadsAndOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	inst, err := s.Installments().GetByID(ctx, f.installments[0])
	require.NoError(t, err)
	assert.Equal(t, day(2024, 1, 1), inst.DueDate)
	assert.Equal(t, domain.InstallmentStatusPending, inst.Status)
	assert.True(t, inst.InstallmentAmount.Equal(decimal.NewFromInt(500)))
	assert.True(t, inst.Amount.IsZero())
	assert.Nil(t, inst.PaidAt)
	assert.Equal(t, int32(1), inst.Version)

	byLoan, err := s.Installments().ListByLoan(ctx, f.loanID)
	require.NoError(t, err)
	require.Len(t, byLoan, 3)
	for i := 1; i < len(byLoan); i++ {
		assert.True(t, byLoan[i-1].DueDate.Before(byLoan[i].DueDate))
	}

	byBorrower, err := s.Installments().ListByBorrower(ctx, f.borrowerID)
	require.NoError(t, err)
	assert.Len(t, byBorrower, 3)

	_, err = s.Installments().GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)
}

func TestInstallmentRepository_UpdateIsVersionGuarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	inst, err := s.Installments().GetByID(ctx, f.installments[0])
	require.NoError(t, err)

	paidAt := day(2024, 1, 3)
	require.NoError(t, inst.ApplyPayment(decimal.NewFromInt(500), decimal.NewFromInt(5), decimal.RequireFromString("1.50"), paidAt))

	updated, err := s.Installments().Update(ctx, inst, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), updated.Version)
	assert.Equal(t, domain.InstallmentStatusPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, paidAt, *updated.PaidAt)
	assert.True(t, updated.PenaltyAmount.Equal(decimal.RequireFromString("1.5")))

	_, err = s.Installments().Update(ctx, inst, 1)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.ErrorIs(t, err, domain.ErrConflict)

	inst.ID = 999
	_, err = s.Installments().Update(ctx, inst, 2)
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)
}

func TestInstallmentRepository_PaidRequiresTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	inst, err := s.Installments().GetByID(ctx, f.installments[0])
	require.NoError(t, err)
	inst.Status = domain.InstallmentStatusPaid
	inst.PaidAt = nil

	_, err = s.Installments().Update(ctx, inst, inst.Version)
	assert.Error(t, err, "schema rejects PAID without paid_at")
}

func TestInstallmentRepository_OverdueSweepQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	// Due 2024-02-01 is not late at exactly that instant
	asOf := day(2024, 2, 1)
	ids, err := s.Installments().ListOverdueCandidateIDs(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, []int32{f.installments[0]}, ids)

	ids, err = s.Installments().ListOverdueCandidateIDs(ctx, asOf.Add(time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, f.installments[:2], ids)

	changed, err := s.Installments().MarkOverdue(ctx, f.installments[0], asOf)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Installments().MarkOverdue(ctx, f.installments[0], asOf)
	require.NoError(t, err)
	assert.False(t, changed, "already overdue")

	changed, err = s.Installments().MarkOverdue(ctx, f.installments[1], asOf)
	require.NoError(t, err)
	assert.False(t, changed, "not yet late")

	inst, err := s.Installments().GetByID(ctx, f.installments[0])
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentStatusOverdue, inst.Status)
	assert.Equal(t, int32(2), inst.Version)
}

func TestTransactionRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	otherBorrower := seedBorrower(t, s, &f.otherAgentID)
	otherLoan := seedLoan(t, s, otherBorrower)
	otherInst := seedInstallment(t, s, otherLoan, day(2024, 1, 1))

	notes := "cash"
	at := day(2024, 1, 5).Add(10 * time.Hour)
	created, err := s.Transactions().Create(ctx, &domain.Transaction{
		InstallmentID: f.installments[0],
		Type:          domain.TransactionTypeInstallment,
		Amount:        decimal.RequireFromString("500.00"),
		Notes:         &notes,
		CreatedAt:     at,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	require.NotNil(t, created.Notes)
	assert.Equal(t, notes, *created.Notes)
	assert.Equal(t, at, created.CreatedAt)

	_, err = s.Transactions().Create(ctx, &domain.Transaction{
		InstallmentID: otherInst,
		Type:          domain.TransactionTypeInstallment,
		Amount:        decimal.NewFromInt(500),
		CreatedAt:     at.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = s.Transactions().Create(ctx, &domain.Transaction{
		InstallmentID: 999,
		Type:          domain.TransactionTypeInstallment,
		Amount:        decimal.NewFromInt(1),
		CreatedAt:     at,
	})
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)

	from, to := day(2024, 1, 5), day(2024, 1, 6)
	all, err := s.Transactions().ListCreatedBetween(ctx, nil, from, to)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.Transactions().ListCreatedBetween(ctx, &f.agentID, from, to)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	none, err := s.Transactions().ListCreatedBetween(ctx, nil, to, to.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := s.Transactions().DeleteByInstallmentAndType(ctx, f.installments[0], domain.TransactionTypeInstallment)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.Transactions().ListByInstallment(ctx, f.installments[0])
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBorrowerRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	unassigned := seedBorrower(t, s, nil)
	seedInstallment(t, s, seedLoan(t, s, unassigned), day(2024, 2, 1))

	borrower, err := s.Borrowers().GetByID(ctx, unassigned)
	require.NoError(t, err)
	assert.Nil(t, borrower.AgentID)

	due, err := s.Borrowers().ListWithUnpaidDueBetween(ctx, nil, day(2024, 2, 1), day(2024, 2, 2))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	due, err = s.Borrowers().ListWithUnpaidDueBetween(ctx, &f.agentID, day(2024, 2, 1), day(2024, 2, 2))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, f.borrowerID, due[0].ID)

	at := day(2024, 3, 1)
	updated, err := s.Borrowers().UpdateAgent(ctx, f.borrowerID, f.otherAgentID, at)
	require.NoError(t, err)
	require.NotNil(t, updated.AgentID)
	assert.Equal(t, f.otherAgentID, *updated.AgentID)
	assert.Equal(t, at, updated.UpdatedAt)
	assert.Equal(t, "Siti", updated.Name)

	_, err = s.Borrowers().UpdateAgent(ctx, f.borrowerID, 999, at)
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)

	_, err = s.Borrowers().UpdateAgent(ctx, 999, f.agentID, at)
	assert.ErrorIs(t, err, domain.ErrBorrowerNotFound)
}

func TestLoanRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	loan, err := s.Loans().GetByIDForUpdate(ctx, f.loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.True(t, loan.PrincipalAmount.Equal(decimal.NewFromInt(1500)))

	require.NoError(t, s.Loans().UpdateStatus(ctx, f.loanID, domain.LoanStatusClosed))
	loan, err = s.Loans().GetByID(ctx, f.loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusClosed, loan.Status)

	assert.ErrorIs(t, s.Loans().UpdateStatus(ctx, 999, domain.LoanStatusClosed), domain.ErrLoanNotFound)
	assert.ErrorIs(t, s.Loans().Delete(ctx, 999), domain.ErrLoanNotFound)

	assert.Error(t, s.Loans().Delete(ctx, f.loanID), "installments still reference the loan")
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx domain.Repositories) error {
		if _, err := tx.Transactions().DeleteByLoan(ctx, f.loanID); err != nil {
			return err
		}
		if _, err := tx.Installments().DeleteByLoan(ctx, f.loanID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	installments, err := s.Installments().ListByLoan(ctx, f.loanID)
	require.NoError(t, err)
	assert.Len(t, installments, 3)
}

func TestLedgerOperations_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	installments := service.NewInstallmentService(s, service.NewTransactionRecorder(),
		service.NewDailyPenaltyPolicy(decimal.NewFromInt(2), 0))
	loans := service.NewLoanService(s)

	for i, id := range f.installments {
		paid, err := installments.PayInstallment(ctx, f.agent, id, service.PayInstallmentInput{
			Amount: decimal.NewFromInt(500),
			At:     day(2024, time.Month(i+1), 3),
		})
		require.NoError(t, err)
		assert.True(t, paid.PenaltyAmount.Equal(decimal.NewFromInt(4)), "two full days late")
	}

	loan, err := s.Loans().GetByID(ctx, f.loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusClosed, loan.Status)

	_, err = loans.DeleteLoan(ctx, f.admin, f.loanID)
	assert.ErrorIs(t, err, domain.ErrLoanHasPaidInstallments)

	for _, id := range f.installments {
		_, err := installments.UnpayInstallment(ctx, f.agent, id, day(2024, 4, 1))
		require.NoError(t, err)

		ledger, err := installments.GetInstallmentLedger(ctx, f.agent, id)
		require.NoError(t, err)
		assert.Empty(t, ledger.Transactions)
		assert.Equal(t, int32(3), ledger.Installment.Version)
	}

	loan, err = s.Loans().GetByID(ctx, f.loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)

	result, err := loans.DeleteLoan(ctx, f.admin, f.loanID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.DeletedInstallments)
	assert.Equal(t, 0, result.DeletedTransactions)

	_, err = s.Loans().GetByID(ctx, f.loanID)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}

func TestOverdueSweep_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	sweeper := service.NewOverdueService(s.Installments())

	count, err := sweeper.RunOverdueSweep(ctx, day(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = sweeper.RunOverdueSweep(ctx, day(2024, 2, 15))
	require.NoError(t, err)
	assert.Zero(t, count)

	actions, err := service.NewBorrowerService(s, service.SystemClock).GetNextActions(ctx, f.agent, f.borrowerID)
	require.NoError(t, err)
	assert.Equal(t, f.installments[2], actions.Next.ID)
	assert.Len(t, actions.Overdue, 2)
}
