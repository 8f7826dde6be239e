package service

import (
	"sync"
	"testing"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/testutil"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ledgerFixture is one agent-owned borrower with one loan, plus a second agent
type ledgerFixture struct {
	store        *testutil.MemoryStore
	admin        domain.Principal
	agent        domain.Principal
	otherAgent   domain.Principal
	agentID      int32
	otherAgentID int32
	borrower     *domain.Borrower
	loan         *domain.Loan
	installments []*domain.Installment
}

// newLedgerFixture seeds one installment per status, due on the first of
// consecutive months starting 2024-01-01. PAID installments get a transaction.
func newLedgerFixture(t *testing.T, statuses ...domain.InstallmentStatus) *ledgerFixture {
	t.Helper()

	store := testutil.NewMemoryStore()
	created := day(2023, 12, 1)

	adminUser := &domain.User{Auth0ID: "auth0|admin", Email: "admin@example.com", Name: "Admin", Role: domain.RoleAdmin, CreatedAt: created}
	agentUser := &domain.User{Auth0ID: "auth0|agent", Email: "agent@example.com", Name: "Agent", Role: domain.RoleAgent, CreatedAt: created}
	otherUser := &domain.User{Auth0ID: "auth0|other", Email: "other@example.com", Name: "Other", Role: domain.RoleAgent, CreatedAt: created}
	store.AddUser(adminUser)
	store.AddUser(agentUser)
	store.AddUser(otherUser)

	agent := &domain.Agent{UserID: agentUser.ID, CommissionRate: decimal.NewFromFloat(2.5), CreatedAt: created}
	other := &domain.Agent{UserID: otherUser.ID, CommissionRate: decimal.NewFromInt(3), CreatedAt: created}
	store.AddAgent(agent)
	store.AddAgent(other)

	borrower := &domain.Borrower{
		Name:           "Siti",
		Phone:          "0812000111",
		AgentID:        &agent.ID,
		GuarantorName:  "Budi",
		GuarantorPhone: "0812000222",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	store.AddBorrower(borrower)

	loan := &domain.Loan{BorrowerID: borrower.ID, PrincipalAmount: decimal.NewFromInt(3000), CreatedAt: created}
	store.AddLoan(loan)

	f := &ledgerFixture{
		store:        store,
		admin:        domain.Principal{UserID: adminUser.ID, Role: domain.RoleAdmin},
		agent:        domain.Principal{UserID: agentUser.ID, Role: domain.RoleAgent, AgentID: &agent.ID},
		otherAgent:   domain.Principal{UserID: otherUser.ID, Role: domain.RoleAgent, AgentID: &other.ID},
		agentID:      agent.ID,
		otherAgentID: other.ID,
		borrower:     borrower,
		loan:         loan,
	}

	for i, status := range statuses {
		f.installments = append(f.installments, f.addInstallment(day(2024, time.Month(i+1), 1), status))
	}
	return f
}

func (f *ledgerFixture) addInstallment(due time.Time, status domain.InstallmentStatus) *domain.Installment {
	inst := &domain.Installment{
		LoanID:            f.loan.ID,
		DueDate:           due,
		InstallmentAmount: decimal.NewFromInt(500),
		DueAmount:         decimal.NewFromInt(500),
		Status:            status,
		CreatedAt:         f.loan.CreatedAt,
		UpdatedAt:         f.loan.CreatedAt,
	}
	if status == domain.InstallmentStatusPaid {
		paidAt := due
		inst.Amount = decimal.NewFromInt(500)
		inst.DueAmount = decimal.Zero
		inst.PaidAt = &paidAt
	}
	f.store.AddInstallment(inst)

	if status == domain.InstallmentStatusPaid {
		f.store.AddTransaction(&domain.Transaction{
			InstallmentID: inst.ID,
			Type:          domain.TransactionTypeInstallment,
			Amount:        decimal.NewFromInt(500),
			CreatedAt:     due,
		})
	}
	return inst
}

func (f *ledgerFixture) installmentService() *InstallmentService {
	return NewInstallmentService(f.store, NewTransactionRecorder(), nil)
}

// assertPaidInvariant checks PAID <=> (at least one INSTALLMENT transaction and paidAt set)
func assertPaidInvariant(t *testing.T, store *testutil.MemoryStore) {
	t.Helper()
	snap := store.Snapshot()
	for id, inst := range snap.Installments {
		count := 0
		for _, tx := range store.TransactionsFor(id) {
			if tx.Type == domain.TransactionTypeInstallment {
				count++
			}
		}
		paid := inst.Status == domain.InstallmentStatusPaid
		assert.Equal(t, paid, count >= 1 && inst.PaidAt != nil, "installment %d: status %s, %d transactions", id, inst.Status, count)
	}
}

type publishedEvent struct {
	channel int32
	event   websocket.Event
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(channel int32, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel: channel, event: event})
}

func (p *recordingPublisher) channelsFor(eventType string) []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var channels []int32
	for _, e := range p.events {
		if e.event.Type == eventType {
			channels = append(channels, e.channel)
		}
	}
	return channels
}

func strPtr(s string) *string {
	return &s
}
