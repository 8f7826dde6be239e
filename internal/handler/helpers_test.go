package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
	"github.com/microfin/ledger-backend/internal/testutil"
	"github.com/shopspring/decimal"
)

// testNow is the pinned handler clock: 2024-02-03 10:00 UTC
var testNow = time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// handlerFixture seeds an admin, two agents and one borrower with one loan
type handlerFixture struct {
	store        *testutil.MemoryStore
	admin        *domain.Principal
	agent        *domain.Principal
	otherAgent   *domain.Principal
	agentID      int32
	otherAgentID int32
	borrower     *domain.Borrower
	loan         *domain.Loan
	installments []*domain.Installment
}

// newHandlerFixture adds one installment per status, due on the first of
// consecutive months from 2024-01-01
func newHandlerFixture(t *testing.T, statuses ...domain.InstallmentStatus) *handlerFixture {
	t.Helper()

	store := testutil.NewMemoryStore()
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	adminUser := &domain.User{Auth0ID: "auth0|admin", Email: "admin@example.com", Name: "Admin", Role: domain.RoleAdmin, CreatedAt: created}
	agentUser := &domain.User{Auth0ID: "auth0|agent", Email: "agent@example.com", Name: "Agent", Role: domain.RoleAgent, CreatedAt: created}
	otherUser := &domain.User{Auth0ID: "auth0|other", Email: "other@example.com", Name: "Other", Role: domain.RoleAgent, CreatedAt: created}
	store.AddUser(adminUser)
	store.AddUser(agentUser)
	store.AddUser(otherUser)

	agent := &domain.Agent{UserID: agentUser.ID, CommissionRate: decimal.NewFromInt(2), CreatedAt: created}
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

	loan := &domain.Loan{BorrowerID: borrower.ID, PrincipalAmount: decimal.NewFromInt(1500), CreatedAt: created}
	store.AddLoan(loan)

	f := &handlerFixture{
		store:        store,
		admin:        &domain.Principal{UserID: adminUser.ID, Role: domain.RoleAdmin},
		agent:        &domain.Principal{UserID: agentUser.ID, Role: domain.RoleAgent, AgentID: &agent.ID},
		otherAgent:   &domain.Principal{UserID: otherUser.ID, Role: domain.RoleAgent, AgentID: &other.ID},
		agentID:      agent.ID,
		otherAgentID: other.ID,
		borrower:     borrower,
		loan:         loan,
	}

	for i, status := range statuses {
		due := time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		inst := &domain.Installment{
			LoanID:            loan.ID,
			DueDate:           due,
			InstallmentAmount: decimal.NewFromInt(500),
			DueAmount:         decimal.NewFromInt(500),
			Status:            status,
			CreatedAt:         created,
			UpdatedAt:         created,
		}
		if status == domain.InstallmentStatusPaid {
			paidAt := due
			inst.Amount = decimal.NewFromInt(500)
			inst.DueAmount = decimal.Zero
			inst.PaidAt = &paidAt
		}
		store.AddInstallment(inst)
		if status == domain.InstallmentStatusPaid {
			store.AddTransaction(&domain.Transaction{
				InstallmentID: inst.ID,
				Type:          domain.TransactionTypeInstallment,
				Amount:        decimal.NewFromInt(500),
				CreatedAt:     due,
			})
		}
		f.installments = append(f.installments, inst)
	}
	return f
}

// newContext builds an echo context for method/path with an optional JSON body
// and the principal stored the way Authenticate stores it
func newContext(method, target, body string, p *domain.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if p != nil {
		setPrincipal(c, p)
	}
	return c, rec
}

func setPrincipal(c echo.Context, p *domain.Principal) {
	ctx := context.WithValue(c.Request().Context(), middleware.PrincipalKey, p)
	c.SetRequest(c.Request().WithContext(ctx))
}

func withID(c echo.Context, id int32) {
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(id)))
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("Failed to unmarshal problem details: %v", err)
	}
	return problem
}

func (f *handlerFixture) installmentHandler() *InstallmentHandler {
	svc := service.NewInstallmentService(f.store, service.NewTransactionRecorder(), service.NewDailyPenaltyPolicy(decimal.NewFromInt(2), 0))
	return NewInstallmentHandler(svc, testClock)
}
