package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
)

// TransactionHandler handles transaction read requests
type TransactionHandler struct {
	transactionService *service.TransactionService
	clock              service.Clock
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *service.TransactionService, clock service.Clock) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, clock: clock}
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID            int32   `json:"id"`
	InstallmentID int32   `json:"installmentId"`
	Type          string  `json:"type"`
	Amount        string  `json:"amount"`
	Notes         *string `json:"notes,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// GetTransactions godoc
// @Summary List transactions for a day
// @Description Transactions created on the given UTC day, oldest first. Agents only see their own borrowers.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param date query string false "Day (YYYY-MM-DD), defaults to today UTC"
// @Success 200 {array} TransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /transactions [get]
func (h *TransactionHandler) GetTransactions(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	day, ok := parseDayParam(c, h.clock)
	if !ok {
		return NewValidationError(c, "Invalid date", []ValidationError{
			{Field: "date", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	transactions, err := h.transactionService.ListTransactionsOn(c.Request().Context(), *principal, day)
	if err != nil {
		return handleServiceError(c, err, "list transactions")
	}

	response := make([]TransactionResponse, len(transactions))
	for i, t := range transactions {
		response[i] = toTransactionResponse(t)
	}
	return c.JSON(http.StatusOK, response)
}

// parseDayParam reads the optional ?date= query parameter
func parseDayParam(c echo.Context, clock service.Clock) (time.Time, bool) {
	raw := c.QueryParam("date")
	if raw == "" {
		return clock(), true
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		InstallmentID: t.InstallmentID,
		Type:          string(t.Type),
		Amount:        t.Amount.StringFixed(2),
		Notes:         t.Notes,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
