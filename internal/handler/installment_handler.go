package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
	"github.com/shopspring/decimal"
)

// InstallmentHandler handles installment payment requests
type InstallmentHandler struct {
	installmentService *service.InstallmentService
	clock              service.Clock
}

// NewInstallmentHandler creates a new InstallmentHandler
func NewInstallmentHandler(installmentService *service.InstallmentService, clock service.Clock) *InstallmentHandler {
	return &InstallmentHandler{installmentService: installmentService, clock: clock}
}

// PayInstallmentRequest represents the pay installment request body
type PayInstallmentRequest struct {
	Amount      string  `json:"amount"`
	ExtraAmount *string `json:"extraAmount,omitempty"`
	Notes       *string `json:"notes,omitempty"`
	PaidAt      *string `json:"paidAt,omitempty"` // RFC 3339; defaults to now
}

// InstallmentResponse represents an installment in API responses
type InstallmentResponse struct {
	ID                int32   `json:"id"`
	LoanID            int32   `json:"loanId"`
	DueDate           string  `json:"dueDate"`
	InstallmentAmount string  `json:"installmentAmount"`
	Amount            string  `json:"amount"`
	ExtraAmount       string  `json:"extraAmount"`
	PenaltyAmount     string  `json:"penaltyAmount"`
	DueAmount         string  `json:"dueAmount"`
	Status            string  `json:"status"`
	PaidAt            *string `json:"paidAt,omitempty"`
	Version           int32   `json:"version"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// InstallmentLedgerResponse is an installment with its transactions
type InstallmentLedgerResponse struct {
	InstallmentResponse
	Transactions []TransactionResponse `json:"transactions"`
}

// PayInstallment godoc
// @Summary Pay an installment
// @Description Marks a PENDING or OVERDUE installment PAID and records one INSTALLMENT transaction. Closes the loan when every installment is paid.
// @Tags installments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Installment ID"
// @Param request body PayInstallmentRequest true "Payment request"
// @Success 200 {object} InstallmentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /installments/{id}/pay [post]
func (h *InstallmentHandler) PayInstallment(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid installment ID", nil)
	}

	var req PayInstallmentRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Invalid amount", []ValidationError{
			{Field: "amount", Message: "Must be a valid decimal number"},
		})
	}

	extra := decimal.Zero
	if req.ExtraAmount != nil && *req.ExtraAmount != "" {
		extra, err = decimal.NewFromString(*req.ExtraAmount)
		if err != nil {
			return NewValidationError(c, "Invalid extra amount", []ValidationError{
				{Field: "extraAmount", Message: "Must be a valid decimal number"},
			})
		}
	}

	paidAt := h.clock()
	if req.PaidAt != nil && *req.PaidAt != "" {
		paidAt, err = time.Parse(time.RFC3339, *req.PaidAt)
		if err != nil {
			return NewValidationError(c, "Invalid payment time", []ValidationError{
				{Field: "paidAt", Message: "Must be an RFC 3339 timestamp"},
			})
		}
	}

	inst, err := h.installmentService.PayInstallment(c.Request().Context(), *principal, id, service.PayInstallmentInput{
		Amount:      amount,
		ExtraAmount: extra,
		Notes:       req.Notes,
		At:          paidAt,
	})
	if err != nil {
		return handleServiceError(c, err, "pay installment")
	}

	return c.JSON(http.StatusOK, toInstallmentResponse(inst))
}

// UnpayInstallment godoc
// @Summary Reverse an installment payment
// @Description Returns a PAID installment to PENDING, deletes its INSTALLMENT transactions and reopens a closed loan
// @Tags installments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Installment ID"
// @Success 200 {object} InstallmentResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /installments/{id}/unpay [post]
func (h *InstallmentHandler) UnpayInstallment(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid installment ID", nil)
	}

	inst, err := h.installmentService.UnpayInstallment(c.Request().Context(), *principal, id, h.clock())
	if err != nil {
		return handleServiceError(c, err, "unpay installment")
	}

	return c.JSON(http.StatusOK, toInstallmentResponse(inst))
}

// GetInstallment godoc
// @Summary Get an installment
// @Description Get an installment with its transaction ledger
// @Tags installments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Installment ID"
// @Success 200 {object} InstallmentLedgerResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /installments/{id} [get]
func (h *InstallmentHandler) GetInstallment(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid installment ID", nil)
	}

	ledger, err := h.installmentService.GetInstallmentLedger(c.Request().Context(), *principal, id)
	if err != nil {
		return handleServiceError(c, err, "get installment")
	}

	response := InstallmentLedgerResponse{
		InstallmentResponse: toInstallmentResponse(ledger.Installment),
		Transactions:        make([]TransactionResponse, len(ledger.Transactions)),
	}
	for i, t := range ledger.Transactions {
		response.Transactions[i] = toTransactionResponse(t)
	}
	return c.JSON(http.StatusOK, response)
}

func toInstallmentResponse(inst *domain.Installment) InstallmentResponse {
	var paidAt *string
	if inst.PaidAt != nil {
		s := inst.PaidAt.UTC().Format(time.RFC3339)
		paidAt = &s
	}
	return InstallmentResponse{
		ID:                inst.ID,
		LoanID:            inst.LoanID,
		DueDate:           inst.DueDate.Format("2006-01-02"),
		InstallmentAmount: inst.InstallmentAmount.StringFixed(2),
		Amount:            inst.Amount.StringFixed(2),
		ExtraAmount:       inst.ExtraAmount.StringFixed(2),
		PenaltyAmount:     inst.PenaltyAmount.StringFixed(2),
		DueAmount:         inst.DueAmount.StringFixed(2),
		Status:            string(inst.Status),
		PaidAt:            paidAt,
		Version:           inst.Version,
		CreatedAt:         inst.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         inst.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
