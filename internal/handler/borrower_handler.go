package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
)

// BorrowerHandler handles borrower-related HTTP requests
type BorrowerHandler struct {
	borrowerService *service.BorrowerService
	clock           service.Clock
}

// NewBorrowerHandler creates a new BorrowerHandler
func NewBorrowerHandler(borrowerService *service.BorrowerService, clock service.Clock) *BorrowerHandler {
	return &BorrowerHandler{borrowerService: borrowerService, clock: clock}
}

// ReassignBorrowerRequest represents the reassign borrower request body
type ReassignBorrowerRequest struct {
	AgentID int32 `json:"agentId"`
}

// BorrowerResponse represents a borrower in API responses
type BorrowerResponse struct {
	ID             int32  `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	AgentID        *int32 `json:"agentId,omitempty"`
	GuarantorName  string `json:"guarantorName"`
	GuarantorPhone string `json:"guarantorPhone"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// NextInstallmentsResponse is what a collector should pursue next for a borrower
type NextInstallmentsResponse struct {
	Next    InstallmentResponse   `json:"next"`
	Overdue []InstallmentResponse `json:"overdue"`
}

// ReassignBorrower godoc
// @Summary Reassign a borrower
// @Description Moves a borrower to another agent (admin only)
// @Tags borrowers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Borrower ID"
// @Param request body ReassignBorrowerRequest true "Reassignment request"
// @Success 200 {object} BorrowerResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /borrowers/{id}/agent [put]
func (h *BorrowerHandler) ReassignBorrower(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid borrower ID", nil)
	}

	var req ReassignBorrowerRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	borrower, err := h.borrowerService.ReassignBorrower(c.Request().Context(), *principal, id, req.AgentID)
	if err != nil {
		return handleServiceError(c, err, "reassign borrower")
	}

	return c.JSON(http.StatusOK, toBorrowerResponse(borrower))
}

// GetNextInstallments godoc
// @Summary Get a borrower's next installments
// @Description Returns the earliest unpaid installment and every overdue one
// @Tags borrowers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Borrower ID"
// @Success 200 {object} NextInstallmentsResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /borrowers/{id}/next-installments [get]
func (h *BorrowerHandler) GetNextInstallments(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid borrower ID", nil)
	}

	actions, err := h.borrowerService.GetNextActions(c.Request().Context(), *principal, id)
	if err != nil {
		return handleServiceError(c, err, "get next installments")
	}

	response := NextInstallmentsResponse{
		Next:    toInstallmentResponse(actions.Next),
		Overdue: make([]InstallmentResponse, len(actions.Overdue)),
	}
	for i, inst := range actions.Overdue {
		response.Overdue[i] = toInstallmentResponse(inst)
	}
	return c.JSON(http.StatusOK, response)
}

// GetBorrowersDue godoc
// @Summary List borrowers due on a day
// @Description Borrowers with an unpaid installment due on the given UTC day. Agents only see their own borrowers.
// @Tags borrowers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param date query string false "Day (YYYY-MM-DD), defaults to today UTC"
// @Success 200 {array} BorrowerResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /borrowers/due [get]
func (h *BorrowerHandler) GetBorrowersDue(c echo.Context) error {
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

	borrowers, err := h.borrowerService.ListBorrowersDueOn(c.Request().Context(), *principal, day)
	if err != nil {
		return handleServiceError(c, err, "list due borrowers")
	}

	response := make([]BorrowerResponse, len(borrowers))
	for i, b := range borrowers {
		response[i] = toBorrowerResponse(b)
	}
	return c.JSON(http.StatusOK, response)
}

func toBorrowerResponse(b *domain.Borrower) BorrowerResponse {
	return BorrowerResponse{
		ID:             b.ID,
		Name:           b.Name,
		Phone:          b.Phone,
		AgentID:        b.AgentID,
		GuarantorName:  b.GuarantorName,
		GuarantorPhone: b.GuarantorPhone,
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
