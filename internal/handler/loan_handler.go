package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
)

// LoanHandler handles loan-related HTTP requests
type LoanHandler struct {
	loanService *service.LoanService
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loanService *service.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// CanDeleteLoanResponse reports whether a loan may be deleted
type CanDeleteLoanResponse struct {
	CanDelete bool `json:"canDelete"`
}

// DeleteLoanResponse reports what a loan deletion removed
type DeleteLoanResponse struct {
	LoanID              int32 `json:"loanId"`
	DeletedInstallments int   `json:"deletedInstallments"`
	DeletedTransactions int   `json:"deletedTransactions"`
}

// CanDeleteLoan godoc
// @Summary Check whether a loan can be deleted
// @Description A loan can be deleted while none of its installments is PAID
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} CanDeleteLoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /loans/{id}/can-delete [get]
func (h *LoanHandler) CanDeleteLoan(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	canDelete, err := h.loanService.CanDeleteLoan(c.Request().Context(), *principal, id)
	if err != nil {
		return handleServiceError(c, err, "check loan deletion")
	}

	return c.JSON(http.StatusOK, CanDeleteLoanResponse{CanDelete: canDelete})
}

// DeleteLoan godoc
// @Summary Delete a loan
// @Description Deletes a loan with its installments and transactions. Refused once any installment is PAID (admin only)
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} DeleteLoanResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /loans/{id} [delete]
func (h *LoanHandler) DeleteLoan(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	id, ok := parseID(c, "id")
	if !ok {
		return NewValidationError(c, "Invalid loan ID", nil)
	}

	result, err := h.loanService.DeleteLoan(c.Request().Context(), *principal, id)
	if err != nil {
		return handleServiceError(c, err, "delete loan")
	}

	return c.JSON(http.StatusOK, DeleteLoanResponse{
		LoanID:              result.LoanID,
		DeletedInstallments: result.DeletedInstallments,
		DeletedTransactions: result.DeletedTransactions,
	})
}
