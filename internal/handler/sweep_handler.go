package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/middleware"
	"github.com/microfin/ledger-backend/internal/service"
)

// SweepHandler lets an admin run the overdue sweep on demand
type SweepHandler struct {
	overdueService *service.OverdueService
	clock          service.Clock
}

// NewSweepHandler creates a new SweepHandler
func NewSweepHandler(overdueService *service.OverdueService, clock service.Clock) *SweepHandler {
	return &SweepHandler{overdueService: overdueService, clock: clock}
}

// SweepResponse reports the outcome of an overdue sweep
type SweepResponse struct {
	AsOf        string `json:"asOf"`
	Candidates  int    `json:"candidates"`
	Transitions int    `json:"transitions"`
}

// RunOverdueSweep godoc
// @Summary Run the overdue sweep
// @Description Flags every PENDING installment due strictly before asOf as OVERDUE (admin only)
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param asOf query string false "Cutoff instant (RFC3339), defaults to now"
// @Success 200 {object} SweepResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /admin/overdue-sweep [post]
func (h *SweepHandler) RunOverdueSweep(c echo.Context) error {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	asOf := h.clock()
	if raw := c.QueryParam("asOf"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewValidationError(c, "Invalid sweep time", []ValidationError{
				{Field: "asOf", Message: "Must be an RFC 3339 timestamp"},
			})
		}
		asOf = parsed
	}

	result, err := h.overdueService.TriggerSweep(c.Request().Context(), *principal, asOf)
	if err != nil {
		return handleServiceError(c, err, "run overdue sweep")
	}

	return c.JSON(http.StatusOK, SweepResponse{
		AsOf:        result.AsOf.UTC().Format(time.RFC3339),
		Candidates:  result.Candidates,
		Transitions: result.Transitions,
	})
}
