package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/microfin/ledger-backend/internal/middleware"
)

// Handlers groups every HTTP handler mounted under /api/v1
type Handlers struct {
	Installment *InstallmentHandler
	Loan        *LoanHandler
	Borrower    *BorrowerHandler
	Transaction *TransactionHandler
	Sweep       *SweepHandler
	WebSocket   *WebSocketHandler
}

// RegisterRoutes sets up all API routes. Every /api/v1 route is authenticated
// and then rate limited per principal.
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, h Handlers) {
	// WebSocket authenticates through its token query parameter
	if h.WebSocket != nil {
		e.GET("/api/v1/ws", h.WebSocket.HandleWS)
	}

	// API version 1
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())
	api.Use(middleware.RateLimitMiddleware(rateLimiter))

	installments := api.Group("/installments")
	installments.GET("/:id", h.Installment.GetInstallment)
	installments.POST("/:id/pay", h.Installment.PayInstallment)
	installments.POST("/:id/unpay", h.Installment.UnpayInstallment)

	loans := api.Group("/loans")
	loans.GET("/:id/can-delete", h.Loan.CanDeleteLoan)
	loans.DELETE("/:id", h.Loan.DeleteLoan)

	borrowers := api.Group("/borrowers")
	borrowers.GET("/due", h.Borrower.GetBorrowersDue)
	borrowers.PUT("/:id/agent", h.Borrower.ReassignBorrower)
	borrowers.GET("/:id/next-installments", h.Borrower.GetNextInstallments)

	api.GET("/transactions", h.Transaction.GetTransactions)

	admin := api.Group("/admin")
	admin.POST("/overdue-sweep", h.Sweep.RunOverdueSweep)
}
