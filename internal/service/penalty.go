package service

import (
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// PenaltyPolicy computes the late penalty charged when an installment is paid at paidAt
type PenaltyPolicy interface {
	Penalty(inst *domain.Installment, paidAt time.Time) decimal.Decimal
}

// DailyPenaltyPolicy charges PerDay for every full day late beyond GraceDays
type DailyPenaltyPolicy struct {
	PerDay    decimal.Decimal
	GraceDays int
}

// NewDailyPenaltyPolicy creates a DailyPenaltyPolicy. Negative inputs are clamped to zero.
func NewDailyPenaltyPolicy(perDay decimal.Decimal, graceDays int) DailyPenaltyPolicy {
	if perDay.IsNegative() {
		perDay = decimal.Zero
	}
	if graceDays < 0 {
		graceDays = 0
	}
	return DailyPenaltyPolicy{PerDay: perDay, GraceDays: graceDays}
}

// Penalty implements PenaltyPolicy
func (p DailyPenaltyPolicy) Penalty(inst *domain.Installment, paidAt time.Time) decimal.Decimal {
	days := FullDaysLate(inst.DueDate, paidAt) - p.GraceDays
	if days <= 0 || p.PerDay.IsZero() {
		return decimal.Zero
	}
	return p.PerDay.Mul(decimal.NewFromInt(int64(days))).Round(2)
}

// FullDaysLate returns the number of whole 24h periods between due and at, or 0 if not late
func FullDaysLate(due, at time.Time) int {
	if !at.After(due) {
		return 0
	}
	return int(at.Sub(due) / (24 * time.Hour))
}
