package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstallment(id int32, status InstallmentStatus, due time.Time) *Installment {
	return &Installment{
		ID:                id,
		LoanID:            1,
		DueDate:           due,
		InstallmentAmount: decimal.NewFromInt(500),
		DueAmount:         decimal.NewFromInt(500),
		Status:            status,
		Version:           1,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInstallment_CanTransition(t *testing.T) {
	tests := []struct {
		from InstallmentStatus
		to   InstallmentStatus
		want bool
	}{
		{InstallmentStatusPending, InstallmentStatusOverdue, true},
		{InstallmentStatusPending, InstallmentStatusPaid, true},
		{InstallmentStatusOverdue, InstallmentStatusPaid, true},
		{InstallmentStatusPaid, InstallmentStatusPending, true},
		{InstallmentStatusPaid, InstallmentStatusOverdue, false},
		{InstallmentStatusPaid, InstallmentStatusPaid, false},
		{InstallmentStatusOverdue, InstallmentStatusPending, false},
		{InstallmentStatusOverdue, InstallmentStatusOverdue, false},
		{InstallmentStatusPending, InstallmentStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			inst := newInstallment(1, tt.from, date(2024, 1, 1))
			assert.Equal(t, tt.want, inst.CanTransition(tt.to))
		})
	}
}

func TestInstallment_MarkOverdue(t *testing.T) {
	due := date(2024, 1, 1)

	t.Run("late pending becomes overdue", func(t *testing.T) {
		inst := newInstallment(1, InstallmentStatusPending, due)
		require.NoError(t, inst.MarkOverdue(date(2024, 1, 2)))
		assert.Equal(t, InstallmentStatusOverdue, inst.Status)
		assert.True(t, inst.DueAmount.Equal(decimal.NewFromInt(500)), "amounts must not change")
	})

	t.Run("due today is not late", func(t *testing.T) {
		inst := newInstallment(1, InstallmentStatusPending, due)
		err := inst.MarkOverdue(due)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, InstallmentStatusPending, inst.Status)
	})

	t.Run("paid cannot become overdue", func(t *testing.T) {
		inst := newInstallment(1, InstallmentStatusPaid, due)
		err := inst.MarkOverdue(date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, InstallmentStatusPaid, inst.Status)
	})
}

func TestInstallment_ApplyPayment(t *testing.T) {
	at := date(2024, 1, 5)
	inst := newInstallment(1, InstallmentStatusPending, date(2024, 1, 1))

	err := inst.ApplyPayment(decimal.NewFromInt(500), decimal.NewFromInt(20), decimal.NewFromInt(4), at)
	require.NoError(t, err)

	assert.Equal(t, InstallmentStatusPaid, inst.Status)
	assert.True(t, inst.Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, inst.ExtraAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, inst.PenaltyAmount.Equal(decimal.NewFromInt(4)))
	assert.True(t, inst.DueAmount.IsZero())
	require.NotNil(t, inst.PaidAt)
	assert.Equal(t, at, *inst.PaidAt)
}

func TestInstallment_ApplyPayment_Overdue(t *testing.T) {
	inst := newInstallment(1, InstallmentStatusOverdue, date(2024, 1, 1))
	require.NoError(t, inst.ApplyPayment(decimal.NewFromInt(500), decimal.Zero, decimal.Zero, date(2024, 3, 1)))
	assert.Equal(t, InstallmentStatusPaid, inst.Status)
}

func TestInstallment_ApplyPayment_AlreadyPaid(t *testing.T) {
	inst := newInstallment(1, InstallmentStatusPaid, date(2024, 1, 1))
	err := inst.ApplyPayment(decimal.NewFromInt(500), decimal.Zero, decimal.Zero, date(2024, 1, 5))

	var te TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, InstallmentStatusPaid, te.From)
	assert.Equal(t, InstallmentStatusPaid, te.To)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestInstallment_Reverse(t *testing.T) {
	inst := newInstallment(1, InstallmentStatusPending, date(2024, 1, 1))
	require.NoError(t, inst.ApplyPayment(decimal.NewFromInt(500), decimal.NewFromInt(10), decimal.NewFromInt(3), date(2024, 1, 5)))

	require.NoError(t, inst.Reverse(date(2024, 1, 6)))

	assert.Equal(t, InstallmentStatusPending, inst.Status)
	assert.True(t, inst.Amount.IsZero())
	assert.True(t, inst.ExtraAmount.IsZero())
	assert.True(t, inst.PenaltyAmount.IsZero())
	assert.True(t, inst.DueAmount.IsZero())
	assert.Nil(t, inst.PaidAt)
	assert.True(t, inst.InstallmentAmount.Equal(decimal.NewFromInt(500)), "scheduled amount survives reversal")
}

func TestInstallment_Reverse_NotPaid(t *testing.T) {
	for _, status := range []InstallmentStatus{InstallmentStatusPending, InstallmentStatusOverdue} {
		t.Run(string(status), func(t *testing.T) {
			inst := newInstallment(1, status, date(2024, 1, 1))
			err := inst.Reverse(date(2024, 1, 6))
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, status, inst.Status)
		})
	}
}

func TestSelectNextActions(t *testing.T) {
	installments := []*Installment{
		newInstallment(4, InstallmentStatusPending, date(2024, 4, 1)),
		newInstallment(1, InstallmentStatusOverdue, date(2024, 1, 1)),
		newInstallment(3, InstallmentStatusPending, date(2024, 3, 1)),
		newInstallment(2, InstallmentStatusOverdue, date(2024, 2, 1)),
		newInstallment(5, InstallmentStatusPaid, date(2023, 12, 1)),
	}

	actions, err := SelectNextActions(installments)
	require.NoError(t, err)

	require.NotNil(t, actions.Next)
	assert.Equal(t, int32(3), actions.Next.ID, "earliest pending wins")
	require.Len(t, actions.Overdue, 2, "every overdue installment is included")
	ids := []int32{actions.Overdue[0].ID, actions.Overdue[1].ID}
	assert.ElementsMatch(t, []int32{1, 2}, ids)
}

func TestSelectNextActions_SameDueDateTieBreak(t *testing.T) {
	due := date(2024, 3, 1)
	actions, err := SelectNextActions([]*Installment{
		newInstallment(9, InstallmentStatusPending, due),
		newInstallment(7, InstallmentStatusPending, due),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(7), actions.Next.ID)
	assert.Empty(t, actions.Overdue)
}

func TestSelectNextActions_NoPending(t *testing.T) {
	_, err := SelectNextActions([]*Installment{
		newInstallment(1, InstallmentStatusOverdue, date(2024, 1, 1)),
		newInstallment(2, InstallmentStatusPaid, date(2024, 2, 1)),
	})
	assert.ErrorIs(t, err, ErrNoPendingInstallment)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelectNextActions_Empty(t *testing.T) {
	_, err := SelectNextActions(nil)
	assert.ErrorIs(t, err, ErrNoPendingInstallment)
}
