package service

import (
	"context"
	"testing"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRecorder_Record(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending)
	recorder := NewTransactionRecorder()
	id := f.installments[0].ID
	at := day(2024, 1, 5)

	err := f.store.RunInTx(context.Background(), func(tx domain.Repositories) error {
		created, err := recorder.Record(context.Background(), tx, id, domain.TransactionTypeInstallment, decimal.NewFromInt(250), strPtr("first half"), at)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, at, created.CreatedAt)
		return nil
	})
	require.NoError(t, err)

	txs := f.store.TransactionsFor(id)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(250)))
}

func TestTransactionRecorder_Record_Errors(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPending)
	recorder := NewTransactionRecorder()
	id := f.installments[0].ID
	ctx := context.Background()

	_, err := recorder.Record(ctx, f.store, id, domain.TransactionTypeInstallment, decimal.Zero, nil, day(2024, 1, 5))
	assert.ErrorIs(t, err, domain.ErrAmountInvalid)

	_, err = recorder.Record(ctx, f.store, id, domain.TransactionTypeInstallment, decimal.NewFromInt(1), nil, time.Time{})
	assert.ErrorIs(t, err, domain.ErrTimestampRequired)

	_, err = recorder.Record(ctx, f.store, 99999, domain.TransactionTypeInstallment, decimal.NewFromInt(1), nil, day(2024, 1, 5))
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)

	assert.Empty(t, f.store.TransactionsFor(id))
}

func TestTransactionRecorder_ReverseAll(t *testing.T) {
	f := newLedgerFixture(t, domain.InstallmentStatusPaid, domain.InstallmentStatusPending)
	recorder := NewTransactionRecorder()
	ctx := context.Background()
	paidID := f.installments[0].ID

	f.store.AddTransaction(&domain.Transaction{
		InstallmentID: paidID,
		Type:          domain.TransactionTypeInstallment,
		Amount:        decimal.NewFromInt(20),
		CreatedAt:     day(2024, 1, 2),
	})

	count, err := recorder.ReverseAll(ctx, f.store, paidID, domain.TransactionTypeInstallment)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Empty(t, f.store.TransactionsFor(paidID))

	count, err = recorder.ReverseAll(ctx, f.store, f.installments[1].ID, domain.TransactionTypeInstallment)
	require.NoError(t, err, "no matching transactions is not an error")
	assert.Equal(t, 0, count)

	_, err = recorder.ReverseAll(ctx, f.store, 99999, domain.TransactionTypeInstallment)
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)
}
