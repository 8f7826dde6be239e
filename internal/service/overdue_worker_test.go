package service

import (
	"context"
	"testing"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupOverdueWorker(t *testing.T, statuses ...domain.InstallmentStatus) (*OverdueWorker, *ledgerFixture) {
	f := newLedgerFixture(t, statuses...)

	config := OverdueWorkerConfig{
		Interval: 100 * time.Millisecond, // Fast interval for testing
	}

	worker := NewOverdueWorker(NewOverdueService(f.store.Installments()), fixedClock(day(2024, 6, 1)), zerolog.Nop(), config)
	return worker, f
}

func TestOverdueWorker_NewOverdueWorker(t *testing.T) {
	worker, _ := setupOverdueWorker(t)

	assert.NotNil(t, worker)
	assert.Equal(t, 100*time.Millisecond, worker.interval)
	assert.False(t, worker.IsRunning())
}

func TestOverdueWorker_DefaultConfig(t *testing.T) {
	assert.Equal(t, 1*time.Hour, DefaultOverdueWorkerConfig().Interval)

	worker := NewOverdueWorker(nil, nil, zerolog.Nop(), OverdueWorkerConfig{})
	assert.Equal(t, 1*time.Hour, worker.interval)
}

func TestOverdueWorker_StartStop(t *testing.T) {
	worker, _ := setupOverdueWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, worker.IsRunning())

	worker.Stop()
	assert.False(t, worker.IsRunning())
}

func TestOverdueWorker_StartTwice(t *testing.T) {
	worker, _ := setupOverdueWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	worker.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, worker.IsRunning())

	worker.Stop()
	assert.False(t, worker.IsRunning())
}

func TestOverdueWorker_StopWithoutStart(t *testing.T) {
	worker, _ := setupOverdueWorker(t)

	assert.NotPanics(t, func() {
		worker.Stop()
	})
}

func TestOverdueWorker_SweepsOnStart(t *testing.T) {
	worker, f := setupOverdueWorker(t, domain.InstallmentStatusPending, domain.InstallmentStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	defer worker.Stop()

	assert.Eventually(t, func() bool {
		for _, inst := range f.installments {
			if f.store.InstallmentByID(inst.ID).Status != domain.InstallmentStatusOverdue {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestOverdueWorker_ContextCancel(t *testing.T) {
	worker, _ := setupOverdueWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return !worker.IsRunning() }, time.Second, 10*time.Millisecond)
}
