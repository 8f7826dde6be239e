package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OverdueWorker is a background worker that periodically runs the overdue sweep
type OverdueWorker struct {
	overdueService *OverdueService
	logger         zerolog.Logger
	clock          Clock
	interval       time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
	mu             sync.Mutex
	running        bool
}

// OverdueWorkerConfig holds configuration for the overdue worker
type OverdueWorkerConfig struct {
	Interval time.Duration // How often to sweep
}

// DefaultOverdueWorkerConfig returns sensible defaults
func DefaultOverdueWorkerConfig() OverdueWorkerConfig {
	return OverdueWorkerConfig{
		Interval: 1 * time.Hour,
	}
}

// NewOverdueWorker creates a new overdue worker
func NewOverdueWorker(
	overdueService *OverdueService,
	clock Clock,
	logger zerolog.Logger,
	config OverdueWorkerConfig,
) *OverdueWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultOverdueWorkerConfig().Interval
	}
	if clock == nil {
		clock = SystemClock
	}

	return &OverdueWorker{
		overdueService: overdueService,
		logger:         logger.With().Str("component", "overdue_worker").Logger(),
		clock:          clock,
		interval:       config.Interval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (w *OverdueWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Msg("Starting overdue worker")

	go w.run(ctx)
}

// Stop gracefully stops the overdue worker
func (w *OverdueWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping overdue worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Overdue worker stopped")
}

func (w *OverdueWorker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	// Run immediately on startup
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *OverdueWorker) sweep(ctx context.Context) {
	startTime := time.Now()
	asOf := w.clock()

	transitions, err := w.overdueService.RunOverdueSweep(ctx, asOf)
	if err != nil {
		w.logger.Error().Err(err).Time("as_of", asOf).Msg("Overdue sweep failed")
		return
	}

	w.logger.Debug().
		Time("as_of", asOf).
		Int("transitions", transitions).
		Dur("elapsed", time.Since(startTime)).
		Msg("Completed overdue sweep")
}

// IsRunning returns whether the worker is currently running
func (w *OverdueWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
