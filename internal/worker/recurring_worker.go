package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/services"
	"tresorerie/internal/storage"
)

// RecurringWorkerConfig holds configuration for the recurring worker
type RecurringWorkerConfig struct {
	// Interval between runs (default: 1h)
	Interval time.Duration

	// CatchUp materializes every missed occurrence instead of one per run (default: true)
	CatchUp bool
}

// DefaultRecurringWorkerConfig returns sensible defaults
func DefaultRecurringWorkerConfig() RecurringWorkerConfig {
	return RecurringWorkerConfig{
		Interval: time.Hour,
		CatchUp:  true,
	}
}

// RunSummary aggregates one pass over every owner with due templates.
type RunSummary struct {
	AsOf    core.Date
	Owners  int
	Created int
	Failed  int
	// OwnerErrors counts owners whose due templates could not be listed.
	OwnerErrors int
}

// RecurringWorker periodically processes due templates of every owner.
type RecurringWorker struct {
	gw        storage.Gateway
	processor *services.RecurringProcessor
	config    RecurringWorkerConfig
	today     func() core.Date

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringWorker(gw storage.Gateway, processor *services.RecurringProcessor, config RecurringWorkerConfig) *RecurringWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultRecurringWorkerConfig().Interval
	}
	return &RecurringWorker{
		gw:        gw,
		processor: processor,
		config:    config,
		today:     core.Today,
	}
}

// RunOnce processes every owner once. The error is non-nil only when the
// owners could not be listed; per-owner failures are logged and counted.
func (w *RecurringWorker) RunOnce(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{AsOf: w.today()}

	owners, err := w.gw.ListOwnersWithDueTemplates(ctx, summary.AsOf)
	if err != nil {
		return summary, fmt.Errorf("list owners with due templates: %w", err)
	}
	summary.Owners = len(owners)

	opts := services.ProcessOptions{CatchUp: w.config.CatchUp}
	for _, owner := range owners {
		if ctx.Err() != nil {
			break
		}
		report, err := w.processor.ProcessDue(ctx, owner, summary.AsOf, opts)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process owner",
				applog.FieldComponent, applog.ComponentRecurring,
				applog.FieldUserID, owner,
				applog.FieldError, err)
			summary.OwnerErrors++
			continue
		}
		summary.Created += report.Created()
		summary.Failed += report.Failed()
	}

	slog.InfoContext(ctx, "Recurring run complete",
		"as_of", summary.AsOf.String(),
		"owners", summary.Owners,
		"created", summary.Created,
		"failed", summary.Failed,
		"owner_errors", summary.OwnerErrors)
	return summary, nil
}

// Start begins the processing loop. Returns an error if already running.
func (w *RecurringWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("recurring worker is already running")
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Recurring worker started",
		applog.FieldComponent, applog.ComponentRecurring,
		applog.FieldOperation, applog.OpStartup,
		"interval", w.config.Interval,
		"catch_up", w.config.CatchUp)
	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (w *RecurringWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring worker stopped gracefully",
			applog.FieldComponent, applog.ComponentRecurring,
			applog.FieldOperation, applog.OpShutdown)
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring worker stop timed out",
			applog.FieldComponent, applog.ComponentRecurring,
			applog.FieldOperation, applog.OpShutdown)
		return ctx.Err()
	}
}

func (w *RecurringWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// runLoop owns the channels it was started with; a later Start never
// changes what an older loop listens on.
func (w *RecurringWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// run immediately on startup
	w.run(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *RecurringWorker) run(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Recurring run failed", "error", err)
	}
}
