package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tresorerie/internal/core"
	"tresorerie/internal/services"
	"tresorerie/internal/storage/memory"
)

func seedTemplate(t *testing.T, gw *memory.Store, owner uuid.UUID, next string, active bool) core.RecurringTemplate {
	t.Helper()
	rt, err := gw.InsertTemplate(context.Background(), core.RecurringTemplate{
		OwnerID:     owner,
		EntityName:  "Landlord",
		Category:    "Rent",
		Amount:      core.Cents(90000),
		Type:        core.Expense,
		Frequency:   core.Monthly,
		StartDate:   core.MustParseDate(next),
		NextRunDate: core.MustParseDate(next),
		Active:      active,
	})
	require.NoError(t, err)
	return rt
}

func newTestWorker(gw *memory.Store, cfg RecurringWorkerConfig, today string) *RecurringWorker {
	w := NewRecurringWorker(gw, services.NewRecurringProcessor(gw), cfg)
	w.today = func() core.Date { return core.MustParseDate(today) }
	return w
}

func TestRecurringWorker_RunOnceProcessesEveryOwner(t *testing.T) {
	// given two owners with due templates and one paused template
	gw := memory.New()
	alice, bob := uuid.New(), uuid.New()
	seedTemplate(t, gw, alice, "2024-01-15", true)
	seedTemplate(t, gw, bob, "2024-03-01", true)
	seedTemplate(t, gw, bob, "2023-01-01", false)

	w := newTestWorker(gw, DefaultRecurringWorkerConfig(), "2024-03-01")

	// when
	summary, err := w.RunOnce(context.Background())

	// then alice catches up Jan 15 and Feb 15 (Mar 15 is not due yet); bob gets one
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Owners)
	assert.Equal(t, 3, summary.Created)
	assert.Zero(t, summary.Failed)

	txs, err := gw.ListTransactions(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	rt, err := gw.ListTemplates(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, rt, 1)
	assert.Equal(t, "2024-03-15", rt[0].NextRunDate.String())
}

func TestRecurringWorker_WithoutCatchUpCreatesOnePerTemplate(t *testing.T) {
	gw := memory.New()
	owner := uuid.New()
	seedTemplate(t, gw, owner, "2024-01-15", true)

	w := newTestWorker(gw, RecurringWorkerConfig{Interval: time.Minute}, "2024-03-01")

	summary, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestRecurringWorker_SecondRunIsIdempotent(t *testing.T) {
	gw := memory.New()
	seedTemplate(t, gw, uuid.New(), "2024-03-01", true)
	w := newTestWorker(gw, DefaultRecurringWorkerConfig(), "2024-03-01")

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	summary, err := w.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.Owners)
	assert.Zero(t, summary.Created)
}

func TestRecurringWorker_StartStop(t *testing.T) {
	gw := memory.New()
	w := newTestWorker(gw, RecurringWorkerConfig{Interval: time.Hour}, "2024-03-01")
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())

	err := w.Start(ctx)
	assert.Error(t, err, "second Start should fail")

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.IsRunning())
}

func TestRecurringWorker_RestartAfterStop(t *testing.T) {
	w := newTestWorker(memory.New(), RecurringWorkerConfig{Interval: time.Hour}, "2024-03-01")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Start(ctx))
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		require.NoError(t, w.Stop(stopCtx), "stop %d", i)
		cancel()
	}
	assert.False(t, w.IsRunning())
}

func TestRecurringWorker_StopWhenNotRunning(t *testing.T) {
	w := newTestWorker(memory.New(), DefaultRecurringWorkerConfig(), "2024-03-01")

	assert.NoError(t, w.Stop(context.Background()))
}

func TestRecurringWorker_StartRunsImmediately(t *testing.T) {
	gw := memory.New()
	owner := uuid.New()
	seedTemplate(t, gw, owner, "2024-03-01", true)
	w := newTestWorker(gw, RecurringWorkerConfig{Interval: time.Hour, CatchUp: true}, "2024-03-01")

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	assert.Eventually(t, func() bool {
		txs, err := gw.ListTransactions(context.Background(), owner)
		return err == nil && len(txs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRecurringWorker_DefaultsInterval(t *testing.T) {
	w := NewRecurringWorker(memory.New(), nil, RecurringWorkerConfig{})

	assert.Equal(t, time.Hour, w.config.Interval)
}
