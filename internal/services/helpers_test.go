package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tresorerie/internal/amqp"
	"tresorerie/internal/core"
	"tresorerie/internal/storage"
	"tresorerie/internal/storage/memory"
)

var errInjected = errors.New("injected failure")

// failingGateway wraps a real gateway and fails selected calls.
type failingGateway struct {
	storage.Gateway

	insertTxWhen       func(core.Transaction) bool
	failSchedule       bool
	failInsertTemplate bool
	failRename         map[storage.Dependent]bool
	failClearTag       bool
	failListGoals      bool
}

func (f *failingGateway) ListGoals(ctx context.Context, owner uuid.UUID) ([]core.BudgetGoal, error) {
	if f.failListGoals {
		return nil, &core.GatewayError{Op: "list goals", Err: errInjected}
	}
	return f.Gateway.ListGoals(ctx, owner)
}

func (f *failingGateway) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if f.insertTxWhen != nil && f.insertTxWhen(tx) {
		return core.Transaction{}, &core.GatewayError{Op: "insert transaction", Err: errInjected}
	}
	return f.Gateway.InsertTransaction(ctx, tx)
}

func (f *failingGateway) UpdateTemplateSchedule(ctx context.Context, owner uuid.UUID, id int64, last, next core.Date) error {
	if f.failSchedule {
		return &core.GatewayError{Op: "update template schedule", Err: errInjected}
	}
	return f.Gateway.UpdateTemplateSchedule(ctx, owner, id, last, next)
}

func (f *failingGateway) InsertTemplate(ctx context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	if f.failInsertTemplate {
		return core.RecurringTemplate{}, &core.GatewayError{Op: "insert template", Err: errInjected}
	}
	return f.Gateway.InsertTemplate(ctx, rt)
}

func (f *failingGateway) RenameDependents(ctx context.Context, table storage.Dependent, owner uuid.UUID, oldName, newName string) (int64, error) {
	if f.failRename[table] {
		return 0, &core.GatewayError{Op: "rename " + string(table), Err: errInjected}
	}
	return f.Gateway.RenameDependents(ctx, table, owner, oldName, newName)
}

func (f *failingGateway) ClearTagFromTransactions(ctx context.Context, owner uuid.UUID, tag string) (int64, error) {
	if f.failClearTag {
		return 0, &core.GatewayError{Op: "clear tag", Err: errInjected}
	}
	return f.Gateway.ClearTagFromTransactions(ctx, owner, tag)
}

// atomicFailingGateway is a failingGateway over a store that supports
// transactions; the injected failures apply inside RunInTx too.
type atomicFailingGateway struct {
	*failingGateway
	runner storage.TxRunner
}

func (a *atomicFailingGateway) RunInTx(ctx context.Context, fn func(storage.Gateway) error) error {
	return a.runner.RunInTx(ctx, func(tx storage.Gateway) error {
		inner := *a.failingGateway
		inner.Gateway = tx
		return fn(&inner)
	})
}

func newSQLite(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "tresorerie.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// gateways returns one store of each in-process kind, so behavior can be
// checked on both the sequential and the transactional paths.
func gateways(t *testing.T) map[string]storage.Gateway {
	t.Helper()
	return map[string]storage.Gateway{
		"memory": memory.New(),
		"sqlite": newSQLite(t),
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func date(s string) core.Date { return core.MustParseDate(s) }

func mustCategory(t *testing.T, gw storage.Gateway, owner uuid.UUID, name string, typ core.TransactionType) core.Category {
	t.Helper()
	c, err := gw.InsertCategory(context.Background(), core.Category{OwnerID: owner, Name: name, Type: typ})
	require.NoError(t, err)
	return c
}

func mustTransaction(t *testing.T, gw storage.Gateway, owner uuid.UUID, d, category string, typ core.TransactionType, cents int64) core.Transaction {
	t.Helper()
	tx, err := gw.InsertTransaction(context.Background(), core.Transaction{
		OwnerID:    owner,
		Date:       date(d),
		EntityName: "entity",
		Category:   category,
		Status:     typ.InitialStatus(),
		Amount:     core.Cents(cents),
		Type:       typ,
	})
	require.NoError(t, err)
	return tx
}

func mustTemplate(t *testing.T, gw storage.Gateway, rt core.RecurringTemplate) core.RecurringTemplate {
	t.Helper()
	if rt.EntityName == "" {
		rt.EntityName = "entity"
	}
	if rt.Category == "" {
		rt.Category = "Bills"
	}
	if rt.Type == "" {
		rt.Type = core.Expense
	}
	if rt.StartDate.IsZero() {
		rt.StartDate = rt.NextRunDate
	}
	created, err := gw.InsertTemplate(context.Background(), rt)
	require.NoError(t, err)
	return created
}
