// Package storage defines the persistence gateway used by the services and
// its SQL implementations (SQLite and Postgres).
package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tresorerie/internal/core"
)

// Dependent names a table whose rows reference a category by name.
type Dependent string

const (
	Goals          Dependent = "goals"
	ExpenseBudgets Dependent = "expense_budgets"
	Transactions   Dependent = "transactions"
)

// Dependents lists every category-dependent table in propagation order.
var Dependents = []Dependent{Goals, ExpenseBudgets, Transactions}

func (d Dependent) Validate() error {
	switch d {
	case Goals, ExpenseBudgets, Transactions:
		return nil
	default:
		return fmt.Errorf("unknown dependent table %q", string(d))
	}
}

// Gateway is the persistence boundary. Every call is scoped to an owner:
// rows of other owners are invisible, single-row lookups on them return
// core.ErrNotFound and bulk operations affect zero rows.
type Gateway interface {
	// Recurring templates
	ListActiveDueTemplates(ctx context.Context, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error)
	ListOwnersWithDueTemplates(ctx context.Context, asOf core.Date) ([]uuid.UUID, error)
	InsertTemplate(ctx context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error)
	GetTemplate(ctx context.Context, owner uuid.UUID, id int64) (core.RecurringTemplate, error)
	ListTemplates(ctx context.Context, owner uuid.UUID) ([]core.RecurringTemplate, error)
	UpdateTemplateSchedule(ctx context.Context, owner uuid.UUID, id int64, last, next core.Date) error
	SetTemplateActive(ctx context.Context, owner uuid.UUID, id int64, active bool) error
	DeleteTemplate(ctx context.Context, owner uuid.UUID, id int64) error

	// Transactions
	InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, owner uuid.UUID, id int64) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, owner uuid.UUID, id int64) error
	ListTransactions(ctx context.Context, owner uuid.UUID) ([]core.Transaction, error)

	// Categories
	InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategory(ctx context.Context, owner uuid.UUID, id int64) (core.Category, error)
	FindCategory(ctx context.Context, owner uuid.UUID, name string, t core.TransactionType) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, owner uuid.UUID, id int64) error
	ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error)

	// Goals and expense budgets, one row per (owner, category)
	ListGoals(ctx context.Context, owner uuid.UUID) ([]core.BudgetGoal, error)
	ListExpenseBudgets(ctx context.Context, owner uuid.UUID) ([]core.ExpenseBudget, error)
	UpsertGoal(ctx context.Context, g core.BudgetGoal) (core.BudgetGoal, error)
	UpsertExpenseBudget(ctx context.Context, b core.ExpenseBudget) (core.ExpenseBudget, error)
	DeleteGoal(ctx context.Context, owner uuid.UUID, category string) error
	DeleteExpenseBudget(ctx context.Context, owner uuid.UUID, category string) error

	// Category propagation
	RenameDependents(ctx context.Context, table Dependent, owner uuid.UUID, oldName, newName string) (int64, error)
	DeleteDependents(ctx context.Context, table Dependent, owner uuid.UUID, category string) (int64, error)

	// Tags
	InsertTag(ctx context.Context, t core.Tag) (core.Tag, error)
	GetTag(ctx context.Context, owner uuid.UUID, id int64) (core.Tag, error)
	ListTags(ctx context.Context, owner uuid.UUID) ([]core.Tag, error)
	DeleteTag(ctx context.Context, owner uuid.UUID, id int64) error
	ClearTagFromTransactions(ctx context.Context, owner uuid.UUID, tag string) (int64, error)
}

// TxRunner is implemented by gateways able to run several calls as one
// atomic unit. fn receives a Gateway bound to the transaction; returning an
// error rolls everything back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Gateway) error) error
}

// Store is a Gateway owning resources that must be released.
type Store interface {
	Gateway
	Close() error
}
