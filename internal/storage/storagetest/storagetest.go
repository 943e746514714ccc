// Package storagetest holds the behaviour every storage.Gateway must share.
// Each implementation's tests call Run with a constructor for a fresh, empty
// gateway.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

// Run executes the shared gateway suite. newGateway must return an empty
// gateway; it is called once per subtest.
func Run(t *testing.T, newGateway func(t *testing.T) storage.Gateway) {
	t.Run("templates", func(t *testing.T) { testTemplates(t, newGateway(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newGateway(t)) })
	t.Run("categories", func(t *testing.T) { testCategories(t, newGateway(t)) })
	t.Run("goals and budgets", func(t *testing.T) { testGoalsAndBudgets(t, newGateway(t)) })
	t.Run("dependents", func(t *testing.T) { testDependents(t, newGateway(t)) })
	t.Run("tags", func(t *testing.T) { testTags(t, newGateway(t)) })
	t.Run("tx runner", func(t *testing.T) {
		gw := newGateway(t)
		runner, ok := gw.(storage.TxRunner)
		if !ok {
			t.Skip("gateway has no atomic unit support")
		}
		testTxRunner(t, gw, runner)
	})
}

func template(owner uuid.UUID, next string, active bool) core.RecurringTemplate {
	return core.RecurringTemplate{
		OwnerID:     owner,
		EntityName:  "Landlord",
		Category:    "Rent",
		Amount:      core.Cents(90000),
		Type:        core.Expense,
		Frequency:   core.Monthly,
		StartDate:   core.MustParseDate("2024-01-01"),
		NextRunDate: core.MustParseDate(next),
		Active:      active,
	}
}

func transaction(owner uuid.UUID, date, category string) core.Transaction {
	return core.Transaction{
		OwnerID:    owner,
		Date:       core.MustParseDate(date),
		EntityName: "ACME",
		Category:   category,
		Status:     core.StatusToPay,
		Amount:     core.Cents(1250),
		Type:       core.Expense,
	}
}

func testTemplates(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	asOf := core.MustParseDate("2024-03-01")

	late, err := gw.InsertTemplate(ctx, template(alice, "2024-02-15", true))
	require.NoError(t, err)
	require.NotZero(t, late.ID)
	early, err := gw.InsertTemplate(ctx, template(alice, "2024-01-15", true))
	require.NoError(t, err)
	today, err := gw.InsertTemplate(ctx, template(alice, "2024-03-01", true))
	require.NoError(t, err)
	_, err = gw.InsertTemplate(ctx, template(alice, "2024-03-02", true)) // future
	require.NoError(t, err)
	paused, err := gw.InsertTemplate(ctx, template(alice, "2023-01-01", false))
	require.NoError(t, err)
	_, err = gw.InsertTemplate(ctx, template(bob, "2024-01-01", true))
	require.NoError(t, err)

	// when
	due, err := gw.ListActiveDueTemplates(ctx, alice, asOf)

	// then
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []int64{early.ID, late.ID, today.ID}, []int64{due[0].ID, due[1].ID, due[2].ID})
	assert.Equal(t, alice, due[0].OwnerID)
	assert.Nil(t, due[0].LastRunDate)
	assert.Equal(t, core.Cents(90000), due[0].Amount)

	owners, err := gw.ListOwnersWithDueTemplates(ctx, asOf)
	require.NoError(t, err)
	assert.Contains(t, owners, alice)
	assert.Contains(t, owners, bob)

	all, err := gw.ListTemplates(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	// schedule update
	last, next := core.MustParseDate("2024-01-15"), core.MustParseDate("2024-02-15")
	require.NoError(t, gw.UpdateTemplateSchedule(ctx, alice, early.ID, last, next))
	got, err := gw.GetTemplate(ctx, alice, early.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunDate)
	assert.Equal(t, "2024-01-15", got.LastRunDate.String())
	assert.Equal(t, "2024-02-15", got.NextRunDate.String())

	// pause and resume leave the schedule untouched
	require.NoError(t, gw.SetTemplateActive(ctx, alice, paused.ID, true))
	got, err = gw.GetTemplate(ctx, alice, paused.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "2023-01-01", got.NextRunDate.String())

	// other owners see nothing
	_, err = gw.GetTemplate(ctx, bob, early.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, gw.UpdateTemplateSchedule(ctx, bob, early.ID, last, next), core.ErrNotFound)
	assert.ErrorIs(t, gw.SetTemplateActive(ctx, bob, early.ID, false), core.ErrNotFound)
	assert.ErrorIs(t, gw.DeleteTemplate(ctx, bob, early.ID), core.ErrNotFound)

	require.NoError(t, gw.DeleteTemplate(ctx, alice, early.ID))
	_, err = gw.GetTemplate(ctx, alice, early.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testTransactions(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	older, err := gw.InsertTransaction(ctx, transaction(alice, "2024-01-10", "Food"))
	require.NoError(t, err)
	newer := transaction(alice, "2024-02-10", "Food")
	newer.Tag = "work"
	newer, err = gw.InsertTransaction(ctx, newer)
	require.NoError(t, err)
	_, err = gw.InsertTransaction(ctx, transaction(bob, "2024-02-10", "Food"))
	require.NoError(t, err)

	list, err := gw.ListTransactions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, "work", list[0].Tag)
	assert.Equal(t, "", list[1].Tag)
	assert.Equal(t, core.Cents(1250), list[1].Amount)
	assert.Equal(t, "2024-01-10", list[1].Date.String())

	older.Status = core.StatusPaid
	older.Amount = core.Cents(999)
	updated, err := gw.UpdateTransaction(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, updated.Status)

	got, err := gw.GetTransaction(ctx, alice, older.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(999), got.Amount)
	assert.Equal(t, core.StatusPaid, got.Status)

	_, err = gw.GetTransaction(ctx, bob, older.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	stolen := older
	stolen.OwnerID = bob
	_, err = gw.UpdateTransaction(ctx, stolen)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, gw.DeleteTransaction(ctx, bob, older.ID), core.ErrNotFound)

	require.NoError(t, gw.DeleteTransaction(ctx, alice, older.ID))
	list, err = gw.ListTransactions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testCategories(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	salary, err := gw.InsertCategory(ctx, core.Category{OwnerID: alice, Name: "Salary", Type: core.Income})
	require.NoError(t, err)
	_, err = gw.InsertCategory(ctx, core.Category{OwnerID: alice, Name: "Food", Type: core.Expense})
	require.NoError(t, err)
	// same name, other type
	_, err = gw.InsertCategory(ctx, core.Category{OwnerID: alice, Name: "Salary", Type: core.Expense})
	require.NoError(t, err)
	// other owner
	_, err = gw.InsertCategory(ctx, core.Category{OwnerID: bob, Name: "Salary", Type: core.Income})
	require.NoError(t, err)

	_, err = gw.InsertCategory(ctx, core.Category{OwnerID: alice, Name: "Salary", Type: core.Income})
	assert.ErrorIs(t, err, core.ErrConflict)

	found, err := gw.FindCategory(ctx, alice, "Salary", core.Income)
	require.NoError(t, err)
	assert.Equal(t, salary.ID, found.ID)
	_, err = gw.FindCategory(ctx, alice, "Missing", core.Income)
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := gw.ListCategories(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Food", list[0].Name)

	salary.Name = "Wages"
	require.NoError(t, gw.UpdateCategory(ctx, salary))
	got, err := gw.GetCategory(ctx, alice, salary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wages", got.Name)

	_, err = gw.GetCategory(ctx, bob, salary.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	stolen := salary
	stolen.OwnerID = bob
	assert.ErrorIs(t, gw.UpdateCategory(ctx, stolen), core.ErrNotFound)
	assert.ErrorIs(t, gw.DeleteCategory(ctx, bob, salary.ID), core.ErrNotFound)

	require.NoError(t, gw.DeleteCategory(ctx, alice, salary.ID))
	_, err = gw.GetCategory(ctx, alice, salary.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testGoalsAndBudgets(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	first, err := gw.UpsertGoal(ctx, core.BudgetGoal{OwnerID: alice, Category: "Salary", TargetAmount: core.Cents(1000), Color: core.DefaultGoalColor})
	require.NoError(t, err)
	second, err := gw.UpsertGoal(ctx, core.BudgetGoal{OwnerID: alice, Category: "Salary", TargetAmount: core.Cents(2000), Color: "#000000"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	_, err = gw.UpsertGoal(ctx, core.BudgetGoal{OwnerID: bob, Category: "Salary", TargetAmount: core.Cents(5)})
	require.NoError(t, err)

	goals, err := gw.ListGoals(ctx, alice)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, core.Cents(2000), goals[0].TargetAmount)
	assert.Equal(t, "#000000", goals[0].Color)

	_, err = gw.UpsertExpenseBudget(ctx, core.ExpenseBudget{OwnerID: alice, Category: "Food", Amount: core.Cents(300)})
	require.NoError(t, err)
	_, err = gw.UpsertExpenseBudget(ctx, core.ExpenseBudget{OwnerID: alice, Category: "Food", Amount: core.Cents(400)})
	require.NoError(t, err)
	budgets, err := gw.ListExpenseBudgets(ctx, alice)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, core.Cents(400), budgets[0].Amount)

	require.NoError(t, gw.DeleteGoal(ctx, alice, "Salary"))
	assert.ErrorIs(t, gw.DeleteGoal(ctx, alice, "Salary"), core.ErrNotFound)
	require.NoError(t, gw.DeleteExpenseBudget(ctx, alice, "Food"))
	assert.ErrorIs(t, gw.DeleteExpenseBudget(ctx, alice, "Food"), core.ErrNotFound)

	goals, err = gw.ListGoals(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, goals, 1)
}

func testDependents(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for _, owner := range []uuid.UUID{alice, bob} {
		_, err := gw.UpsertGoal(ctx, core.BudgetGoal{OwnerID: owner, Category: "Freelance", TargetAmount: core.Cents(100)})
		require.NoError(t, err)
		_, err = gw.UpsertExpenseBudget(ctx, core.ExpenseBudget{OwnerID: owner, Category: "Freelance", Amount: core.Cents(100)})
		require.NoError(t, err)
		for _, d := range []string{"2024-01-01", "2024-02-01"} {
			_, err = gw.InsertTransaction(ctx, transaction(owner, d, "Freelance"))
			require.NoError(t, err)
		}
	}
	_, err := gw.InsertTransaction(ctx, transaction(alice, "2024-01-01", "Food"))
	require.NoError(t, err)

	n, err := gw.RenameDependents(ctx, storage.Transactions, alice, "Freelance", "Consulting")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = gw.RenameDependents(ctx, storage.Goals, alice, "Freelance", "Consulting")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = gw.DeleteDependents(ctx, storage.Transactions, alice, "Consulting")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = gw.DeleteDependents(ctx, storage.ExpenseBudgets, alice, "Freelance")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = gw.DeleteDependents(ctx, storage.Goals, alice, "Nothing")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = gw.RenameDependents(ctx, storage.Dependent("categories"), alice, "a", "b")
	assert.Error(t, err)

	left, err := gw.ListTransactions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Food", left[0].Category)

	// bob's rows are untouched
	bobs, err := gw.ListTransactions(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, "Freelance", bobs[0].Category)
	goals, err := gw.ListGoals(ctx, bob)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "Freelance", goals[0].Category)
}

func testTags(t *testing.T, gw storage.Gateway) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	tag, err := gw.InsertTag(ctx, core.Tag{OwnerID: alice, Name: "work"})
	require.NoError(t, err)
	_, err = gw.InsertTag(ctx, core.Tag{OwnerID: alice, Name: "home"})
	require.NoError(t, err)
	_, err = gw.InsertTag(ctx, core.Tag{OwnerID: alice, Name: "work"})
	assert.ErrorIs(t, err, core.ErrConflict)

	tags, err := gw.ListTags(ctx, alice)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "home", tags[0].Name)

	tagged := transaction(alice, "2024-01-01", "Food")
	tagged.Tag = "work"
	tagged, err = gw.InsertTransaction(ctx, tagged)
	require.NoError(t, err)
	other := transaction(bob, "2024-01-01", "Food")
	other.Tag = "work"
	other, err = gw.InsertTransaction(ctx, other)
	require.NoError(t, err)

	_, err = gw.GetTag(ctx, bob, tag.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, gw.DeleteTag(ctx, bob, tag.ID), core.ErrNotFound)

	require.NoError(t, gw.DeleteTag(ctx, alice, tag.ID))
	n, err := gw.ClearTagFromTransactions(ctx, alice, "work")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := gw.GetTransaction(ctx, alice, tagged.ID)
	require.NoError(t, err)
	assert.Equal(t, "", got.Tag)
	got, err = gw.GetTransaction(ctx, bob, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "work", got.Tag)
}

var errRollback = errors.New("rollback")

func testTxRunner(t *testing.T, gw storage.Gateway, runner storage.TxRunner) {
	ctx := context.Background()
	owner := uuid.New()

	err := runner.RunInTx(ctx, func(tx storage.Gateway) error {
		if _, err := tx.InsertTransaction(ctx, transaction(owner, "2024-01-01", "Food")); err != nil {
			return err
		}
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	list, err := gw.ListTransactions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = runner.RunInTx(ctx, func(tx storage.Gateway) error {
		_, err := tx.InsertTransaction(ctx, transaction(owner, "2024-01-01", "Food"))
		return err
	})
	require.NoError(t, err)
	list, err = gw.ListTransactions(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
