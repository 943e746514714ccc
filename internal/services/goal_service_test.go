package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tresorerie/internal/core"
	"tresorerie/internal/storage/memory"
)

func TestGoalService(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	owner := uuid.New()
	mustCategory(t, gw, owner, "Salary", core.Income)
	mustCategory(t, gw, owner, "Rent", core.Expense)
	svc := NewGoalService(gw)

	t.Run("goal on an income category", func(t *testing.T) {
		g, err := svc.UpsertGoal(ctx, owner, core.BudgetGoal{Category: "Salary", TargetAmount: core.Cents(300000), CurrentAmount: core.Cents(5)})
		require.NoError(t, err)
		assert.Equal(t, core.DefaultGoalColor, g.Color)
		assert.True(t, g.CurrentAmount.IsZero(), "current amount is never stored")

		g, err = svc.UpsertGoal(ctx, owner, core.BudgetGoal{Category: "Salary", TargetAmount: core.Cents(350000), Color: "#00FF00"})
		require.NoError(t, err)
		goals, _ := svc.ListGoals(ctx, owner)
		require.Len(t, goals, 1)
		assert.Equal(t, int64(350000), goals[0].TargetAmount.Cents)
		assert.Equal(t, "#00FF00", goals[0].Color)
	})

	t.Run("goal on an expense category is rejected", func(t *testing.T) {
		_, err := svc.UpsertGoal(ctx, owner, core.BudgetGoal{Category: "Rent", TargetAmount: core.Cents(1)})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("limit on an expense category", func(t *testing.T) {
		_, err := svc.UpsertExpenseBudget(ctx, owner, core.ExpenseBudget{Category: "Rent", Amount: core.Cents(90000)})
		require.NoError(t, err)
		budgets, _ := svc.ListExpenseBudgets(ctx, owner)
		assert.Len(t, budgets, 1)
	})

	t.Run("limit on an income category is rejected", func(t *testing.T) {
		_, err := svc.UpsertExpenseBudget(ctx, owner, core.ExpenseBudget{Category: "Salary", Amount: core.Cents(1)})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.DeleteGoal(ctx, owner, "Salary"))
		assert.ErrorIs(t, svc.DeleteGoal(ctx, owner, "Salary"), core.ErrNotFound)
		require.NoError(t, svc.DeleteExpenseBudget(ctx, owner, "Rent"))
		assert.ErrorIs(t, svc.DeleteExpenseBudget(ctx, uuid.New(), "Rent"), core.ErrNotFound)
	})
}
