package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

// GoalService manages income goals and expense limits directly, outside
// of category edits.
type GoalService struct {
	gw storage.Gateway
}

func NewGoalService(gw storage.Gateway) *GoalService {
	return &GoalService{gw: gw}
}

func (s *GoalService) ListGoals(ctx context.Context, owner uuid.UUID) ([]core.BudgetGoal, error) {
	return s.gw.ListGoals(ctx, owner)
}

func (s *GoalService) ListExpenseBudgets(ctx context.Context, owner uuid.UUID) ([]core.ExpenseBudget, error) {
	return s.gw.ListExpenseBudgets(ctx, owner)
}

// UpsertGoal sets the target of an Income category. CurrentAmount is
// ignored; it is recomputed on read.
func (s *GoalService) UpsertGoal(ctx context.Context, owner uuid.UUID, g core.BudgetGoal) (core.BudgetGoal, error) {
	g.OwnerID = owner
	g.CurrentAmount = core.Money{}
	if g.Color == "" {
		g.Color = core.DefaultGoalColor
	}
	if err := g.Validate(); err != nil {
		return core.BudgetGoal{}, err
	}
	if err := s.requireCategory(ctx, owner, g.Category, core.Income); err != nil {
		return core.BudgetGoal{}, err
	}
	saved, err := s.gw.UpsertGoal(ctx, g)
	if err != nil {
		return core.BudgetGoal{}, fmt.Errorf("save goal: %w", err)
	}
	return saved, nil
}

// UpsertExpenseBudget sets the monthly limit of an Expense category.
func (s *GoalService) UpsertExpenseBudget(ctx context.Context, owner uuid.UUID, b core.ExpenseBudget) (core.ExpenseBudget, error) {
	b.OwnerID = owner
	if err := b.Validate(); err != nil {
		return core.ExpenseBudget{}, err
	}
	if err := s.requireCategory(ctx, owner, b.Category, core.Expense); err != nil {
		return core.ExpenseBudget{}, err
	}
	saved, err := s.gw.UpsertExpenseBudget(ctx, b)
	if err != nil {
		return core.ExpenseBudget{}, fmt.Errorf("save expense budget: %w", err)
	}
	return saved, nil
}

func (s *GoalService) DeleteGoal(ctx context.Context, owner uuid.UUID, category string) error {
	if err := s.gw.DeleteGoal(ctx, owner, category); err != nil {
		return fmt.Errorf("delete goal %q: %w", category, err)
	}
	return nil
}

func (s *GoalService) DeleteExpenseBudget(ctx context.Context, owner uuid.UUID, category string) error {
	if err := s.gw.DeleteExpenseBudget(ctx, owner, category); err != nil {
		return fmt.Errorf("delete expense budget %q: %w", category, err)
	}
	return nil
}

// requireCategory rejects goals on expense categories and limits on income
// ones.
func (s *GoalService) requireCategory(ctx context.Context, owner uuid.UUID, name string, t core.TransactionType) error {
	_, err := s.gw.FindCategory(ctx, owner, name, t)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %q is not an %s category", core.ErrValidation, name, t)
	}
	return err
}
