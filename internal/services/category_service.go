package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
	"tresorerie/internal/storage"
)

// CascadeReport describes the dependent rows touched by a category or tag
// change. Counts sums the affected rows per table over every step. Warnings
// are set only when the gateway cannot run the change atomically and a
// dependent write failed after the primary one succeeded.
type CascadeReport struct {
	Counts   map[storage.Dependent]int64 `json:"counts"`
	Warnings []core.PropagationWarning   `json:"warnings,omitempty"`
}

func newCascadeReport() CascadeReport {
	return CascadeReport{Counts: map[storage.Dependent]int64{}}
}

// CategoryInput is the user-editable part of a category. Target, when set,
// becomes the goal (Income) or the spending limit (Expense) of the category.
type CategoryInput struct {
	Name   string               `json:"name"`
	Type   core.TransactionType `json:"type"`
	Target *core.Money          `json:"targetAmount,omitempty"`
	Color  string               `json:"color,omitempty"`
}

func (in CategoryInput) validate() error {
	if err := (core.Category{Name: in.Name, Type: in.Type}).Validate(); err != nil {
		return err
	}
	if in.Target != nil {
		return in.Target.Validate()
	}
	return nil
}

// CategoryService keeps categories and the rows referencing them by name
// consistent.
type CategoryService struct {
	gw storage.Gateway
}

func NewCategoryService(gw storage.Gateway) *CategoryService {
	return &CategoryService{gw: gw}
}

func (s *CategoryService) List(ctx context.Context, owner uuid.UUID) ([]core.Category, error) {
	return s.gw.ListCategories(ctx, owner)
}

func (s *CategoryService) Get(ctx context.Context, owner uuid.UUID, id int64) (core.Category, error) {
	return s.gw.GetCategory(ctx, owner, id)
}

// Create stores a new category. A positive target also creates its goal or
// limit; failing that only produces a warning.
func (s *CategoryService) Create(ctx context.Context, owner uuid.UUID, in CategoryInput) (core.Category, CascadeReport, error) {
	report := newCascadeReport()
	if err := in.validate(); err != nil {
		return core.Category{}, report, err
	}

	c, err := s.gw.InsertCategory(ctx, core.Category{OwnerID: owner, Name: strings.TrimSpace(in.Name), Type: in.Type})
	if err != nil {
		return core.Category{}, report, fmt.Errorf("create category: %w", err)
	}

	if in.Target != nil && in.Target.Cents > 0 {
		table, err := upsertTarget(ctx, s.gw, c, *in.Target, in.Color)
		if err != nil {
			report.warn(ctx, table, err)
		} else {
			report.Counts[table] = 1
		}
	}
	return c, report, nil
}

// Rename changes the category name and every row referencing the old name.
func (s *CategoryService) Rename(ctx context.Context, owner uuid.UUID, id int64, newName string) (core.Category, CascadeReport, error) {
	old, err := s.gw.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, newCascadeReport(), fmt.Errorf("get category %d: %w", id, err)
	}
	return s.update(ctx, old, CategoryInput{Name: newName, Type: old.Type}, false)
}

// ChangeType switches the category between Income and Expense, dropping the
// goal or limit that no longer applies.
func (s *CategoryService) ChangeType(ctx context.Context, owner uuid.UUID, id int64, t core.TransactionType) (core.Category, CascadeReport, error) {
	old, err := s.gw.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, newCascadeReport(), fmt.Errorf("get category %d: %w", id, err)
	}
	return s.update(ctx, old, CategoryInput{Name: old.Name, Type: t}, true)
}

// Update applies name, type and target at once. The old row is read before
// anything is written so dependents can be matched on the previous name.
func (s *CategoryService) Update(ctx context.Context, owner uuid.UUID, id int64, in CategoryInput) (core.Category, CascadeReport, error) {
	if err := in.validate(); err != nil {
		return core.Category{}, newCascadeReport(), err
	}
	old, err := s.gw.GetCategory(ctx, owner, id)
	if err != nil {
		return core.Category{}, newCascadeReport(), fmt.Errorf("get category %d: %w", id, err)
	}
	return s.update(ctx, old, in, true)
}

func (s *CategoryService) update(ctx context.Context, old core.Category, in CategoryInput, syncTargets bool) (core.Category, CascadeReport, error) {
	report := newCascadeReport()
	if err := in.validate(); err != nil {
		return core.Category{}, report, err
	}
	updated := core.Category{ID: old.ID, OwnerID: old.OwnerID, Name: strings.TrimSpace(in.Name), Type: in.Type}

	steps := []cascadeStep{{
		primary: true,
		run: func(gw storage.Gateway) error {
			if err := gw.UpdateCategory(ctx, updated); err != nil {
				return fmt.Errorf("update category %d: %w", old.ID, err)
			}
			return nil
		},
	}}

	if updated.Name != old.Name {
		for _, table := range storage.Dependents {
			steps = append(steps, cascadeStep{table: table, run: func(gw storage.Gateway) error {
				n, err := gw.RenameDependents(ctx, table, old.OwnerID, old.Name, updated.Name)
				report.Counts[table] = n
				return err
			}})
		}
	}

	if syncTargets {
		// a category holds either a goal or a limit, never both
		stale := storage.ExpenseBudgets
		if updated.Type == core.Expense {
			stale = storage.Goals
		}
		steps = append(steps, cascadeStep{table: stale, run: func(gw storage.Gateway) error {
			n, err := gw.DeleteDependents(ctx, stale, old.OwnerID, updated.Name)
			report.Counts[stale] += n
			return err
		}})

		if in.Target != nil {
			steps = append(steps, cascadeStep{table: targetTable(updated.Type), run: func(gw storage.Gateway) error {
				table, err := upsertTarget(ctx, gw, updated, *in.Target, in.Color)
				if err == nil {
					report.Counts[table]++
				}
				return err
			}})
		}
	}

	if err := s.cascade(ctx, &report, steps); err != nil {
		return core.Category{}, newCascadeReport(), err
	}

	slog.InfoContext(ctx, "Category updated",
		applog.FieldOperation, applog.OpUpdate,
		"category_id", old.ID,
		"old_name", old.Name,
		"new_name", updated.Name,
		"type", updated.Type,
		"warnings", len(report.Warnings))
	return updated, report, nil
}

// Delete removes the category with its goal, limit and every transaction
// filed under it.
func (s *CategoryService) Delete(ctx context.Context, owner uuid.UUID, id int64) (CascadeReport, error) {
	report := newCascadeReport()
	old, err := s.gw.GetCategory(ctx, owner, id)
	if err != nil {
		return report, fmt.Errorf("get category %d: %w", id, err)
	}

	steps := []cascadeStep{{
		primary: true,
		run: func(gw storage.Gateway) error {
			if err := gw.DeleteCategory(ctx, owner, id); err != nil {
				return fmt.Errorf("delete category %d: %w", id, err)
			}
			return nil
		},
	}}
	for _, table := range storage.Dependents {
		steps = append(steps, cascadeStep{table: table, run: func(gw storage.Gateway) error {
			n, err := gw.DeleteDependents(ctx, table, owner, old.Name)
			report.Counts[table] = n
			return err
		}})
	}

	if err := s.cascade(ctx, &report, steps); err != nil {
		return newCascadeReport(), err
	}

	slog.InfoContext(ctx, "Category deleted",
		applog.FieldOperation, applog.OpDelete,
		"category_id", id,
		"name", old.Name,
		"transactions", report.Counts[storage.Transactions],
		"warnings", len(report.Warnings))
	return report, nil
}

func (s *CategoryService) cascade(ctx context.Context, report *CascadeReport, steps []cascadeStep) error {
	return runCascade(ctx, s.gw, report, steps)
}

// cascadeStep is one write of a cascading change. The primary step's error
// always fails the operation.
type cascadeStep struct {
	primary bool
	table   storage.Dependent
	run     func(storage.Gateway) error
}

// runCascade executes steps atomically when gw is a storage.TxRunner. On
// other gateways the steps run in order and dependent failures become
// warnings; the primary write is not undone.
func runCascade(ctx context.Context, gw storage.Gateway, report *CascadeReport, steps []cascadeStep) error {
	if runner, ok := gw.(storage.TxRunner); ok {
		return runner.RunInTx(ctx, func(tx storage.Gateway) error {
			for _, step := range steps {
				if err := step.run(tx); err != nil {
					if step.primary {
						return err
					}
					return core.PropagationWarning{Table: string(step.table), Err: err}
				}
			}
			return nil
		})
	}

	for _, step := range steps {
		err := step.run(gw)
		if err == nil {
			continue
		}
		if step.primary {
			return err
		}
		report.warn(ctx, step.table, err)
	}
	return nil
}

func (r *CascadeReport) warn(ctx context.Context, table storage.Dependent, err error) {
	w := core.PropagationWarning{Table: string(table), Err: err}
	slog.WarnContext(ctx, "Dependent update failed", "table", table, "error", err)
	r.Warnings = append(r.Warnings, w)
}

func targetTable(t core.TransactionType) storage.Dependent {
	if t == core.Income {
		return storage.Goals
	}
	return storage.ExpenseBudgets
}

// upsertTarget writes the goal or the limit matching the category type.
func upsertTarget(ctx context.Context, gw storage.Gateway, c core.Category, target core.Money, color string) (storage.Dependent, error) {
	table := targetTable(c.Type)
	var err error
	if c.Type == core.Income {
		if color == "" {
			color = core.DefaultGoalColor
		}
		_, err = gw.UpsertGoal(ctx, core.BudgetGoal{OwnerID: c.OwnerID, Category: c.Name, TargetAmount: target, Color: color})
	} else {
		_, err = gw.UpsertExpenseBudget(ctx, core.ExpenseBudget{OwnerID: c.OwnerID, Category: c.Name, Amount: target})
	}
	return table, err
}
