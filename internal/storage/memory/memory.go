// Package memory is an in-process storage.Gateway used by tests and the
// memory backend. It offers no multi-call atomicity: cascades against it run
// as sequential steps.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	nextID    int64
	templates map[int64]core.RecurringTemplate
	txs       map[int64]core.Transaction
	cats      map[int64]core.Category
	goals     map[int64]core.BudgetGoal
	budgets   map[int64]core.ExpenseBudget
	tags      map[int64]core.Tag
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		templates: map[int64]core.RecurringTemplate{},
		txs:       map[int64]core.Transaction{},
		cats:      map[int64]core.Category{},
		goals:     map[int64]core.BudgetGoal{},
		budgets:   map[int64]core.ExpenseBudget{},
		tags:      map[int64]core.Tag{},
	}
}

// NewFromFile builds a store whose owner gets the categories listed in path,
// one "Type,Name" pair per line ("Expense,Rent"). A line without a type is an
// Expense category. Blank lines and # comments are skipped; a missing file
// yields an empty store.
func NewFromFile(path string, owner uuid.UUID) (*Store, error) {
	s := New()
	for _, line := range readLines(path) {
		typ, name := core.Expense, line
		if before, after, ok := strings.Cut(line, ","); ok {
			typ, name = core.TransactionType(strings.TrimSpace(before)), strings.TrimSpace(after)
		}
		c := core.Category{OwnerID: owner, Name: name, Type: typ}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", line, err)
		}
		if _, err := s.InsertCategory(context.Background(), c); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", line, err)
		}
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Recurring templates

func (s *Store) ListActiveDueTemplates(_ context.Context, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringTemplate
	for _, rt := range s.templates {
		if rt.OwnerID == owner && rt.Active && !rt.NextRunDate.After(asOf) {
			out = append(out, rt)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) ListOwnersWithDueTemplates(_ context.Context, asOf core.Date) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, rt := range s.templates {
		if !rt.Active || rt.NextRunDate.After(asOf) {
			continue
		}
		if _, ok := seen[rt.OwnerID]; ok {
			continue
		}
		seen[rt.OwnerID] = struct{}{}
		out = append(out, rt.OwnerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *Store) InsertTemplate(_ context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt.ID = s.id()
	s.templates[rt.ID] = rt
	return rt, nil
}

func (s *Store) GetTemplate(_ context.Context, owner uuid.UUID, id int64) (core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.templates[id]
	if !ok || rt.OwnerID != owner {
		return core.RecurringTemplate{}, core.ErrNotFound
	}
	return rt, nil
}

func (s *Store) ListTemplates(_ context.Context, owner uuid.UUID) ([]core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringTemplate
	for _, rt := range s.templates {
		if rt.OwnerID == owner {
			out = append(out, rt)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (s *Store) UpdateTemplateSchedule(_ context.Context, owner uuid.UUID, id int64, last, next core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.templates[id]
	if !ok || rt.OwnerID != owner {
		return core.ErrNotFound
	}
	rt.LastRunDate = &last
	rt.NextRunDate = next
	s.templates[id] = rt
	return nil
}

func (s *Store) SetTemplateActive(_ context.Context, owner uuid.UUID, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.templates[id]
	if !ok || rt.OwnerID != owner {
		return core.ErrNotFound
	}
	rt.Active = active
	s.templates[id] = rt
	return nil
}

func (s *Store) DeleteTemplate(_ context.Context, owner uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.templates[id]
	if !ok || rt.OwnerID != owner {
		return core.ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

// Transactions

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.id()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, owner uuid.UUID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.OwnerID != owner {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.txs[tx.ID]
	if !ok || old.OwnerID != tx.OwnerID {
		return core.Transaction{}, core.ErrNotFound
	}
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.OwnerID != owner {
		return core.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

// ListTransactions returns the owner's transactions, most recent date first.
func (s *Store) ListTransactions(_ context.Context, owner uuid.UUID) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.OwnerID == owner {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Categories

func (s *Store) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findCategory(c.OwnerID, c.Name, c.Type, 0) != nil {
		return core.Category{}, fmt.Errorf("%w: category %q (%s)", core.ErrConflict, c.Name, c.Type)
	}
	c.ID = s.id()
	s.cats[c.ID] = c
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, owner uuid.UUID, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok || c.OwnerID != owner {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindCategory(_ context.Context, owner uuid.UUID, name string, t core.TransactionType) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findCategory(owner, name, t, 0); c != nil {
		return *c, nil
	}
	return core.Category{}, core.ErrNotFound
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.cats[c.ID]
	if !ok || old.OwnerID != c.OwnerID {
		return core.ErrNotFound
	}
	if s.findCategory(c.OwnerID, c.Name, c.Type, c.ID) != nil {
		return fmt.Errorf("%w: category %q (%s)", core.ErrConflict, c.Name, c.Type)
	}
	s.cats[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, owner uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok || c.OwnerID != owner {
		return core.ErrNotFound
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context, owner uuid.UUID) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.cats {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) findCategory(owner uuid.UUID, name string, t core.TransactionType, except int64) *core.Category {
	for id, c := range s.cats {
		if id != except && c.OwnerID == owner && c.Name == name && c.Type == t {
			return &c
		}
	}
	return nil
}

// Goals and expense budgets

func (s *Store) ListGoals(_ context.Context, owner uuid.UUID) ([]core.BudgetGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetGoal
	for _, g := range s.goals {
		if g.OwnerID == owner {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) ListExpenseBudgets(_ context.Context, owner uuid.UUID) ([]core.ExpenseBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ExpenseBudget
	for _, b := range s.budgets {
		if b.OwnerID == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) UpsertGoal(_ context.Context, g core.BudgetGoal) (core.BudgetGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.goals {
		if existing.OwnerID == g.OwnerID && existing.Category == g.Category {
			g.ID = id
			s.goals[id] = g
			return g, nil
		}
	}
	g.ID = s.id()
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) UpsertExpenseBudget(_ context.Context, b core.ExpenseBudget) (core.ExpenseBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.budgets {
		if existing.OwnerID == b.OwnerID && existing.Category == b.Category {
			b.ID = id
			s.budgets[id] = b
			return b, nil
		}
	}
	b.ID = s.id()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) DeleteGoal(ctx context.Context, owner uuid.UUID, category string) error {
	n, _ := s.DeleteDependents(ctx, storage.Goals, owner, category)
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpenseBudget(ctx context.Context, owner uuid.UUID, category string) error {
	n, _ := s.DeleteDependents(ctx, storage.ExpenseBudgets, owner, category)
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Category propagation

func (s *Store) RenameDependents(_ context.Context, table storage.Dependent, owner uuid.UUID, oldName, newName string) (int64, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	switch table {
	case storage.Goals:
		for id, g := range s.goals {
			if g.OwnerID == owner && g.Category == oldName {
				g.Category = newName
				s.goals[id] = g
				n++
			}
		}
	case storage.ExpenseBudgets:
		for id, b := range s.budgets {
			if b.OwnerID == owner && b.Category == oldName {
				b.Category = newName
				s.budgets[id] = b
				n++
			}
		}
	case storage.Transactions:
		for id, tx := range s.txs {
			if tx.OwnerID == owner && tx.Category == oldName {
				tx.Category = newName
				s.txs[id] = tx
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) DeleteDependents(_ context.Context, table storage.Dependent, owner uuid.UUID, category string) (int64, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	switch table {
	case storage.Goals:
		for id, g := range s.goals {
			if g.OwnerID == owner && g.Category == category {
				delete(s.goals, id)
				n++
			}
		}
	case storage.ExpenseBudgets:
		for id, b := range s.budgets {
			if b.OwnerID == owner && b.Category == category {
				delete(s.budgets, id)
				n++
			}
		}
	case storage.Transactions:
		for id, tx := range s.txs {
			if tx.OwnerID == owner && tx.Category == category {
				delete(s.txs, id)
				n++
			}
		}
	}
	return n, nil
}

// Tags

func (s *Store) InsertTag(_ context.Context, t core.Tag) (core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags {
		if existing.OwnerID == t.OwnerID && existing.Name == t.Name {
			return core.Tag{}, fmt.Errorf("%w: tag %q", core.ErrConflict, t.Name)
		}
	}
	t.ID = s.id()
	s.tags[t.ID] = t
	return t, nil
}

func (s *Store) GetTag(_ context.Context, owner uuid.UUID, id int64) (core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok || t.OwnerID != owner {
		return core.Tag{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTags(_ context.Context, owner uuid.UUID) ([]core.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Tag
	for _, t := range s.tags {
		if t.OwnerID == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteTag(_ context.Context, owner uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[id]
	if !ok || t.OwnerID != owner {
		return core.ErrNotFound
	}
	delete(s.tags, id)
	return nil
}

func (s *Store) ClearTagFromTransactions(_ context.Context, owner uuid.UUID, tag string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, tx := range s.txs {
		if tx.OwnerID == owner && tx.Tag == tag {
			tx.Tag = ""
			s.txs[id] = tx
			n++
		}
	}
	return n, nil
}

func sortTemplates(ts []core.RecurringTemplate) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].NextRunDate.Equal(ts[j].NextRunDate) {
			return ts[i].NextRunDate.Before(ts[j].NextRunDate)
		}
		return ts[i].ID < ts[j].ID
	})
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
