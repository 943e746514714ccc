package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tresorerie/internal/analytics"
	"tresorerie/internal/cache"
	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

// Snapshot is everything the dashboard projections read for one owner.
type Snapshot struct {
	Transactions []core.Transaction   `json:"transactions"`
	Goals        []core.BudgetGoal    `json:"goals"`
	Budgets      []core.ExpenseBudget `json:"budgets"`
}

// AnalyticsService loads an owner's data and runs the pure projections of
// package analytics over it. Without a cache every call reads the store, so
// projections always reflect the latest writes. With a cache, snapshots are
// kept per owner until Invalidate or the cache TTL drops them.
type AnalyticsService struct {
	gw    storage.Gateway
	cache cache.Cache[*Snapshot]

	mu sync.Mutex
	// generation is bumped by Invalidate; a load that overlapped one is
	// returned but not cached.
	generation map[uuid.UUID]uint64
}

// NewAnalyticsService creates the service. c may be nil to disable caching.
func NewAnalyticsService(gw storage.Gateway, c cache.Cache[*Snapshot]) *AnalyticsService {
	return &AnalyticsService{gw: gw, cache: c, generation: map[uuid.UUID]uint64{}}
}

// Snapshot loads transactions, goals and budgets concurrently.
func (s *AnalyticsService) Snapshot(ctx context.Context, owner uuid.UUID) (*Snapshot, error) {
	key := owner.String()
	var gen uint64
	if s.cache != nil {
		if snap, ok := s.cache.Get(key); ok {
			return snap, nil
		}
		gen = s.currentGeneration(owner)
	}

	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.gw.ListTransactions(gctx, owner)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		goals, err := s.gw.ListGoals(gctx, owner)
		if err != nil {
			return fmt.Errorf("list goals: %w", err)
		}
		snap.Goals = goals
		return nil
	})
	g.Go(func() error {
		budgets, err := s.gw.ListExpenseBudgets(gctx, owner)
		if err != nil {
			return fmt.Errorf("list expense budgets: %w", err)
		}
		snap.Budgets = budgets
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.mu.Lock()
		if s.generation[owner] == gen {
			s.cache.Set(key, snap)
		}
		s.mu.Unlock()
	}
	return snap, nil
}

func (s *AnalyticsService) currentGeneration(owner uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation[owner]
}

// Dashboard computes every projection for month/year.
func (s *AnalyticsService) Dashboard(ctx context.Context, owner uuid.UUID, month, year int) (analytics.Dashboard, error) {
	if err := validatePeriod(month, year); err != nil {
		return analytics.Dashboard{}, err
	}

	snap, err := s.Snapshot(ctx, owner)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	return analytics.Compute(snap.Transactions, snap.Goals, snap.Budgets, month, year), nil
}

// Compute runs the projections over caller-supplied data without touching
// the store.
func (s *AnalyticsService) Compute(snap Snapshot, month, year int) (analytics.Dashboard, error) {
	if err := validatePeriod(month, year); err != nil {
		return analytics.Dashboard{}, err
	}
	return analytics.Compute(snap.Transactions, snap.Goals, snap.Budgets, month, year), nil
}

// CachedSnapshots reports how many owners have a cached snapshot.
func (s *AnalyticsService) CachedSnapshots() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Size()
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: %d", core.ErrInvalidMonth, month)
	}
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: year %d out of range", core.ErrValidation, year)
	}
	return nil
}

// Invalidate drops the cached snapshot of owner and keeps loads already in
// flight from caching what they read.
func (s *AnalyticsService) Invalidate(owner uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation[owner]++
	s.cache.Delete(owner.String())
}
