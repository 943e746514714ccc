package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage"
)

// Scheduler computes the occurrence that follows from for one frequency.
type Scheduler interface {
	Next(from core.Date) core.Date
}

// WeeklyScheduler repeats every 7 days.
type WeeklyScheduler struct{}

func (WeeklyScheduler) Next(from core.Date) core.Date {
	return from.AddDays(7)
}

// MonthlyScheduler keeps the day of month, clamped to the target month's
// last day (Jan 31 -> Feb 29 in leap years).
type MonthlyScheduler struct{}

func (MonthlyScheduler) Next(from core.Date) core.Date {
	return from.AddMonths(1)
}

// YearlyScheduler keeps month and day; Feb 29 becomes Feb 28.
type YearlyScheduler struct{}

func (YearlyScheduler) Next(from core.Date) core.Date {
	return from.AddYears(1)
}

var (
	schedulersMu sync.RWMutex
	schedulers   = map[core.Frequency]Scheduler{
		core.Weekly:  WeeklyScheduler{},
		core.Monthly: MonthlyScheduler{},
		core.Yearly:  YearlyScheduler{},
	}
)

// GetScheduler returns the scheduler registered for f.
func GetScheduler(f core.Frequency) (Scheduler, error) {
	schedulersMu.RLock()
	s, ok := schedulers[f]
	schedulersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no scheduler for frequency %q", core.ErrValidation, string(f))
	}
	return s, nil
}

// RegisterScheduler replaces the scheduler used for f.
func RegisterScheduler(f core.Frequency, s Scheduler) {
	schedulersMu.Lock()
	defer schedulersMu.Unlock()
	schedulers[f] = s
}

// NextRunDate returns the occurrence after from.
func NextRunDate(from core.Date, f core.Frequency) (core.Date, error) {
	s, err := GetScheduler(f)
	if err != nil {
		return core.Date{}, err
	}
	return s.Next(from), nil
}

// IsDue reports whether rt should be materialized on asOf.
func IsDue(rt core.RecurringTemplate, asOf core.Date) bool {
	return rt.Active && !rt.NextRunDate.After(asOf)
}

// FindDueTemplates lists the owner's due templates ordered by next run date, then id.
func FindDueTemplates(ctx context.Context, gw storage.Gateway, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error) {
	listed, err := gw.ListActiveDueTemplates(ctx, owner, asOf)
	if err != nil {
		return nil, fmt.Errorf("list due templates: %w", err)
	}

	due := make([]core.RecurringTemplate, 0, len(listed))
	for _, rt := range listed {
		if IsDue(rt, asOf) {
			due = append(due, rt)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].NextRunDate.Equal(due[j].NextRunDate) {
			return due[i].NextRunDate.Before(due[j].NextRunDate)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}
