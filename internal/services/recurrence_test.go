package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"tresorerie/internal/core"
	"tresorerie/internal/storage/memory"
)

func TestNextRunDate(t *testing.T) {
	tests := []struct {
		name string
		from string
		freq core.Frequency
		want string
	}{
		{"weekly", "2024-03-01", core.Weekly, "2024-03-08"},
		{"weekly across year end", "2024-12-28", core.Weekly, "2025-01-04"},
		{"monthly same day", "2024-03-15", core.Monthly, "2024-04-15"},
		{"monthly clamps to leap february", "2024-01-31", core.Monthly, "2024-02-29"},
		{"monthly clamps to february", "2023-01-31", core.Monthly, "2023-02-28"},
		{"monthly clamps to 30 day month", "2024-03-31", core.Monthly, "2024-04-30"},
		{"monthly december rolls year", "2024-12-31", core.Monthly, "2025-01-31"},
		{"yearly", "2024-06-10", core.Yearly, "2025-06-10"},
		{"yearly leap day", "2024-02-29", core.Yearly, "2025-02-28"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRunDate(core.MustParseDate(tt.from), tt.freq)
			if err != nil {
				t.Fatalf("NextRunDate() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("NextRunDate(%s, %s) = %s, want %s", tt.from, tt.freq, got, tt.want)
			}
		})
	}
}

func TestNextRunDate_UnknownFrequency(t *testing.T) {
	_, err := NextRunDate(core.MustParseDate("2024-01-01"), core.Frequency("Daily"))
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNextRunDate_WeeklyTwiceIsFourteenDays(t *testing.T) {
	from := core.MustParseDate("2024-02-20")
	once, _ := NextRunDate(from, core.Weekly)
	twice, _ := NextRunDate(once, core.Weekly)
	if want := from.AddDays(14); !twice.Equal(want) {
		t.Errorf("two weekly steps = %s, want %s", twice, want)
	}
}

func TestNextRunDate_StrictlyIncreasing(t *testing.T) {
	d := core.MustParseDate("2023-01-31")
	for _, f := range []core.Frequency{core.Weekly, core.Monthly, core.Yearly} {
		cur := d
		for i := 0; i < 30; i++ {
			next, err := NextRunDate(cur, f)
			if err != nil {
				t.Fatalf("NextRunDate() error = %v", err)
			}
			if !next.After(cur) {
				t.Fatalf("%s: %s does not follow %s", f, next, cur)
			}
			cur = next
		}
	}
}

type fortnightly struct{}

func (fortnightly) Next(from core.Date) core.Date { return from.AddDays(14) }

func TestRegisterScheduler(t *testing.T) {
	original, err := GetScheduler(core.Weekly)
	if err != nil {
		t.Fatalf("GetScheduler() error = %v", err)
	}
	t.Cleanup(func() { RegisterScheduler(core.Weekly, original) })

	RegisterScheduler(core.Weekly, fortnightly{})
	got, _ := NextRunDate(core.MustParseDate("2024-01-01"), core.Weekly)
	if got.String() != "2024-01-15" {
		t.Errorf("registered scheduler not used, got %s", got)
	}
}

func TestIsDue(t *testing.T) {
	asOf := core.MustParseDate("2024-05-10")
	tests := []struct {
		name   string
		next   string
		active bool
		want   bool
	}{
		{"past and active", "2024-05-01", true, true},
		{"today and active", "2024-05-10", true, true},
		{"future", "2024-05-11", true, false},
		{"paused in the past", "2024-01-01", false, false},
		{"paused today", "2024-05-10", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := core.RecurringTemplate{NextRunDate: core.MustParseDate(tt.next), Active: tt.active}
			if got := IsDue(rt, asOf); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindDueTemplates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	owner := uuid.New()

	insert := func(owner uuid.UUID, name, next string, active bool) core.RecurringTemplate {
		t.Helper()
		rt, err := store.InsertTemplate(ctx, core.RecurringTemplate{
			OwnerID:     owner,
			EntityName:  name,
			Category:    "Bills",
			Amount:      core.Cents(1000),
			Type:        core.Expense,
			Frequency:   core.Monthly,
			StartDate:   core.MustParseDate(next),
			NextRunDate: core.MustParseDate(next),
			Active:      active,
		})
		if err != nil {
			t.Fatalf("InsertTemplate() error = %v", err)
		}
		return rt
	}

	late := insert(owner, "late", "2024-03-05", true)
	early := insert(owner, "early", "2024-03-01", true)
	sameDay := insert(owner, "same day", "2024-03-05", true)
	insert(owner, "paused", "2024-02-01", false)
	insert(owner, "future", "2024-04-01", true)
	insert(uuid.New(), "other owner", "2024-01-01", true)

	due, err := FindDueTemplates(ctx, store, owner, core.MustParseDate("2024-03-10"))
	if err != nil {
		t.Fatalf("FindDueTemplates() error = %v", err)
	}

	var got []int64
	for _, rt := range due {
		got = append(got, rt.ID)
	}
	want := []int64{early.ID, late.ID, sameDay.ID}
	if len(got) != len(want) {
		t.Fatalf("due ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("due ids = %v, want %v", got, want)
			break
		}
	}
}
