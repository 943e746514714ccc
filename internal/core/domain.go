package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

const (
	StatusToBill   TransactionStatus = "To bill"
	StatusBilled   TransactionStatus = "Billed"
	StatusReceived TransactionStatus = "Received"
	StatusToPay    TransactionStatus = "To pay"
	StatusPaid     TransactionStatus = "Paid"
	StatusPending  TransactionStatus = "Pending"
)

const (
	Weekly  Frequency = "Weekly"
	Monthly Frequency = "Monthly"
	Yearly  Frequency = "Yearly"
)

// DefaultGoalColor is used when a goal is created without an explicit color.
const DefaultGoalColor = "#4318FF"

const maxNameLength = 200

type (
	TransactionType   string
	TransactionStatus string
	Frequency         string

	Transaction struct {
		ID         int64             `json:"id"`
		OwnerID    uuid.UUID         `json:"user_id"`
		Date       Date              `json:"date"`
		EntityName string            `json:"entityName"`
		Category   string            `json:"category"`
		Tag        string            `json:"tag,omitempty"` // empty means no tag
		Status     TransactionStatus `json:"status"`
		Amount     Money             `json:"amount"`
		Type       TransactionType   `json:"type"`
	}

	RecurringTemplate struct {
		ID          int64           `json:"id"`
		OwnerID     uuid.UUID       `json:"user_id"`
		EntityName  string          `json:"entity_name"`
		Category    string          `json:"category"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		Frequency   Frequency       `json:"frequency"`
		StartDate   Date            `json:"start_date"`
		LastRunDate *Date           `json:"last_run_date"`
		NextRunDate Date            `json:"next_run_date"`
		Active      bool            `json:"active"`
	}

	Category struct {
		ID      int64           `json:"id"`
		OwnerID uuid.UUID       `json:"user_id"`
		Name    string          `json:"name"`
		Type    TransactionType `json:"type"`
	}

	// BudgetGoal is an income-side monthly target. CurrentAmount is a
	// projection over transactions and is never read back as stored truth.
	BudgetGoal struct {
		ID            int64     `json:"id"`
		OwnerID       uuid.UUID `json:"user_id"`
		Category      string    `json:"category"`
		TargetAmount  Money     `json:"targetAmount"`
		CurrentAmount Money     `json:"currentAmount"`
		Color         string    `json:"color"`
	}

	// ExpenseBudget is an expense-side monthly limit.
	ExpenseBudget struct {
		ID       int64     `json:"id"`
		OwnerID  uuid.UUID `json:"user_id"`
		Category string    `json:"category"`
		Amount   Money     `json:"amount"`
	}

	Tag struct {
		ID      int64     `json:"id"`
		OwnerID uuid.UUID `json:"user_id"`
		Name    string    `json:"name"`
	}
)

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return validationf("unknown transaction type %q", string(t))
	}
}

// Opposite returns the other transaction type.
func (t TransactionType) Opposite() TransactionType {
	if t == Income {
		return Expense
	}
	return Income
}

// InitialStatus is the status given to freshly materialized transactions.
func (t TransactionType) InitialStatus() TransactionStatus {
	if t == Income {
		return StatusToBill
	}
	return StatusToPay
}

// Statuses lists the statuses a transaction of this type moves through.
func (t TransactionType) Statuses() []TransactionStatus {
	if t == Income {
		return []TransactionStatus{StatusToBill, StatusBilled, StatusReceived}
	}
	return []TransactionStatus{StatusToPay, StatusPaid}
}

// AllowsStatus reports whether s is valid for a transaction of type t.
func (t TransactionType) AllowsStatus(s TransactionStatus) bool {
	if s == StatusPending {
		return true
	}
	for _, allowed := range t.Statuses() {
		if allowed == s {
			return true
		}
	}
	return false
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly, Yearly:
		return nil
	default:
		return validationf("unknown frequency %q", string(f))
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := validateName("entity name", t.EntityName); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return validationf("category is required")
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if !t.Type.AllowsStatus(t.Status) {
		return validationf("status %q is not valid for %s transactions", string(t.Status), t.Type)
	}
	return t.Amount.Validate()
}

func (rt RecurringTemplate) Validate() error {
	if err := validateName("entity name", rt.EntityName); err != nil {
		return err
	}
	if strings.TrimSpace(rt.Category) == "" {
		return validationf("category is required")
	}
	if err := rt.Type.Validate(); err != nil {
		return err
	}
	if err := rt.Frequency.Validate(); err != nil {
		return err
	}
	if err := rt.Amount.Validate(); err != nil {
		return err
	}
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if err := rt.NextRunDate.Validate(); err != nil {
		return fmt.Errorf("next run date: %w", err)
	}

	// next run never precedes the last run, or the start when never run
	floor := rt.StartDate
	if rt.LastRunDate != nil {
		floor = *rt.LastRunDate
	}
	if rt.NextRunDate.Before(floor) {
		return validationf("next run date %s precedes %s", rt.NextRunDate, floor)
	}
	return nil
}

// State returns "Active" or "Paused".
func (rt RecurringTemplate) State() string {
	if rt.Active {
		return "Active"
	}
	return "Paused"
}

func (c Category) Validate() error {
	if err := validateName("category name", c.Name); err != nil {
		return err
	}
	return c.Type.Validate()
}

func (g BudgetGoal) Validate() error {
	if strings.TrimSpace(g.Category) == "" {
		return validationf("category is required")
	}
	return g.TargetAmount.Validate()
}

func (b ExpenseBudget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return validationf("category is required")
	}
	return b.Amount.Validate()
}

func (t Tag) Validate() error {
	return validateName("tag name", t.Name)
}

func validateName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return validationf("%s is required", field)
	}
	if len(v) > maxNameLength {
		return validationf("%s too long (max %d characters)", field, maxNameLength)
	}
	return nil
}
