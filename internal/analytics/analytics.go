// Package analytics holds the pure aggregation functions behind the dashboard
// and analytics views. Nothing here performs I/O: callers pass in the
// transactions, goals and budgets they already loaded.
package analytics

import (
	"sort"

	"tresorerie/internal/core"
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English month name for m (1-12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}

// ShortMonthName returns the three-letter English abbreviation for m (1-12).
func ShortMonthName(m int) string {
	name := MonthName(m)
	if len(name) < 3 {
		return name
	}
	return name[:3]
}

// MonthlyMetric is the income and expense total of one calendar month.
type MonthlyMetric struct {
	Month   string     `json:"month"`
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
}

// Net is income minus expense.
func (m MonthlyMetric) Net() core.Money {
	return m.Income.Sub(m.Expense)
}

// MonthlyMetrics groups transactions by the month name of their date and sums
// each type. Rows come out most recent month first following the calendar
// table (December before November), not alphabetically. Transactions of the
// same month in different years share a row.
func MonthlyMetrics(txs []core.Transaction) []MonthlyMetric {
	var sums [12]*MonthlyMetric
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		i := tx.Date.Month() - 1
		if sums[i] == nil {
			sums[i] = &MonthlyMetric{Month: monthNames[i]}
		}
		switch tx.Type {
		case core.Income:
			sums[i].Income = sums[i].Income.Add(tx.Amount)
		case core.Expense:
			sums[i].Expense = sums[i].Expense.Add(tx.Amount)
		}
	}

	out := make([]MonthlyMetric, 0, len(sums))
	for i := len(sums) - 1; i >= 0; i-- {
		if sums[i] != nil {
			out = append(out, *sums[i])
		}
	}
	return out
}

// Progress is an overall completion summary over a set of goals.
type Progress struct {
	Earned    core.Money `json:"earned"`
	Target    core.Money `json:"target"`
	Remaining core.Money `json:"remaining"`
	Ratio     float64    `json:"ratio"`
}

// GoalProgress returns a copy of goals with CurrentAmount set to the sum of the
// Income transactions of the goal's category dated in month/year. Goals with
// no matching transaction get zero.
func GoalProgress(goals []core.BudgetGoal, txs []core.Transaction, month, year int) []core.BudgetGoal {
	totals := sumByCategory(txs, core.Income, month, year)
	out := make([]core.BudgetGoal, len(goals))
	for i, g := range goals {
		g.CurrentAmount = totals[g.Category]
		out[i] = g
	}
	return out
}

// LimitProgress is an expense budget with what was spent against it.
type LimitProgress struct {
	Budget     core.ExpenseBudget `json:"budget"`
	Spent      core.Money         `json:"spent"`
	Remaining  core.Money         `json:"remaining"`
	Ratio      float64            `json:"ratio"`
	OverBudget bool               `json:"overBudget"`
}

// ExpenseLimitProgress applies the goal rule to expense budgets: spent is the
// sum of Expense transactions of the budget's category in month/year.
func ExpenseLimitProgress(budgets []core.ExpenseBudget, txs []core.Transaction, month, year int) []LimitProgress {
	totals := sumByCategory(txs, core.Expense, month, year)
	out := make([]LimitProgress, len(budgets))
	for i, b := range budgets {
		spent := totals[b.Category]
		out[i] = LimitProgress{
			Budget:     b,
			Spent:      spent,
			Remaining:  remaining(b.Amount, spent),
			Ratio:      ratio(spent, b.Amount),
			OverBudget: spent.Cents > b.Amount.Cents,
		}
	}
	return out
}

// TotalProgress sums earned and target amounts across goals. Remaining is
// never negative and Ratio stays within [0, 1].
func TotalProgress(goals []core.BudgetGoal) Progress {
	var p Progress
	for _, g := range goals {
		p.Earned = p.Earned.Add(g.CurrentAmount)
		p.Target = p.Target.Add(g.TargetAmount)
	}
	p.Remaining = remaining(p.Target, p.Earned)
	p.Ratio = ratio(p.Earned, p.Target)
	return p
}

// StatusTotal is the amount held in one status of the treasury view.
type StatusTotal struct {
	Status core.TransactionStatus `json:"status"`
	Amount core.Money             `json:"amount"`
	Share  float64                `json:"share"`
}

// Treasury totals the transactions of type t per workflow status (To bill,
// Billed, Received for income; To pay, Paid for expenses) with each status'
// share of the total.
func Treasury(txs []core.Transaction, t core.TransactionType) []StatusTotal {
	statuses := t.Statuses()
	out := make([]StatusTotal, len(statuses))
	index := make(map[core.TransactionStatus]int, len(statuses))
	for i, s := range statuses {
		out[i].Status = s
		index[s] = i
	}

	var total core.Money
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		i, ok := index[tx.Status]
		if !ok {
			continue
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
		total = total.Add(tx.Amount)
	}
	for i := range out {
		out[i].Share = ratio(out[i].Amount, total)
	}
	return out
}

// Dashboard bundles every projection for one month.
type Dashboard struct {
	Month           int               `json:"month"`
	Year            int               `json:"year"`
	Metrics         []MonthlyMetric   `json:"metrics"`
	Revenue         []RevenueRow      `json:"revenue"`
	Goals           []core.BudgetGoal `json:"goals"`
	Limits          []LimitProgress   `json:"limits"`
	Total           Progress          `json:"total"`
	IncomeTreasury  []StatusTotal     `json:"incomeTreasury"`
	ExpenseTreasury []StatusTotal     `json:"expenseTreasury"`
}

// Compute builds the dashboard for month/year from already loaded data.
func Compute(txs []core.Transaction, goals []core.BudgetGoal, budgets []core.ExpenseBudget, month, year int) Dashboard {
	withProgress := GoalProgress(goals, txs, month, year)
	return Dashboard{
		Month:           month,
		Year:            year,
		Metrics:         MonthlyMetrics(txs),
		Revenue:         CategoryRevenueBreakdown(txs),
		Goals:           withProgress,
		Limits:          ExpenseLimitProgress(budgets, txs, month, year),
		Total:           TotalProgress(withProgress),
		IncomeTreasury:  Treasury(txs, core.Income),
		ExpenseTreasury: Treasury(txs, core.Expense),
	}
}

func sumByCategory(txs []core.Transaction, t core.TransactionType, month, year int) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, tx := range txs {
		if tx.Type != t || !tx.Date.InMonth(month, year) {
			continue
		}
		totals[tx.Category] = totals[tx.Category].Add(tx.Amount)
	}
	return totals
}

func remaining(target, done core.Money) core.Money {
	if done.Cents >= target.Cents {
		return core.Money{}
	}
	return target.Sub(done)
}

func ratio(part, whole core.Money) float64 {
	if whole.Cents <= 0 || part.Cents <= 0 {
		return 0
	}
	if part.Cents >= whole.Cents {
		return 1
	}
	return float64(part.Cents) / float64(whole.Cents)
}

func sortedKeys(m map[string]core.Money) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
