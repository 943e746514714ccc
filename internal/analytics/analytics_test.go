package analytics

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"

	"tresorerie/internal/core"
)

func tx(date string, typ core.TransactionType, category string, cents int64) core.Transaction {
	return core.Transaction{
		Date:       core.MustParseDate(date),
		EntityName: "e",
		Category:   category,
		Status:     typ.InitialStatus(),
		Amount:     core.Cents(cents),
		Type:       typ,
	}
}

func TestMonthlyMetricsOrderAndSums(t *testing.T) {
	txs := []core.Transaction{
		tx("2024-01-15", core.Income, "Salary", 100000),
		tx("2024-12-01", core.Expense, "Rent", 50000),
		tx("2024-03-31", core.Income, "Freelance", 2000),
		tx("2024-03-01", core.Expense, "Food", 1500),
		tx("2024-12-24", core.Income, "Salary", 120000),
		tx("2024-01-02", core.Expense, "Food", 500),
	}

	got := MonthlyMetrics(txs)
	want := []MonthlyMetric{
		{Month: "December", Income: core.Cents(120000), Expense: core.Cents(50000)},
		{Month: "March", Income: core.Cents(2000), Expense: core.Cents(1500)},
		{Month: "January", Income: core.Cents(100000), Expense: core.Cents(500)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected metrics:\n got %+v\nwant %+v", got, want)
	}
	if net := got[0].Net(); net.Cents != 70000 {
		t.Fatalf("expected net 70000, got %d", net.Cents)
	}
}

func TestMonthlyMetricsOrderIndependent(t *testing.T) {
	txs := []core.Transaction{
		tx("2024-02-10", core.Income, "A", 1),
		tx("2024-02-11", core.Income, "B", 10),
		tx("2024-02-12", core.Expense, "C", 100),
		tx("2024-07-01", core.Income, "A", 1000),
		tx("2024-11-30", core.Expense, "D", 10000),
	}
	want := MonthlyMetrics(txs)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]core.Transaction(nil), txs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := MonthlyMetrics(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d changed result: %+v", i, got)
		}
	}
}

func TestMonthlyMetricsEmpty(t *testing.T) {
	if got := MonthlyMetrics(nil); len(got) != 0 {
		t.Fatalf("expected no rows, got %+v", got)
	}
}

func TestGoalProgress(t *testing.T) {
	goals := []core.BudgetGoal{
		{Category: "Salary", TargetAmount: core.Cents(300000), Color: core.DefaultGoalColor},
		{Category: "Dividends", TargetAmount: core.Cents(10000)},
	}
	txs := []core.Transaction{
		tx("2024-05-01", core.Income, "Salary", 150000),
		tx("2024-05-28", core.Income, "Salary", 50000),
		tx("2024-04-30", core.Income, "Salary", 999999),  // other month
		tx("2023-05-10", core.Income, "Salary", 999999),  // other year
		tx("2024-05-15", core.Expense, "Salary", 999999), // wrong type
	}

	got := GoalProgress(goals, txs, 5, 2024)
	if got[0].CurrentAmount.Cents != 200000 {
		t.Fatalf("expected 200000, got %d", got[0].CurrentAmount.Cents)
	}
	if got[1].CurrentAmount.Cents != 0 {
		t.Fatalf("goal without transactions must be 0, got %d", got[1].CurrentAmount.Cents)
	}
	if goals[0].CurrentAmount.Cents != 0 {
		t.Fatalf("input goals must not be mutated")
	}
}

func TestGoalProgressNoTransactions(t *testing.T) {
	goals := []core.BudgetGoal{{Category: "Salary", TargetAmount: core.Cents(100)}}
	got := GoalProgress(goals, nil, 1, 2024)
	if got[0].CurrentAmount.Cents != 0 {
		t.Fatalf("expected 0, got %d", got[0].CurrentAmount.Cents)
	}
}

func TestExpenseLimitProgress(t *testing.T) {
	budgets := []core.ExpenseBudget{
		{Category: "Food", Amount: core.Cents(40000)},
		{Category: "Travel", Amount: core.Cents(10000)},
		{Category: "Gifts", Amount: core.Cents(5000)},
	}
	txs := []core.Transaction{
		tx("2024-06-02", core.Expense, "Food", 10000),
		tx("2024-06-20", core.Expense, "Food", 20000),
		tx("2024-06-05", core.Expense, "Travel", 15000),
		tx("2024-06-05", core.Income, "Gifts", 5000),
	}

	got := ExpenseLimitProgress(budgets, txs, 6, 2024)
	cases := []struct {
		spent, remaining int64
		ratio            float64
		over             bool
	}{
		{30000, 10000, 0.75, false},
		{15000, 0, 1, true},
		{0, 5000, 0, false},
	}
	for i, c := range cases {
		if got[i].Spent.Cents != c.spent || got[i].Remaining.Cents != c.remaining || got[i].Ratio != c.ratio || got[i].OverBudget != c.over {
			t.Fatalf("budget %s: unexpected %+v", budgets[i].Category, got[i])
		}
	}
}

func TestTotalProgressClamps(t *testing.T) {
	cases := []struct {
		name      string
		goals     []core.BudgetGoal
		remaining int64
		ratio     float64
	}{
		{"empty", nil, 0, 0},
		{"half", []core.BudgetGoal{{TargetAmount: core.Cents(1000), CurrentAmount: core.Cents(500)}}, 500, 0.5},
		{"exceeded", []core.BudgetGoal{{TargetAmount: core.Cents(1000), CurrentAmount: core.Cents(2500)}}, 0, 1},
		{"zero target", []core.BudgetGoal{{TargetAmount: core.Cents(0), CurrentAmount: core.Cents(20)}}, 0, 0},
		{"mixed", []core.BudgetGoal{
			{TargetAmount: core.Cents(1000), CurrentAmount: core.Cents(1500)},
			{TargetAmount: core.Cents(3000), CurrentAmount: core.Cents(500)},
		}, 2000, 0.5},
	}
	for _, tc := range cases {
		p := TotalProgress(tc.goals)
		if p.Remaining.Cents != tc.remaining || p.Ratio != tc.ratio {
			t.Fatalf("%s: unexpected progress %+v", tc.name, p)
		}
		if p.Remaining.Cents < 0 {
			t.Fatalf("%s: remaining must never be negative", tc.name)
		}
	}
}

func TestTreasury(t *testing.T) {
	txs := []core.Transaction{
		{Type: core.Income, Status: core.StatusToBill, Amount: core.Cents(2500)},
		{Type: core.Income, Status: core.StatusBilled, Amount: core.Cents(2500)},
		{Type: core.Income, Status: core.StatusReceived, Amount: core.Cents(5000)},
		{Type: core.Income, Status: core.StatusPending, Amount: core.Cents(7777)},
		{Type: core.Expense, Status: core.StatusPaid, Amount: core.Cents(100)},
	}

	income := Treasury(txs, core.Income)
	want := []StatusTotal{
		{Status: core.StatusToBill, Amount: core.Cents(2500), Share: 0.25},
		{Status: core.StatusBilled, Amount: core.Cents(2500), Share: 0.25},
		{Status: core.StatusReceived, Amount: core.Cents(5000), Share: 0.5},
	}
	if !reflect.DeepEqual(income, want) {
		t.Fatalf("unexpected income treasury %+v", income)
	}

	expense := Treasury(txs, core.Expense)
	if len(expense) != 2 || expense[0].Amount.Cents != 0 || expense[1].Share != 1 {
		t.Fatalf("unexpected expense treasury %+v", expense)
	}
}

func TestCategoryRevenueBreakdown(t *testing.T) {
	txs := []core.Transaction{
		tx("2024-01-05", core.Income, "Salary", 120050),
		tx("2024-01-20", core.Income, "Freelance", 30000),
		tx("2024-02-05", core.Income, "Salary", 120050),
		tx("2024-02-06", core.Expense, "Rent", 90000),
	}

	rows := CategoryRevenueBreakdown(txs)
	if len(rows) != 2 || rows[0].Month != "Feb" || rows[1].Month != "Jan" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if _, ok := rows[0].Amounts["Freelance"]; ok {
		t.Fatalf("categories without income must be omitted, got %+v", rows[0].Amounts)
	}
	if _, ok := rows[0].Amounts["Rent"]; ok {
		t.Fatalf("expense categories must be omitted")
	}

	b, err := json.Marshal(rows[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"month":"Jan","Freelance":300,"Salary":1200.5}` {
		t.Fatalf("unexpected encoding %s", b)
	}

	var back RevenueRow
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, rows[1]) {
		t.Fatalf("decoded row differs: %+v", back)
	}
}

func TestComputeDashboard(t *testing.T) {
	txs := []core.Transaction{
		tx("2024-05-03", core.Income, "Salary", 200000),
		tx("2024-05-04", core.Expense, "Food", 12000),
	}
	goals := []core.BudgetGoal{{Category: "Salary", TargetAmount: core.Cents(400000)}}
	budgets := []core.ExpenseBudget{{Category: "Food", Amount: core.Cents(10000)}}

	d := Compute(txs, goals, budgets, 5, 2024)
	if d.Total.Ratio != 0.5 || d.Total.Remaining.Cents != 200000 {
		t.Fatalf("unexpected total %+v", d.Total)
	}
	if !d.Limits[0].OverBudget {
		t.Fatalf("expected food budget to be exceeded")
	}
	if len(d.Metrics) != 1 || d.Metrics[0].Month != "May" {
		t.Fatalf("unexpected metrics %+v", d.Metrics)
	}
}
