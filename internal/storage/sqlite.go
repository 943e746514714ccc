package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tresorerie/internal/core"
	applog "tresorerie/internal/log"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries implements Gateway with SQLite SQL on top of a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Gateway = (*Queries)(nil)

// SQLiteStore owns the database handle behind Queries.
type SQLiteStore struct {
	*Queries
	db *sql.DB
}

var (
	_ Store    = (*SQLiteStore)(nil)
	_ TxRunner = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{Queries: New(db), db: db}, nil
}

func sqliteDSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunInTx runs fn against a Gateway bound to one SQLite transaction.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(Gateway) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewGatewayError("begin tx", err)
	}
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.NewGatewayError("commit tx", err)
	}
	return nil
}

func sqliteErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %s", core.ErrConflict, op)
	}
	return core.NewGatewayError(op, err)
}

func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return sqliteErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return sqliteErr(op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(d *core.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

// Recurring templates

const templateColumns = `id, user_id, entity_name, category, amount_cents, type, frequency, start_date, last_run_date, next_run_date, active`

func scanTemplate(row rowScanner) (core.RecurringTemplate, error) {
	var rt core.RecurringTemplate
	var last core.Date
	err := row.Scan(&rt.ID, &rt.OwnerID, &rt.EntityName, &rt.Category, &rt.Amount.Cents, &rt.Type,
		&rt.Frequency, &rt.StartDate, &last, &rt.NextRunDate, &rt.Active)
	if err != nil {
		return rt, err
	}
	if !last.IsZero() {
		rt.LastRunDate = &last
	}
	return rt, nil
}

func (q *Queries) queryTemplates(ctx context.Context, op, query string, args ...any) ([]core.RecurringTemplate, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(op, err)
	}
	defer rows.Close()
	var out []core.RecurringTemplate
	for rows.Next() {
		rt, err := scanTemplate(rows)
		if err != nil {
			return nil, sqliteErr(op, err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(op, err)
	}
	return out, nil
}

func (q *Queries) ListActiveDueTemplates(ctx context.Context, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error) {
	return q.queryTemplates(ctx, "list due templates",
		`SELECT `+templateColumns+` FROM recurring_transactions
		WHERE user_id = ? AND active = 1 AND next_run_date <= ?
		ORDER BY next_run_date, id`, owner.String(), asOf.String())
}

func (q *Queries) ListOwnersWithDueTemplates(ctx context.Context, asOf core.Date) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_transactions
		WHERE active = 1 AND next_run_date <= ? ORDER BY user_id`, asOf.String())
	if err != nil {
		return nil, sqliteErr("list owners with due templates", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, sqliteErr("list owners with due templates", err)
		}
		out = append(out, id)
	}
	return out, sqliteErr("list owners with due templates", rows.Err())
}

func (q *Queries) InsertTemplate(ctx context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO recurring_transactions
		(user_id, entity_name, category, amount_cents, type, frequency, start_date, last_run_date, next_run_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		rt.OwnerID.String(), rt.EntityName, rt.Category, rt.Amount.Cents, string(rt.Type), string(rt.Frequency),
		rt.StartDate.String(), nullDate(rt.LastRunDate), rt.NextRunDate.String(), rt.Active,
	).Scan(&rt.ID)
	if err != nil {
		return core.RecurringTemplate{}, sqliteErr("insert template", err)
	}
	return rt, nil
}

func (q *Queries) GetTemplate(ctx context.Context, owner uuid.UUID, id int64) (core.RecurringTemplate, error) {
	rt, err := scanTemplate(q.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_transactions WHERE id = ? AND user_id = ?`, id, owner.String()))
	if err != nil {
		return core.RecurringTemplate{}, sqliteErr("get template", err)
	}
	return rt, nil
}

func (q *Queries) ListTemplates(ctx context.Context, owner uuid.UUID) ([]core.RecurringTemplate, error) {
	return q.queryTemplates(ctx, "list templates",
		`SELECT `+templateColumns+` FROM recurring_transactions WHERE user_id = ? ORDER BY next_run_date, id`,
		owner.String())
}

func (q *Queries) UpdateTemplateSchedule(ctx context.Context, owner uuid.UUID, id int64, last, next core.Date) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET last_run_date = ?, next_run_date = ? WHERE id = ? AND user_id = ?`,
		last.String(), next.String(), id, owner.String())
	return affectedOne("update template schedule", res, err)
}

func (q *Queries) SetTemplateActive(ctx context.Context, owner uuid.UUID, id int64, active bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET active = ? WHERE id = ? AND user_id = ?`, active, id, owner.String())
	return affectedOne("set template active", res, err)
}

func (q *Queries) DeleteTemplate(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM recurring_transactions WHERE id = ? AND user_id = ?`, id, owner.String())
	return affectedOne("delete template", res, err)
}

// Transactions

const transactionColumns = `id, user_id, date, entity_name, category, tag, status, amount_cents, type`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var tag sql.NullString
	err := row.Scan(&tx.ID, &tx.OwnerID, &tx.Date, &tx.EntityName, &tx.Category, &tag, &tx.Status, &tx.Amount.Cents, &tx.Type)
	tx.Tag = tag.String
	return tx, err
}

func (q *Queries) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, date, entity_name, category, tag, status, amount_cents, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		tx.OwnerID.String(), tx.Date.String(), tx.EntityName, tx.Category, nullString(tx.Tag),
		string(tx.Status), tx.Amount.Cents, string(tx.Type),
	).Scan(&tx.ID)
	if err != nil {
		return core.Transaction{}, sqliteErr("insert transaction", err)
	}
	slog.DebugContext(ctx, "Transaction saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpCreate,
		applog.FieldTransactionID, tx.ID,
		applog.FieldCategory, tx.Category,
		applog.FieldAmountCents, tx.Amount.Cents)
	return tx, nil
}

func (q *Queries) GetTransaction(ctx context.Context, owner uuid.UUID, id int64) (core.Transaction, error) {
	tx, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, owner.String()))
	if err != nil {
		return core.Transaction{}, sqliteErr("get transaction", err)
	}
	return tx, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET date = ?, entity_name = ?, category = ?, tag = ?, status = ?, amount_cents = ?, type = ?
		WHERE id = ? AND user_id = ?`,
		tx.Date.String(), tx.EntityName, tx.Category, nullString(tx.Tag), string(tx.Status), tx.Amount.Cents,
		string(tx.Type), tx.ID, tx.OwnerID.String())
	if err := affectedOne("update transaction", res, err); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, owner.String())
	return affectedOne("delete transaction", res, err)
}

func (q *Queries) ListTransactions(ctx context.Context, owner uuid.UUID) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY date DESC, id DESC`, owner.String())
	if err != nil {
		return nil, sqliteErr("list transactions", err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, sqliteErr("list transactions", err)
		}
		out = append(out, tx)
	}
	return out, sqliteErr("list transactions", rows.Err())
}

// Categories

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO categories (user_id, name, type) VALUES (?, ?, ?) RETURNING id`,
		c.OwnerID.String(), c.Name, string(c.Type)).Scan(&c.ID)
	if err != nil {
		return core.Category{}, sqliteErr("insert category", err)
	}
	return c, nil
}

func (q *Queries) GetCategory(ctx context.Context, owner uuid.UUID, id int64) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE id = ? AND user_id = ?`, id, owner.String(),
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type)
	if err != nil {
		return core.Category{}, sqliteErr("get category", err)
	}
	return c, nil
}

func (q *Queries) FindCategory(ctx context.Context, owner uuid.UUID, name string, t core.TransactionType) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = ? AND name = ? AND type = ?`,
		owner.String(), name, string(t),
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type)
	if err != nil {
		return core.Category{}, sqliteErr("find category", err)
	}
	return c, nil
}

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ? WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Type), c.ID, c.OwnerID.String())
	return affectedOne("update category", res, err)
}

func (q *Queries) DeleteCategory(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, owner.String())
	return affectedOne("delete category", res, err)
}

func (q *Queries) ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = ? ORDER BY name, id`, owner.String())
	if err != nil {
		return nil, sqliteErr("list categories", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type); err != nil {
			return nil, sqliteErr("list categories", err)
		}
		out = append(out, c)
	}
	return out, sqliteErr("list categories", rows.Err())
}

// Goals and expense budgets

func (q *Queries) ListGoals(ctx context.Context, owner uuid.UUID) ([]core.BudgetGoal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, category, target_amount_cents, color FROM budget_goals WHERE user_id = ? ORDER BY category`,
		owner.String())
	if err != nil {
		return nil, sqliteErr("list goals", err)
	}
	defer rows.Close()
	var out []core.BudgetGoal
	for rows.Next() {
		var g core.BudgetGoal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Category, &g.TargetAmount.Cents, &g.Color); err != nil {
			return nil, sqliteErr("list goals", err)
		}
		out = append(out, g)
	}
	return out, sqliteErr("list goals", rows.Err())
}

func (q *Queries) ListExpenseBudgets(ctx context.Context, owner uuid.UUID) ([]core.ExpenseBudget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, category, amount_cents FROM expense_budgets WHERE user_id = ? ORDER BY category`,
		owner.String())
	if err != nil {
		return nil, sqliteErr("list expense budgets", err)
	}
	defer rows.Close()
	var out []core.ExpenseBudget
	for rows.Next() {
		var b core.ExpenseBudget
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Category, &b.Amount.Cents); err != nil {
			return nil, sqliteErr("list expense budgets", err)
		}
		out = append(out, b)
	}
	return out, sqliteErr("list expense budgets", rows.Err())
}

func (q *Queries) UpsertGoal(ctx context.Context, g core.BudgetGoal) (core.BudgetGoal, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO budget_goals (user_id, category, target_amount_cents, color) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, category) DO UPDATE SET
			target_amount_cents = excluded.target_amount_cents,
			color = excluded.color
		RETURNING id`,
		g.OwnerID.String(), g.Category, g.TargetAmount.Cents, g.Color).Scan(&g.ID)
	if err != nil {
		return core.BudgetGoal{}, sqliteErr("upsert goal", err)
	}
	return g, nil
}

func (q *Queries) UpsertExpenseBudget(ctx context.Context, b core.ExpenseBudget) (core.ExpenseBudget, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO expense_budgets (user_id, category, amount_cents) VALUES (?, ?, ?)
		ON CONFLICT (user_id, category) DO UPDATE SET amount_cents = excluded.amount_cents
		RETURNING id`,
		b.OwnerID.String(), b.Category, b.Amount.Cents).Scan(&b.ID)
	if err != nil {
		return core.ExpenseBudget{}, sqliteErr("upsert expense budget", err)
	}
	return b, nil
}

func (q *Queries) DeleteGoal(ctx context.Context, owner uuid.UUID, category string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budget_goals WHERE user_id = ? AND category = ?`, owner.String(), category)
	return affectedOne("delete goal", res, err)
}

func (q *Queries) DeleteExpenseBudget(ctx context.Context, owner uuid.UUID, category string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expense_budgets WHERE user_id = ? AND category = ?`, owner.String(), category)
	return affectedOne("delete expense budget", res, err)
}

// Category propagation

// dependentTables maps each Dependent to its table; only these names are ever
// interpolated into SQL.
var dependentTables = map[Dependent]string{
	Goals:          "budget_goals",
	ExpenseBudgets: "expense_budgets",
	Transactions:   "transactions",
}

func (q *Queries) RenameDependents(ctx context.Context, table Dependent, owner uuid.UUID, oldName, newName string) (int64, error) {
	name, ok := dependentTables[table]
	if !ok {
		return 0, table.Validate()
	}
	res, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET category = ? WHERE user_id = ? AND category = ?`, name),
		newName, owner.String(), oldName)
	if err != nil {
		return 0, sqliteErr("rename "+name, err)
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteDependents(ctx context.Context, table Dependent, owner uuid.UUID, category string) (int64, error) {
	name, ok := dependentTables[table]
	if !ok {
		return 0, table.Validate()
	}
	res, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND category = ?`, name),
		owner.String(), category)
	if err != nil {
		return 0, sqliteErr("delete "+name, err)
	}
	return res.RowsAffected()
}

// Tags

func (q *Queries) InsertTag(ctx context.Context, t core.Tag) (core.Tag, error) {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO tags (user_id, name) VALUES (?, ?) RETURNING id`, t.OwnerID.String(), t.Name).Scan(&t.ID)
	if err != nil {
		return core.Tag{}, sqliteErr("insert tag", err)
	}
	return t, nil
}

func (q *Queries) GetTag(ctx context.Context, owner uuid.UUID, id int64) (core.Tag, error) {
	var t core.Tag
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, name FROM tags WHERE id = ? AND user_id = ?`, id, owner.String(),
	).Scan(&t.ID, &t.OwnerID, &t.Name)
	if err != nil {
		return core.Tag{}, sqliteErr("get tag", err)
	}
	return t, nil
}

func (q *Queries) ListTags(ctx context.Context, owner uuid.UUID) ([]core.Tag, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, name FROM tags WHERE user_id = ? ORDER BY name`, owner.String())
	if err != nil {
		return nil, sqliteErr("list tags", err)
	}
	defer rows.Close()
	var out []core.Tag
	for rows.Next() {
		var t core.Tag
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name); err != nil {
			return nil, sqliteErr("list tags", err)
		}
		out = append(out, t)
	}
	return out, sqliteErr("list tags", rows.Err())
}

func (q *Queries) DeleteTag(ctx context.Context, owner uuid.UUID, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ? AND user_id = ?`, id, owner.String())
	return affectedOne("delete tag", res, err)
}

func (q *Queries) ClearTagFromTransactions(ctx context.Context, owner uuid.UUID, tag string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET tag = NULL WHERE user_id = ? AND tag = ?`, owner.String(), tag)
	if err != nil {
		return 0, sqliteErr("clear tag", err)
	}
	return res.RowsAffected()
}
