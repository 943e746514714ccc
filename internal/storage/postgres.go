package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tresorerie/internal/core"
)

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgQueries implements Gateway with Postgres SQL on top of a pool or a
// transaction.
type PgQueries struct {
	db pgQuerier
}

var _ Gateway = (*PgQueries)(nil)

// PostgresStore owns the connection pool behind PgQueries.
type PostgresStore struct {
	*PgQueries
	pool *pgxpool.Pool
}

var (
	_ Store    = (*PostgresStore)(nil)
	_ TxRunner = (*PostgresStore)(nil)
)

// NewPostgresStore runs the embedded migrations and opens a pool on
// databaseURL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{PgQueries: &PgQueries{db: pool}, pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// RunInTx runs fn against a Gateway bound to one Postgres transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Gateway) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PgQueries{db: tx})
	})
}

func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return fmt.Errorf("%w: %s", core.ErrConflict, op)
	}
	return core.NewGatewayError(op, err)
}

func pgAffectedOne(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return pgErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func pgDate(d *core.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	return &d.Time
}

func pgTag(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// collect drains rows with scan, mapping errors for op.
func collect[T any](op string, rows pgx.Rows, err error, scan func(pgx.Rows) (T, error)) ([]T, error) {
	if err != nil {
		return nil, pgErr(op, err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, pgErr(op, err)
		}
		out = append(out, v)
	}
	return out, pgErr(op, rows.Err())
}

// Recurring templates

func scanPgTemplate(row pgx.Row) (core.RecurringTemplate, error) {
	var rt core.RecurringTemplate
	var start, next time.Time
	var last *time.Time
	err := row.Scan(&rt.ID, &rt.OwnerID, &rt.EntityName, &rt.Category, &rt.Amount.Cents, &rt.Type,
		&rt.Frequency, &start, &last, &next, &rt.Active)
	if err != nil {
		return rt, err
	}
	rt.StartDate, rt.NextRunDate = core.DateOf(start), core.DateOf(next)
	if last != nil {
		d := core.DateOf(*last)
		rt.LastRunDate = &d
	}
	return rt, nil
}

func (q *PgQueries) ListActiveDueTemplates(ctx context.Context, owner uuid.UUID, asOf core.Date) ([]core.RecurringTemplate, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+templateColumns+` FROM recurring_transactions
		WHERE user_id = $1 AND active AND next_run_date <= $2
		ORDER BY next_run_date, id`, owner, asOf.Time)
	return collect("list due templates", rows, err, func(r pgx.Rows) (core.RecurringTemplate, error) { return scanPgTemplate(r) })
}

func (q *PgQueries) ListOwnersWithDueTemplates(ctx context.Context, asOf core.Date) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx,
		`SELECT DISTINCT user_id FROM recurring_transactions
		WHERE active AND next_run_date <= $1 ORDER BY user_id`, asOf.Time)
	return collect("list owners with due templates", rows, err, func(r pgx.Rows) (uuid.UUID, error) {
		var id uuid.UUID
		err := r.Scan(&id)
		return id, err
	})
}

func (q *PgQueries) InsertTemplate(ctx context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO recurring_transactions
		(user_id, entity_name, category, amount_cents, type, frequency, start_date, last_run_date, next_run_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		rt.OwnerID, rt.EntityName, rt.Category, rt.Amount.Cents, string(rt.Type), string(rt.Frequency),
		rt.StartDate.Time, pgDate(rt.LastRunDate), rt.NextRunDate.Time, rt.Active,
	).Scan(&rt.ID)
	if err != nil {
		return core.RecurringTemplate{}, pgErr("insert template", err)
	}
	return rt, nil
}

func (q *PgQueries) GetTemplate(ctx context.Context, owner uuid.UUID, id int64) (core.RecurringTemplate, error) {
	rt, err := scanPgTemplate(q.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM recurring_transactions WHERE id = $1 AND user_id = $2`, id, owner))
	if err != nil {
		return core.RecurringTemplate{}, pgErr("get template", err)
	}
	return rt, nil
}

func (q *PgQueries) ListTemplates(ctx context.Context, owner uuid.UUID) ([]core.RecurringTemplate, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+templateColumns+` FROM recurring_transactions WHERE user_id = $1 ORDER BY next_run_date, id`, owner)
	return collect("list templates", rows, err, func(r pgx.Rows) (core.RecurringTemplate, error) { return scanPgTemplate(r) })
}

func (q *PgQueries) UpdateTemplateSchedule(ctx context.Context, owner uuid.UUID, id int64, last, next core.Date) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE recurring_transactions SET last_run_date = $1, next_run_date = $2 WHERE id = $3 AND user_id = $4`,
		last.Time, next.Time, id, owner)
	return pgAffectedOne("update template schedule", tag, err)
}

func (q *PgQueries) SetTemplateActive(ctx context.Context, owner uuid.UUID, id int64, active bool) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE recurring_transactions SET active = $1 WHERE id = $2 AND user_id = $3`, active, id, owner)
	return pgAffectedOne("set template active", tag, err)
}

func (q *PgQueries) DeleteTemplate(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM recurring_transactions WHERE id = $1 AND user_id = $2`, id, owner)
	return pgAffectedOne("delete template", tag, err)
}

// Transactions

func scanPgTransaction(row pgx.Row) (core.Transaction, error) {
	var tx core.Transaction
	var date time.Time
	var tag *string
	err := row.Scan(&tx.ID, &tx.OwnerID, &date, &tx.EntityName, &tx.Category, &tag, &tx.Status, &tx.Amount.Cents, &tx.Type)
	if err != nil {
		return tx, err
	}
	tx.Date = core.DateOf(date)
	if tag != nil {
		tx.Tag = *tag
	}
	return tx, nil
}

func (q *PgQueries) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO transactions (user_id, date, entity_name, category, tag, status, amount_cents, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		tx.OwnerID, tx.Date.Time, tx.EntityName, tx.Category, pgTag(tx.Tag), string(tx.Status), tx.Amount.Cents, string(tx.Type),
	).Scan(&tx.ID)
	if err != nil {
		return core.Transaction{}, pgErr("insert transaction", err)
	}
	return tx, nil
}

func (q *PgQueries) GetTransaction(ctx context.Context, owner uuid.UUID, id int64) (core.Transaction, error) {
	tx, err := scanPgTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, owner))
	if err != nil {
		return core.Transaction{}, pgErr("get transaction", err)
	}
	return tx, nil
}

func (q *PgQueries) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE transactions SET date = $1, entity_name = $2, category = $3, tag = $4, status = $5, amount_cents = $6, type = $7
		WHERE id = $8 AND user_id = $9`,
		tx.Date.Time, tx.EntityName, tx.Category, pgTag(tx.Tag), string(tx.Status), tx.Amount.Cents, string(tx.Type),
		tx.ID, tx.OwnerID)
	if err := pgAffectedOne("update transaction", tag, err); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (q *PgQueries) DeleteTransaction(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, owner)
	return pgAffectedOne("delete transaction", tag, err)
}

func (q *PgQueries) ListTransactions(ctx context.Context, owner uuid.UUID) ([]core.Transaction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC, id DESC`, owner)
	return collect("list transactions", rows, err, func(r pgx.Rows) (core.Transaction, error) { return scanPgTransaction(r) })
}

// Categories

func scanPgCategory(row pgx.Row) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Type)
	return c, err
}

func (q *PgQueries) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO categories (user_id, name, type) VALUES ($1, $2, $3) RETURNING id`,
		c.OwnerID, c.Name, string(c.Type)).Scan(&c.ID)
	if err != nil {
		return core.Category{}, pgErr("insert category", err)
	}
	return c, nil
}

func (q *PgQueries) GetCategory(ctx context.Context, owner uuid.UUID, id int64) (core.Category, error) {
	c, err := scanPgCategory(q.db.QueryRow(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE id = $1 AND user_id = $2`, id, owner))
	if err != nil {
		return core.Category{}, pgErr("get category", err)
	}
	return c, nil
}

func (q *PgQueries) FindCategory(ctx context.Context, owner uuid.UUID, name string, t core.TransactionType) (core.Category, error) {
	c, err := scanPgCategory(q.db.QueryRow(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = $1 AND name = $2 AND type = $3`,
		owner, name, string(t)))
	if err != nil {
		return core.Category{}, pgErr("find category", err)
	}
	return c, nil
}

func (q *PgQueries) UpdateCategory(ctx context.Context, c core.Category) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE categories SET name = $1, type = $2 WHERE id = $3 AND user_id = $4`,
		c.Name, string(c.Type), c.ID, c.OwnerID)
	return pgAffectedOne("update category", tag, err)
}

func (q *PgQueries) DeleteCategory(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, owner)
	return pgAffectedOne("delete category", tag, err)
}

func (q *PgQueries) ListCategories(ctx context.Context, owner uuid.UUID) ([]core.Category, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, user_id, name, type FROM categories WHERE user_id = $1 ORDER BY name, id`, owner)
	return collect("list categories", rows, err, func(r pgx.Rows) (core.Category, error) { return scanPgCategory(r) })
}

// Goals and expense budgets

func (q *PgQueries) ListGoals(ctx context.Context, owner uuid.UUID) ([]core.BudgetGoal, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, user_id, category, target_amount_cents, color FROM budget_goals WHERE user_id = $1 ORDER BY category`,
		owner)
	return collect("list goals", rows, err, func(r pgx.Rows) (core.BudgetGoal, error) {
		var g core.BudgetGoal
		err := r.Scan(&g.ID, &g.OwnerID, &g.Category, &g.TargetAmount.Cents, &g.Color)
		return g, err
	})
}

func (q *PgQueries) ListExpenseBudgets(ctx context.Context, owner uuid.UUID) ([]core.ExpenseBudget, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, user_id, category, amount_cents FROM expense_budgets WHERE user_id = $1 ORDER BY category`, owner)
	return collect("list expense budgets", rows, err, func(r pgx.Rows) (core.ExpenseBudget, error) {
		var b core.ExpenseBudget
		err := r.Scan(&b.ID, &b.OwnerID, &b.Category, &b.Amount.Cents)
		return b, err
	})
}

func (q *PgQueries) UpsertGoal(ctx context.Context, g core.BudgetGoal) (core.BudgetGoal, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO budget_goals (user_id, category, target_amount_cents, color) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, category) DO UPDATE SET
			target_amount_cents = EXCLUDED.target_amount_cents,
			color = EXCLUDED.color
		RETURNING id`,
		g.OwnerID, g.Category, g.TargetAmount.Cents, g.Color).Scan(&g.ID)
	if err != nil {
		return core.BudgetGoal{}, pgErr("upsert goal", err)
	}
	return g, nil
}

func (q *PgQueries) UpsertExpenseBudget(ctx context.Context, b core.ExpenseBudget) (core.ExpenseBudget, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO expense_budgets (user_id, category, amount_cents) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, category) DO UPDATE SET amount_cents = EXCLUDED.amount_cents
		RETURNING id`,
		b.OwnerID, b.Category, b.Amount.Cents).Scan(&b.ID)
	if err != nil {
		return core.ExpenseBudget{}, pgErr("upsert expense budget", err)
	}
	return b, nil
}

func (q *PgQueries) DeleteGoal(ctx context.Context, owner uuid.UUID, category string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM budget_goals WHERE user_id = $1 AND category = $2`, owner, category)
	return pgAffectedOne("delete goal", tag, err)
}

func (q *PgQueries) DeleteExpenseBudget(ctx context.Context, owner uuid.UUID, category string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM expense_budgets WHERE user_id = $1 AND category = $2`, owner, category)
	return pgAffectedOne("delete expense budget", tag, err)
}

// Category propagation

func (q *PgQueries) RenameDependents(ctx context.Context, table Dependent, owner uuid.UUID, oldName, newName string) (int64, error) {
	name, ok := dependentTables[table]
	if !ok {
		return 0, table.Validate()
	}
	tag, err := q.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET category = $1 WHERE user_id = $2 AND category = $3`, name),
		newName, owner, oldName)
	if err != nil {
		return 0, pgErr("rename "+name, err)
	}
	return tag.RowsAffected(), nil
}

func (q *PgQueries) DeleteDependents(ctx context.Context, table Dependent, owner uuid.UUID, category string) (int64, error) {
	name, ok := dependentTables[table]
	if !ok {
		return 0, table.Validate()
	}
	tag, err := q.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND category = $2`, name), owner, category)
	if err != nil {
		return 0, pgErr("delete "+name, err)
	}
	return tag.RowsAffected(), nil
}

// Tags

func scanPgTag(row pgx.Row) (core.Tag, error) {
	var t core.Tag
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name)
	return t, err
}

func (q *PgQueries) InsertTag(ctx context.Context, t core.Tag) (core.Tag, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO tags (user_id, name) VALUES ($1, $2) RETURNING id`, t.OwnerID, t.Name).Scan(&t.ID)
	if err != nil {
		return core.Tag{}, pgErr("insert tag", err)
	}
	return t, nil
}

func (q *PgQueries) GetTag(ctx context.Context, owner uuid.UUID, id int64) (core.Tag, error) {
	t, err := scanPgTag(q.db.QueryRow(ctx, `SELECT id, user_id, name FROM tags WHERE id = $1 AND user_id = $2`, id, owner))
	if err != nil {
		return core.Tag{}, pgErr("get tag", err)
	}
	return t, nil
}

func (q *PgQueries) ListTags(ctx context.Context, owner uuid.UUID) ([]core.Tag, error) {
	rows, err := q.db.Query(ctx, `SELECT id, user_id, name FROM tags WHERE user_id = $1 ORDER BY name`, owner)
	return collect("list tags", rows, err, func(r pgx.Rows) (core.Tag, error) { return scanPgTag(r) })
}

func (q *PgQueries) DeleteTag(ctx context.Context, owner uuid.UUID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM tags WHERE id = $1 AND user_id = $2`, id, owner)
	return pgAffectedOne("delete tag", tag, err)
}

func (q *PgQueries) ClearTagFromTransactions(ctx context.Context, owner uuid.UUID, tag string) (int64, error) {
	ct, err := q.db.Exec(ctx, `UPDATE transactions SET tag = NULL WHERE user_id = $1 AND tag = $2`, owner, tag)
	if err != nil {
		return 0, pgErr("clear tag", err)
	}
	return ct.RowsAffected(), nil
}
