package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"fintrack/internal/domain/expense"
	"fintrack/internal/shared/apperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS expenses (
	owner_id    TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	category    TEXT NOT NULL,
	amount      NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
	date        DATE NOT NULL,
	receipt_ref TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, record_id)
);
CREATE INDEX IF NOT EXISTS expenses_owner_created_idx ON expenses (owner_id, created_at);
`

const expenseColumns = `owner_id, record_id, category, amount, to_char(date, 'YYYY-MM-DD'), receipt_ref, created_at, updated_at`

type ExpenseRepository struct {
	db *DB
}

var _ expense.Repository = (*ExpenseRepository)(nil)

func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// EnsureSchema creates the expenses table when it does not exist yet.
func (r *ExpenseRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return classify("failed to create expenses schema", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*expense.Expense, error) {
	var e expense.Expense
	var receiptRef sql.NullString
	err := row.Scan(
		&e.OwnerID, &e.RecordID, &e.Category, &e.Amount, &e.Date, &receiptRef,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if receiptRef.Valid && receiptRef.String != "" {
		ref := receiptRef.String
		e.ReceiptRef = &ref
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (r *ExpenseRepository) Put(ctx context.Context, e *expense.Expense) error {
	query := `
		INSERT INTO expenses (owner_id, record_id, category, amount, date, receipt_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, record_id) DO UPDATE SET
			category = EXCLUDED.category,
			amount = EXCLUDED.amount,
			date = EXCLUDED.date,
			receipt_ref = EXCLUDED.receipt_ref,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`

	var receiptRef sql.NullString
	if e.ReceiptRef != nil {
		receiptRef = sql.NullString{String: *e.ReceiptRef, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		e.OwnerID, e.RecordID, e.Category, e.Amount, e.Date, receiptRef,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return classify("failed to write expense", err)
	}
	return nil
}

func (r *ExpenseRepository) Get(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = $1 AND record_id = $2`

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, ownerID, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, expense.ErrExpenseNotFound
	}
	if err != nil {
		return nil, classify("failed to read expense", err)
	}
	return e, nil
}

func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = $1 ORDER BY created_at ASC, record_id ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, classify("failed to list expenses", err)
	}
	defer rows.Close()

	expenses := []*expense.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, classify("failed to scan expense", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to list expenses", err)
	}
	return expenses, nil
}

// Update writes only the columns the patch sets, in one statement.
func (r *ExpenseRepository) Update(ctx context.Context, ownerID, recordID string, patch expense.Patch, updatedAt time.Time) (*expense.Expense, error) {
	query := `
		UPDATE expenses SET
			category = CASE WHEN $3::boolean THEN $4::text ELSE category END,
			amount = CASE WHEN $5::boolean THEN $6::numeric ELSE amount END,
			date = CASE WHEN $7::boolean THEN $8::date ELSE date END,
			receipt_ref = CASE WHEN $9::boolean THEN NULLIF($10::text, '') ELSE receipt_ref END,
			updated_at = $11
		WHERE owner_id = $1 AND record_id = $2
		RETURNING ` + expenseColumns

	args := []any{
		ownerID, recordID,
		patch.Category.Set, nullIfUnset(patch.Category.Set, patch.Category.Value),
		patch.Amount.Set, nullIfUnset(patch.Amount.Set, expense.FormatAmount(patch.Amount.Value)),
		patch.Date.Set, nullIfUnset(patch.Date.Set, patch.Date.Value),
		patch.ReceiptRef.Set, nullIfUnset(patch.ReceiptRef.Set, patch.ReceiptRef.Value),
		updatedAt,
	}

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, expense.ErrExpenseNotFound
	}
	if err != nil {
		return nil, classify("failed to update expense", err)
	}
	return e, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	query := `DELETE FROM expenses WHERE owner_id = $1 AND record_id = $2 RETURNING ` + expenseColumns

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, ownerID, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, expense.ErrExpenseNotFound
	}
	if err != nil {
		return nil, classify("failed to delete expense", err)
	}
	return e, nil
}

func nullIfUnset(set bool, v string) sql.NullString {
	return sql.NullString{String: v, Valid: set}
}

// classify maps permission failures to access errors; everything else is a
// dependency failure.
func classify(message string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42501", "28000", "28P01":
			return apperr.Access(message, err)
		}
	}
	return apperr.Dependency(message, err)
}
