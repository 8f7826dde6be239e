package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const transactionColumns = `t.id, t.installment_id, t.type, t.amount, t.notes, t.created_at`

const transactionReturning = `id, installment_id, type, amount, notes, created_at`

// TransactionRepository implements domain.TransactionRepository using SQLite
type TransactionRepository struct {
	db DBTX
}

// Create appends a transaction
func (r *TransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO transactions (installment_id, type, amount, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+transactionReturning,
		transaction.InstallmentID, string(transaction.Type), transaction.Amount,
		transaction.Notes, formatTime(transaction.CreatedAt))

	created, err := scanTransaction(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrInstallmentNotFound
		}
		return nil, err
	}
	return created, nil
}

// ListByInstallment returns an installment's transactions ordered by ID
func (r *TransactionRepository) ListByInstallment(ctx context.Context, installmentID int32) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions t
		WHERE t.installment_id = ?
		ORDER BY t.id`, installmentID)
}

// ListCreatedBetween returns transactions created in [from, to), optionally for one agent's borrowers
func (r *TransactionRepository) ListCreatedBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions t
		JOIN installments i ON i.id = t.installment_id
		JOIN loans l ON l.id = i.loan_id
		JOIN borrowers b ON b.id = l.borrower_id
		WHERE t.created_at >= ? AND t.created_at < ?
		  AND (? IS NULL OR b.agent_id = ?)
		ORDER BY t.created_at, t.id`,
		formatTime(from), formatTime(to), agentID, agentID)
}

// DeleteByInstallmentAndType removes every transaction of txType tied to the installment
func (r *TransactionRepository) DeleteByInstallmentAndType(ctx context.Context, installmentID int32, txType domain.TransactionType) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE installment_id = ? AND type = ?`, installmentID, string(txType))
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// DeleteByLoan removes the transactions of every installment of a loan
func (r *TransactionRepository) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions
		WHERE installment_id IN (SELECT id FROM installments WHERE loan_id = ?)`, loanID)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t         domain.Transaction
		txType    string
		amount    decimal.Decimal
		notes     sql.NullString
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.InstallmentID, &txType, &amount, &notes, &createdAt); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Amount = amount
	t.Notes = nullStringToPtr(notes)

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
