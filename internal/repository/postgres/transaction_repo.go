package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const transactionColumns = `t.id, t.installment_id, t.type, t.amount, t.notes, t.created_at`

// TransactionRepository implements domain.TransactionRepository using PostgreSQL
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a transaction
func (r *TransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (*domain.Transaction, error) {
	amount, err := decimalToPgNumeric(transaction.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO transactions AS t (installment_id, type, amount, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+transactionColumns,
		transaction.InstallmentID, string(transaction.Type), amount,
		stringPtrToPgText(transaction.Notes), timeToPgTimestamptz(transaction.CreatedAt))

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
		WHERE t.installment_id = $1
		ORDER BY t.id`, installmentID)
}

// ListCreatedBetween returns transactions created in [from, to), optionally for one agent's borrowers
func (r *TransactionRepository) ListCreatedBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*domain.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions t
		JOIN installments i ON i.id = t.installment_id
		JOIN loans l ON l.id = i.loan_id
		JOIN borrowers b ON b.id = l.borrower_id
		WHERE t.created_at >= $1 AND t.created_at < $2
		  AND ($3::int IS NULL OR b.agent_id = $3)
		ORDER BY t.created_at, t.id`,
		timeToPgTimestamptz(from), timeToPgTimestamptz(to), int32PtrToPgInt4(agentID))
}

// DeleteByInstallmentAndType removes every transaction of txType tied to the installment
func (r *TransactionRepository) DeleteByInstallmentAndType(ctx context.Context, installmentID int32, txType domain.TransactionType) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE installment_id = $1 AND type = $2`, installmentID, string(txType))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteByLoan removes the transactions of every installment of a loan
func (r *TransactionRepository) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions
		WHERE installment_id IN (SELECT id FROM installments WHERE loan_id = $1)`, loanID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
		amount    pgtype.Numeric
		notes     pgtype.Text
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&t.ID, &t.InstallmentID, &txType, &amount, &notes, &createdAt); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Amount = pgNumericToDecimal(amount)
	t.Notes = pgTextToStringPtr(notes)
	t.CreatedAt = createdAt.Time
	return &t, nil
}
