package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const installmentColumns = `i.id, i.loan_id, i.due_date, i.installment_amount, i.amount, i.extra_amount,
	i.penalty_amount, i.due_amount, i.status, i.paid_at, i.version, i.created_at, i.updated_at`

// dueBefore compares the DATE column as UTC midnight against a timestamptz parameter
const dueBefore = `(i.due_date::timestamp AT TIME ZONE 'UTC') < $%d`

// InstallmentRepository implements domain.InstallmentRepository using PostgreSQL
type InstallmentRepository struct {
	db DBTX
}

// NewInstallmentRepository creates a new InstallmentRepository
func NewInstallmentRepository(db DBTX) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

// GetByID retrieves an installment by ID
func (r *InstallmentRepository) GetByID(ctx context.Context, id int32) (*domain.Installment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+installmentColumns+` FROM installments i WHERE i.id = $1`, id)
	inst, err := scanInstallment(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrInstallmentNotFound)
	}
	return inst, nil
}

// ListByLoan returns a loan's installments ordered by due date
func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	return r.list(ctx, `SELECT `+installmentColumns+` FROM installments i
		WHERE i.loan_id = $1
		ORDER BY i.due_date, i.id`, loanID)
}

// ListByLoanForUpdate returns a loan's installments and locks their rows until the
// transaction ends
func (r *InstallmentRepository) ListByLoanForUpdate(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	return r.list(ctx, `SELECT `+installmentColumns+` FROM installments i
		WHERE i.loan_id = $1
		ORDER BY i.due_date, i.id
		FOR UPDATE`, loanID)
}

// ListByBorrower returns the installments of every loan of a borrower ordered by due date
func (r *InstallmentRepository) ListByBorrower(ctx context.Context, borrowerID int32) ([]*domain.Installment, error) {
	return r.list(ctx, `SELECT `+installmentColumns+` FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE l.borrower_id = $1
		ORDER BY i.due_date, i.id`, borrowerID)
}

// Update writes the mutable fields when the stored version matches expectedVersion
func (r *InstallmentRepository) Update(ctx context.Context, inst *domain.Installment, expectedVersion int32) (*domain.Installment, error) {
	amount, err := decimalToPgNumeric(inst.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	extra, err := decimalToPgNumeric(inst.ExtraAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid extra amount: %w", err)
	}
	penalty, err := decimalToPgNumeric(inst.PenaltyAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid penalty amount: %w", err)
	}
	due, err := decimalToPgNumeric(inst.DueAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid due amount: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE installments i SET
			amount = $2,
			extra_amount = $3,
			penalty_amount = $4,
			due_amount = $5,
			status = $6,
			paid_at = $7,
			updated_at = $8,
			version = i.version + 1
		WHERE i.id = $1 AND i.version = $9
		RETURNING `+installmentColumns,
		inst.ID, amount, extra, penalty, due, string(inst.Status),
		timePtrToPgTimestamptz(inst.PaidAt), timeToPgTimestamptz(inst.UpdatedAt), expectedVersion)

	updated, err := scanInstallment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Nothing matched: either the row is gone or another writer bumped the version
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM installments WHERE id = $1)`, inst.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrInstallmentNotFound
	}
	return nil, domain.ErrConcurrentModification
}

// ListOverdueCandidateIDs returns PENDING installments due strictly before asOf
func (r *InstallmentRepository) ListOverdueCandidateIDs(ctx context.Context, asOf time.Time) ([]int32, error) {
	rows, err := r.db.Query(ctx, `SELECT i.id FROM installments i
		WHERE i.status = 'PENDING' AND `+fmt.Sprintf(dueBefore, 1)+`
		ORDER BY i.id`, timeToPgTimestamptz(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkOverdue flips one installment to OVERDUE if it is still PENDING and late
func (r *InstallmentRepository) MarkOverdue(ctx context.Context, id int32, asOf time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE installments i
		SET status = 'OVERDUE', updated_at = $2, version = i.version + 1
		WHERE i.id = $1 AND i.status = 'PENDING' AND `+fmt.Sprintf(dueBefore, 2),
		id, timeToPgTimestamptz(asOf))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteByLoan removes every installment of a loan
func (r *InstallmentRepository) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM installments WHERE loan_id = $1`, loanID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *InstallmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Installment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func scanInstallment(row rowScanner) (*domain.Installment, error) {
	var (
		inst                         domain.Installment
		dueDate                      pgtype.Date
		scheduled, amount, extra     pgtype.Numeric
		penalty, due                 pgtype.Numeric
		status                       string
		paidAt, createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&inst.ID, &inst.LoanID, &dueDate, &scheduled, &amount, &extra,
		&penalty, &due, &status, &paidAt, &inst.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	inst.DueDate = dueDate.Time
	inst.InstallmentAmount = pgNumericToDecimal(scheduled)
	inst.Amount = pgNumericToDecimal(amount)
	inst.ExtraAmount = pgNumericToDecimal(extra)
	inst.PenaltyAmount = pgNumericToDecimal(penalty)
	inst.DueAmount = pgNumericToDecimal(due)
	inst.Status = domain.InstallmentStatus(status)
	inst.PaidAt = pgTimestamptzToTimePtr(paidAt)
	inst.CreatedAt = createdAt.Time
	inst.UpdatedAt = updatedAt.Time
	return &inst, nil
}
