package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const installmentColumns = `i.id, i.loan_id, i.due_date, i.installment_amount, i.amount, i.extra_amount,
	i.penalty_amount, i.due_amount, i.status, i.paid_at, i.version, i.created_at, i.updated_at`

// RETURNING clauses cannot use a table alias
const installmentReturning = `id, loan_id, due_date, installment_amount, amount, extra_amount,
	penalty_amount, due_amount, status, paid_at, version, created_at, updated_at`

// InstallmentRepository implements domain.InstallmentRepository using SQLite
type InstallmentRepository struct {
	db DBTX
}

// GetByID retrieves an installment by ID
func (r *InstallmentRepository) GetByID(ctx context.Context, id int32) (*domain.Installment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM installments i WHERE i.id = ?`, id)
	inst, err := scanInstallment(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrInstallmentNotFound)
	}
	return inst, nil
}

// ListByLoan returns a loan's installments ordered by due date
func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	return r.list(ctx, `SELECT `+installmentColumns+` FROM installments i
		WHERE i.loan_id = ?
		ORDER BY i.due_date, i.id`, loanID)
}

// ListByLoanForUpdate is ListByLoan. Store transactions already hold the database
// write lock from BEGIN IMMEDIATE.
func (r *InstallmentRepository) ListByLoanForUpdate(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	return r.ListByLoan(ctx, loanID)
}

// ListByBorrower returns the installments of every loan of a borrower ordered by due date
func (r *InstallmentRepository) ListByBorrower(ctx context.Context, borrowerID int32) ([]*domain.Installment, error) {
	return r.list(ctx, `SELECT `+installmentColumns+` FROM installments i
		JOIN loans l ON l.id = i.loan_id
		WHERE l.borrower_id = ?
		ORDER BY i.due_date, i.id`, borrowerID)
}

// Update writes the mutable fields when the stored version matches expectedVersion
func (r *InstallmentRepository) Update(ctx context.Context, inst *domain.Installment, expectedVersion int32) (*domain.Installment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE installments SET
			amount = ?,
			extra_amount = ?,
			penalty_amount = ?,
			due_amount = ?,
			status = ?,
			paid_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
		RETURNING `+installmentReturning,
		inst.Amount, inst.ExtraAmount, inst.PenaltyAmount, inst.DueAmount, string(inst.Status),
		formatTimePtr(inst.PaidAt), formatTime(inst.UpdatedAt), inst.ID, expectedVersion)

	updated, err := scanInstallment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM installments WHERE id = ?)`, inst.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrInstallmentNotFound
	}
	return nil, domain.ErrConcurrentModification
}

// ListOverdueCandidateIDs returns PENDING installments due strictly before asOf
func (r *InstallmentRepository) ListOverdueCandidateIDs(ctx context.Context, asOf time.Time) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT i.id FROM installments i
		WHERE i.status = 'PENDING' AND i.due_date < ?
		ORDER BY i.id`, formatTime(asOf))
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
	at := formatTime(asOf)
	res, err := r.db.ExecContext(ctx, `UPDATE installments
		SET status = 'OVERDUE', updated_at = ?, version = version + 1
		WHERE id = ? AND status = 'PENDING' AND due_date < ?`, at, id, at)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByLoan removes every installment of a loan
func (r *InstallmentRepository) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM installments WHERE loan_id = ?`, loanID)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

func (r *InstallmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Installment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
		inst                 domain.Installment
		dueDate, status      string
		scheduled, amount    decimal.Decimal
		extra, penalty, due  decimal.Decimal
		paidAt               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&inst.ID, &inst.LoanID, &dueDate, &scheduled, &amount, &extra,
		&penalty, &due, &status, &paidAt, &inst.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	inst.InstallmentAmount = scheduled
	inst.Amount = amount
	inst.ExtraAmount = extra
	inst.PenaltyAmount = penalty
	inst.DueAmount = due
	inst.Status = domain.InstallmentStatus(status)

	var err error
	if inst.DueDate, err = parseTime(dueDate); err != nil {
		return nil, err
	}
	if inst.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	if inst.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}
