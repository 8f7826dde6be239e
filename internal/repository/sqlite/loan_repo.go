package sqlite

import (
	"context"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, borrower_id, principal_amount, status, created_at`

// LoanRepository implements domain.LoanRepository using SQLite
type LoanRepository struct {
	db DBTX
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrLoanNotFound)
	}
	return loan, nil
}

// GetByIDForUpdate retrieves a loan. Store transactions already hold the database
// write lock, so no row lock is needed.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

// UpdateStatus sets the loan status
func (r *LoanRepository) UpdateStatus(ctx context.Context, id int32, status domain.LoanStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE loans SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// Delete removes the loan row. Installments must already be gone.
func (r *LoanRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var (
		loan      domain.Loan
		principal decimal.Decimal
		status    string
		createdAt string
	)
	if err := row.Scan(&loan.ID, &loan.BorrowerID, &principal, &status, &createdAt); err != nil {
		return nil, err
	}
	loan.PrincipalAmount = principal
	loan.Status = domain.LoanStatus(status)

	var err error
	if loan.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &loan, nil
}
