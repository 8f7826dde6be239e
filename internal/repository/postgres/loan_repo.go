package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const loanColumns = `id, borrower_id, principal_amount, status, created_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	db DBTX
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(db DBTX) *LoanRepository {
	return &LoanRepository{db: db}
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrLoanNotFound)
	}
	return loan, nil
}

// GetByIDForUpdate retrieves a loan and locks its row until the transaction ends
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrLoanNotFound)
	}
	return loan, nil
}

// UpdateStatus sets the loan status
func (r *LoanRepository) UpdateStatus(ctx context.Context, id int32, status domain.LoanStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE loans SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

// Delete removes the loan row. Installments must already be gone.
func (r *LoanRepository) Delete(ctx context.Context, id int32) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func scanLoan(row rowScanner) (*domain.Loan, error) {
	var (
		loan      domain.Loan
		principal pgtype.Numeric
		status    string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&loan.ID, &loan.BorrowerID, &principal, &status, &createdAt); err != nil {
		return nil, err
	}
	loan.PrincipalAmount = pgNumericToDecimal(principal)
	loan.Status = domain.LoanStatus(status)
	loan.CreatedAt = createdAt.Time
	return &loan, nil
}
