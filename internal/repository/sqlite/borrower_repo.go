package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microfin/ledger-backend/internal/domain"
)

const borrowerColumns = `b.id, b.name, b.phone, b.agent_id, b.guarantor_name, b.guarantor_phone, b.created_at, b.updated_at`

const borrowerReturning = `id, name, phone, agent_id, guarantor_name, guarantor_phone, created_at, updated_at`

// BorrowerRepository implements domain.BorrowerRepository using SQLite
type BorrowerRepository struct {
	db DBTX
}

// GetByID retrieves a borrower by ID
func (r *BorrowerRepository) GetByID(ctx context.Context, id int32) (*domain.Borrower, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+borrowerColumns+` FROM borrowers b WHERE b.id = ?`, id)
	borrower, err := scanBorrower(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrBorrowerNotFound)
	}
	return borrower, nil
}

// UpdateAgent overwrites the borrower's agent reference
func (r *BorrowerRepository) UpdateAgent(ctx context.Context, id int32, agentID int32, at time.Time) (*domain.Borrower, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE borrowers SET agent_id = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+borrowerReturning, agentID, formatTime(at), id)
	borrower, err := scanBorrower(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, mapNoRows(err, domain.ErrBorrowerNotFound)
	}
	return borrower, nil
}

// ListWithUnpaidDueBetween returns borrowers owning a non-PAID installment due in [from, to)
func (r *BorrowerRepository) ListWithUnpaidDueBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*domain.Borrower, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+borrowerColumns+` FROM borrowers b
		WHERE (? IS NULL OR b.agent_id = ?)
		  AND EXISTS (
			SELECT 1 FROM loans l
			JOIN installments i ON i.loan_id = l.id
			WHERE l.borrower_id = b.id
			  AND i.status <> 'PAID'
			  AND i.due_date >= ? AND i.due_date < ?
		  )
		ORDER BY b.id`, agentID, agentID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Borrower
	for rows.Next() {
		borrower, err := scanBorrower(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, borrower)
	}
	return result, rows.Err()
}

func scanBorrower(row rowScanner) (*domain.Borrower, error) {
	var (
		b                    domain.Borrower
		agentID              sql.NullInt32
		createdAt, updatedAt string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &agentID, &b.GuarantorName, &b.GuarantorPhone, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.AgentID = nullInt32ToPtr(agentID)

	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
