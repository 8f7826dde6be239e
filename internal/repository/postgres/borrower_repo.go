package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const borrowerColumns = `b.id, b.name, b.phone, b.agent_id, b.guarantor_name, b.guarantor_phone, b.created_at, b.updated_at`

// BorrowerRepository implements domain.BorrowerRepository using PostgreSQL
type BorrowerRepository struct {
	db DBTX
}

// NewBorrowerRepository creates a new BorrowerRepository
func NewBorrowerRepository(db DBTX) *BorrowerRepository {
	return &BorrowerRepository{db: db}
}

// GetByID retrieves a borrower by ID
func (r *BorrowerRepository) GetByID(ctx context.Context, id int32) (*domain.Borrower, error) {
	row := r.db.QueryRow(ctx, `SELECT `+borrowerColumns+` FROM borrowers b WHERE b.id = $1`, id)
	borrower, err := scanBorrower(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrBorrowerNotFound)
	}
	return borrower, nil
}

// UpdateAgent overwrites the borrower's agent reference
func (r *BorrowerRepository) UpdateAgent(ctx context.Context, id int32, agentID int32, at time.Time) (*domain.Borrower, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE borrowers b SET agent_id = $2, updated_at = $3
		WHERE b.id = $1
		RETURNING `+borrowerColumns, id, agentID, timeToPgTimestamptz(at))
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
	rows, err := r.db.Query(ctx, `
		SELECT `+borrowerColumns+` FROM borrowers b
		WHERE ($3::int IS NULL OR b.agent_id = $3)
		  AND EXISTS (
			SELECT 1 FROM loans l
			JOIN installments i ON i.loan_id = l.id
			WHERE l.borrower_id = b.id
			  AND i.status <> 'PAID'
			  AND i.due_date >= $1 AND i.due_date < $2
		  )
		ORDER BY b.id`, timeToPgDate(from), timeToPgDate(to), int32PtrToPgInt4(agentID))
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
		b         domain.Borrower
		agentID   pgtype.Int4
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &agentID, &b.GuarantorName, &b.GuarantorPhone, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.AgentID = pgInt4ToInt32Ptr(agentID)
	b.CreatedAt = createdAt.Time
	b.UpdatedAt = updatedAt.Time
	return &b, nil
}
