package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const agentColumns = `id, user_id, commission_rate, created_at`

// AgentRepository implements domain.AgentRepository using PostgreSQL
type AgentRepository struct {
	db DBTX
}

// NewAgentRepository creates a new AgentRepository
func NewAgentRepository(db DBTX) *AgentRepository {
	return &AgentRepository{db: db}
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id int32) (*domain.Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrAgentNotFound)
	}
	return agent, nil
}

// GetByUserID retrieves the agent profile of a user
func (r *AgentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error) {
	row := r.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = $1`, pgtype.UUID{Bytes: userID, Valid: true})
	agent, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrAgentNotFound)
	}
	return agent, nil
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		agent     domain.Agent
		userID    pgtype.UUID
		rate      pgtype.Numeric
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&agent.ID, &userID, &rate, &createdAt); err != nil {
		return nil, err
	}
	agent.UserID = uuid.UUID(userID.Bytes)
	agent.CommissionRate = pgNumericToDecimal(rate)
	agent.CreatedAt = createdAt.Time
	return &agent, nil
}
