package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/shopspring/decimal"
)

const userColumns = `id, auth0_id, email, name, role, created_at`

// UserRepository implements domain.UserRepository using SQLite
type UserRepository struct {
	db DBTX
}

// GetByID retrieves a user by their UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrUserNotFound)
	}
	return user, nil
}

// GetByAuth0ID retrieves a user by their Auth0 ID
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE auth0_id = ?`, auth0ID)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrUserNotFound)
	}
	return user, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user      domain.User
		id        string
		role      string
		createdAt string
	)
	if err := row.Scan(&id, &user.Auth0ID, &user.Email, &user.Name, &role, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid stored user id %q: %w", id, err)
	}
	user.ID = parsed
	user.Role = domain.Role(role)
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

const agentColumns = `id, user_id, commission_rate, created_at`

// AgentRepository implements domain.AgentRepository using SQLite
type AgentRepository struct {
	db DBTX
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id int32) (*domain.Agent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrAgentNotFound)
	}
	return agent, nil
}

// GetByUserID retrieves the agent profile of a user
func (r *AgentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = ?`, userID.String())
	agent, err := scanAgent(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrAgentNotFound)
	}
	return agent, nil
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		agent     domain.Agent
		userID    string
		rate      decimal.Decimal
		createdAt string
	)
	if err := row.Scan(&agent.ID, &userID, &rate, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored user id %q: %w", userID, err)
	}
	agent.UserID = parsed
	agent.CommissionRate = rate
	if agent.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &agent, nil
}
