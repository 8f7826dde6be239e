package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/microfin/ledger-backend/internal/domain"
)

const userColumns = `id, auth0_id, email, name, role, created_at`

// UserRepository implements domain.UserRepository using PostgreSQL
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by their UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pgtype.UUID{Bytes: id, Valid: true})
	user, err := scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrUserNotFound)
	}
	return user, nil
}

// GetByAuth0ID retrieves a user by their Auth0 ID
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE auth0_id = $1`, auth0ID)
	user, err := scanUser(row)
	if err != nil {
		return nil, mapNoRows(err, domain.ErrUserNotFound)
	}
	return user, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		id        pgtype.UUID
		user      domain.User
		role      string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &user.Auth0ID, &user.Email, &user.Name, &role, &createdAt); err != nil {
		return nil, err
	}
	user.ID = uuid.UUID(id.Bytes)
	user.Role = domain.Role(role)
	user.CreatedAt = createdAt.Time
	return &user, nil
}
