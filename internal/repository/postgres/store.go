package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microfin/ledger-backend/internal/domain"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx, so every
// repository runs unchanged inside or outside a transaction
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ensure Store implements domain.Store
var _ domain.Store = (*Store)(nil)

// Store implements domain.Store on a PostgreSQL pool
type Store struct {
	repositories
	pool *pgxpool.Pool
}

// NewStore creates a new Store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		repositories: repositories{db: pool},
		pool:         pool,
	}
}

// RunInTx runs fn inside one database transaction. The transaction commits only
// when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(repositories{db: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// repositories binds every repository to one DBTX
type repositories struct {
	db DBTX
}

func (r repositories) Users() domain.UserRepository { return NewUserRepository(r.db) }

func (r repositories) Agents() domain.AgentRepository { return NewAgentRepository(r.db) }

func (r repositories) Borrowers() domain.BorrowerRepository { return NewBorrowerRepository(r.db) }

func (r repositories) Loans() domain.LoanRepository { return NewLoanRepository(r.db) }

func (r repositories) Installments() domain.InstallmentRepository {
	return NewInstallmentRepository(r.db)
}

func (r repositories) Transactions() domain.TransactionRepository {
	return NewTransactionRepository(r.db)
}
