package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/microfin/ledger-backend/internal/domain"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ensure Store implements domain.Store
var _ domain.Store = (*Store)(nil)

// Store implements domain.Store on an embedded SQLite database
type Store struct {
	repositories
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
// Transactions take the write lock up front, so concurrent RunInTx calls serialize.
func New(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection keeps lock handling predictable
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{
		repositories: repositories{db: db},
		db:           db,
	}, nil
}

// DB exposes the underlying handle for seeding and maintenance
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside one database transaction. The transaction commits only
// when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(repositories{db: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	auth0_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL CHECK (role IN ('ADMIN', 'AGENT')),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
	commission_rate TEXT NOT NULL DEFAULT '0',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS borrowers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	agent_id INTEGER REFERENCES agents(id),
	guarantor_name TEXT NOT NULL DEFAULT '',
	guarantor_phone TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_borrowers_agent ON borrowers(agent_id);

CREATE TABLE IF NOT EXISTS loans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
	principal_amount TEXT NOT NULL CHECK (CAST(principal_amount AS REAL) > 0),
	status TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'CLOSED')),
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower_id);

CREATE TABLE IF NOT EXISTS installments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	loan_id INTEGER NOT NULL REFERENCES loans(id),
	due_date TEXT NOT NULL,
	installment_amount TEXT NOT NULL,
	amount TEXT NOT NULL DEFAULT '0',
	extra_amount TEXT NOT NULL DEFAULT '0',
	penalty_amount TEXT NOT NULL DEFAULT '0',
	due_amount TEXT NOT NULL DEFAULT '0',
	status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'OVERDUE', 'PAID')),
	paid_at TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CHECK ((status = 'PAID') = (paid_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_installments_loan_due ON installments(loan_id, due_date);
CREATE INDEX IF NOT EXISTS idx_installments_status_due ON installments(status, due_date);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	installment_id INTEGER NOT NULL REFERENCES installments(id),
	type TEXT NOT NULL CHECK (type IN ('INSTALLMENT')),
	amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
	notes TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_installment ON transactions(installment_id, type);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

// repositories binds every repository to one DBTX
type repositories struct {
	db DBTX
}

func (r repositories) Users() domain.UserRepository { return &UserRepository{db: r.db} }

func (r repositories) Agents() domain.AgentRepository { return &AgentRepository{db: r.db} }

func (r repositories) Borrowers() domain.BorrowerRepository { return &BorrowerRepository{db: r.db} }

func (r repositories) Loans() domain.LoanRepository { return &LoanRepository{db: r.db} }

func (r repositories) Installments() domain.InstallmentRepository {
	return &InstallmentRepository{db: r.db}
}

func (r repositories) Transactions() domain.TransactionRepository {
	return &TransactionRepository{db: r.db}
}
