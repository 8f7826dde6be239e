package domain

import "context"

// Repositories groups the ledger repositories that share one connection scope
type Repositories interface {
	Users() UserRepository
	Agents() AgentRepository
	Borrowers() BorrowerRepository
	Loans() LoanRepository
	Installments() InstallmentRepository
	Transactions() TransactionRepository
}

// Store is the shared ledger store. Repositories returned directly by the store
// run outside any transaction; those handed to RunInTx's callback belong to a
// single all-or-nothing transaction that commits only if fn returns nil.
type Store interface {
	Repositories
	RunInTx(ctx context.Context, fn func(tx Repositories) error) error
}
