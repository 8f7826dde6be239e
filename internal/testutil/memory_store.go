package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microfin/ledger-backend/internal/domain"
)

// Ensure MemoryStore implements domain.Store
var _ domain.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory domain.Store. RunInTx serializes transactions,
// works on a deep copy of the state and swaps it in only on success, so a failed
// callback leaves no trace.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	// FailOn, when set, is consulted before every write and row lock with an
	// operation name such as "installments.update" or "installments.lock".
	// A non-nil result is returned from that call.
	FailOn func(op string) error

	// OnGotInstallment, when set, runs after a non-transactional installment read
	// returns. Tests use it to line up concurrent callers between read and commit.
	OnGotInstallment func(id int32)
}

type memState struct {
	users        map[uuid.UUID]*domain.User
	agents       map[int32]*domain.Agent
	borrowers    map[int32]*domain.Borrower
	loans        map[int32]*domain.Loan
	installments map[int32]*domain.Installment
	transactions map[int32]*domain.Transaction
	nextID       int32
}

// MemorySnapshot is a deep copy of the whole store, comparable with assert.Equal
type MemorySnapshot struct {
	Users        map[uuid.UUID]domain.User
	Agents       map[int32]domain.Agent
	Borrowers    map[int32]domain.Borrower
	Loans        map[int32]domain.Loan
	Installments map[int32]domain.Installment
	Transactions map[int32]domain.Transaction
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		users:        make(map[uuid.UUID]*domain.User),
		agents:       make(map[int32]*domain.Agent),
		borrowers:    make(map[int32]*domain.Borrower),
		loans:        make(map[int32]*domain.Loan),
		installments: make(map[int32]*domain.Installment),
		transactions: make(map[int32]*domain.Transaction),
		nextID:       1000,
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	c.nextID = st.nextID
	for k, v := range st.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range st.agents {
		c.agents[k] = copyAgent(v)
	}
	for k, v := range st.borrowers {
		c.borrowers[k] = copyBorrower(v)
	}
	for k, v := range st.loans {
		c.loans[k] = copyLoan(v)
	}
	for k, v := range st.installments {
		c.installments[k] = copyInstallment(v)
	}
	for k, v := range st.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	return c
}

func (st *memState) newID() int32 {
	st.nextID++
	return st.nextID
}

// borrowerOfInstallment resolves installment -> loan -> borrower
func (st *memState) borrowerOfInstallment(installmentID int32) *domain.Borrower {
	inst, ok := st.installments[installmentID]
	if !ok {
		return nil
	}
	loan, ok := st.loans[inst.LoanID]
	if !ok {
		return nil
	}
	return st.borrowers[loan.BorrowerID]
}

// RunInTx implements domain.Store
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memRepos{store: s, state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Snapshot returns a deep copy of the committed state
func (s *MemoryStore) Snapshot() MemorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := MemorySnapshot{
		Users:        make(map[uuid.UUID]domain.User),
		Agents:       make(map[int32]domain.Agent),
		Borrowers:    make(map[int32]domain.Borrower),
		Loans:        make(map[int32]domain.Loan),
		Installments: make(map[int32]domain.Installment),
		Transactions: make(map[int32]domain.Transaction),
	}
	st := s.state.clone()
	for k, v := range st.users {
		snap.Users[k] = *v
	}
	for k, v := range st.agents {
		snap.Agents[k] = *v
	}
	for k, v := range st.borrowers {
		snap.Borrowers[k] = *v
	}
	for k, v := range st.loans {
		snap.Loans[k] = *v
	}
	for k, v := range st.installments {
		snap.Installments[k] = *v
	}
	for k, v := range st.transactions {
		snap.Transactions[k] = *v
	}
	return snap
}

// Users implements domain.Repositories
func (s *MemoryStore) Users() domain.UserRepository { return &memRepos{store: s} }

// Agents implements domain.Repositories
func (s *MemoryStore) Agents() domain.AgentRepository { return &memAgents{memRepos{store: s}} }

// Borrowers implements domain.Repositories
func (s *MemoryStore) Borrowers() domain.BorrowerRepository { return &memBorrowers{memRepos{store: s}} }

// Loans implements domain.Repositories
func (s *MemoryStore) Loans() domain.LoanRepository { return &memLoans{memRepos{store: s}} }

// Installments implements domain.Repositories
func (s *MemoryStore) Installments() domain.InstallmentRepository {
	return &memInstallments{memRepos{store: s}}
}

// Transactions implements domain.Repositories
func (s *MemoryStore) Transactions() domain.TransactionRepository {
	return &memTransactions{memRepos{store: s}}
}

// ===== Seeding helpers =====

// AddUser adds a user to the store
func (s *MemoryStore) AddUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	s.state.users[user.ID] = copyUser(user)
}

// AddAgent adds an agent, assigning an ID when zero
func (s *MemoryStore) AddAgent(agent *domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == 0 {
		agent.ID = s.state.newID()
	}
	s.state.agents[agent.ID] = copyAgent(agent)
}

// AddBorrower adds a borrower, assigning an ID when zero
func (s *MemoryStore) AddBorrower(borrower *domain.Borrower) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if borrower.ID == 0 {
		borrower.ID = s.state.newID()
	}
	s.state.borrowers[borrower.ID] = copyBorrower(borrower)
}

// AddLoan adds a loan, assigning an ID when zero
func (s *MemoryStore) AddLoan(loan *domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loan.ID == 0 {
		loan.ID = s.state.newID()
	}
	if loan.Status == "" {
		loan.Status = domain.LoanStatusActive
	}
	s.state.loans[loan.ID] = copyLoan(loan)
}

// AddInstallment adds an installment, assigning an ID when zero
func (s *MemoryStore) AddInstallment(inst *domain.Installment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.ID == 0 {
		inst.ID = s.state.newID()
	}
	if inst.Status == "" {
		inst.Status = domain.InstallmentStatusPending
	}
	if inst.Version == 0 {
		inst.Version = 1
	}
	s.state.installments[inst.ID] = copyInstallment(inst)
}

// AddTransaction adds a transaction, assigning an ID when zero
func (s *MemoryStore) AddTransaction(t *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.state.newID()
	}
	s.state.transactions[t.ID] = copyTransaction(t)
}

// TransactionsFor returns committed transactions of one installment ordered by ID
func (s *MemoryStore) TransactionsFor(installmentID int32) []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transactionsOf(s.state, installmentID)
}

// InstallmentByID returns a copy of a committed installment or nil
func (s *MemoryStore) InstallmentByID(id int32) *domain.Installment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.state.installments[id]; ok {
		return copyInstallment(inst)
	}
	return nil
}

// LoanByID returns a copy of a committed loan or nil
func (s *MemoryStore) LoanByID(id int32) *domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loan, ok := s.state.loans[id]; ok {
		return copyLoan(loan)
	}
	return nil
}

// ===== Repository scope =====

// memRepos is bound either to an open transaction (state != nil) or to the
// committed state, in which case every call takes the store lock.
type memRepos struct {
	store *MemoryStore
	state *memState
}

func (r *memRepos) Users() domain.UserRepository         { return r }
func (r *memRepos) Agents() domain.AgentRepository       { return &memAgents{*r} }
func (r *memRepos) Borrowers() domain.BorrowerRepository { return &memBorrowers{*r} }
func (r *memRepos) Loans() domain.LoanRepository         { return &memLoans{*r} }
func (r *memRepos) Installments() domain.InstallmentRepository {
	return &memInstallments{*r}
}
func (r *memRepos) Transactions() domain.TransactionRepository {
	return &memTransactions{*r}
}

func (r *memRepos) with(fn func(st *memState) error) error {
	if r.state != nil {
		return fn(r.state)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (r *memRepos) fail(op string) error {
	if r.store.FailOn != nil {
		return r.store.FailOn(op)
	}
	return nil
}

// GetByID implements domain.UserRepository
func (r *memRepos) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user *domain.User
	err := r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		user = copyUser(u)
		return nil
	})
	return user, err
}

// GetByAuth0ID implements domain.UserRepository
func (r *memRepos) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	var user *domain.User
	err := r.with(func(st *memState) error {
		for _, u := range st.users {
			if u.Auth0ID == auth0ID {
				user = copyUser(u)
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	return user, err
}

type memAgents struct{ memRepos }

func (r *memAgents) GetByID(ctx context.Context, id int32) (*domain.Agent, error) {
	var agent *domain.Agent
	err := r.with(func(st *memState) error {
		a, ok := st.agents[id]
		if !ok {
			return domain.ErrAgentNotFound
		}
		agent = copyAgent(a)
		return nil
	})
	return agent, err
}

func (r *memAgents) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Agent, error) {
	var agent *domain.Agent
	err := r.with(func(st *memState) error {
		for _, a := range st.agents {
			if a.UserID == userID {
				agent = copyAgent(a)
				return nil
			}
		}
		return domain.ErrAgentNotFound
	})
	return agent, err
}

type memBorrowers struct{ memRepos }

func (r *memBorrowers) GetByID(ctx context.Context, id int32) (*domain.Borrower, error) {
	var borrower *domain.Borrower
	err := r.with(func(st *memState) error {
		b, ok := st.borrowers[id]
		if !ok {
			return domain.ErrBorrowerNotFound
		}
		borrower = copyBorrower(b)
		return nil
	})
	return borrower, err
}

func (r *memBorrowers) UpdateAgent(ctx context.Context, id int32, agentID int32, at time.Time) (*domain.Borrower, error) {
	if err := r.fail("borrowers.update_agent"); err != nil {
		return nil, err
	}
	var borrower *domain.Borrower
	err := r.with(func(st *memState) error {
		b, ok := st.borrowers[id]
		if !ok {
			return domain.ErrBorrowerNotFound
		}
		if _, ok := st.agents[agentID]; !ok {
			return domain.ErrAgentNotFound
		}
		assigned := agentID
		b.AgentID = &assigned
		b.UpdatedAt = at
		borrower = copyBorrower(b)
		return nil
	})
	return borrower, err
}

func (r *memBorrowers) ListWithUnpaidDueBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*domain.Borrower, error) {
	var result []*domain.Borrower
	err := r.with(func(st *memState) error {
		seen := make(map[int32]bool)
		for _, inst := range st.installments {
			if inst.Status == domain.InstallmentStatusPaid {
				continue
			}
			if inst.DueDate.Before(from) || !inst.DueDate.Before(to) {
				continue
			}
			b := st.borrowerOfInstallment(inst.ID)
			if b == nil || seen[b.ID] {
				continue
			}
			if agentID != nil && !b.IsAssignedTo(*agentID) {
				continue
			}
			seen[b.ID] = true
			result = append(result, copyBorrower(b))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

type memLoans struct{ memRepos }

func (r *memLoans) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	var loan *domain.Loan
	err := r.with(func(st *memState) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.ErrLoanNotFound
		}
		loan = copyLoan(l)
		return nil
	})
	return loan, err
}

func (r *memLoans) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *memLoans) UpdateStatus(ctx context.Context, id int32, status domain.LoanStatus) error {
	if err := r.fail("loans.update_status"); err != nil {
		return err
	}
	return r.with(func(st *memState) error {
		l, ok := st.loans[id]
		if !ok {
			return domain.ErrLoanNotFound
		}
		l.Status = status
		return nil
	})
}

func (r *memLoans) Delete(ctx context.Context, id int32) error {
	if err := r.fail("loans.delete"); err != nil {
		return err
	}
	return r.with(func(st *memState) error {
		if _, ok := st.loans[id]; !ok {
			return domain.ErrLoanNotFound
		}
		delete(st.loans, id)
		return nil
	})
}

type memInstallments struct{ memRepos }

func (r *memInstallments) GetByID(ctx context.Context, id int32) (*domain.Installment, error) {
	var inst *domain.Installment
	err := r.with(func(st *memState) error {
		i, ok := st.installments[id]
		if !ok {
			return domain.ErrInstallmentNotFound
		}
		inst = copyInstallment(i)
		return nil
	})
	if r.state == nil && r.store.OnGotInstallment != nil {
		r.store.OnGotInstallment(id)
	}
	return inst, err
}

func (r *memInstallments) ListByLoan(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	var result []*domain.Installment
	err := r.with(func(st *memState) error {
		for _, i := range st.installments {
			if i.LoanID == loanID {
				result = append(result, copyInstallment(i))
			}
		}
		return nil
	})
	sortByDueDate(result)
	return result, err
}

// ListByLoanForUpdate reads like ListByLoan. Transactions already hold the store lock.
func (r *memInstallments) ListByLoanForUpdate(ctx context.Context, loanID int32) ([]*domain.Installment, error) {
	if err := r.fail("installments.lock"); err != nil {
		return nil, err
	}
	return r.ListByLoan(ctx, loanID)
}

func (r *memInstallments) ListByBorrower(ctx context.Context, borrowerID int32) ([]*domain.Installment, error) {
	var result []*domain.Installment
	err := r.with(func(st *memState) error {
		for _, i := range st.installments {
			loan, ok := st.loans[i.LoanID]
			if ok && loan.BorrowerID == borrowerID {
				result = append(result, copyInstallment(i))
			}
		}
		return nil
	})
	sortByDueDate(result)
	return result, err
}

func (r *memInstallments) Update(ctx context.Context, inst *domain.Installment, expectedVersion int32) (*domain.Installment, error) {
	if err := r.fail("installments.update"); err != nil {
		return nil, err
	}
	var updated *domain.Installment
	err := r.with(func(st *memState) error {
		current, ok := st.installments[inst.ID]
		if !ok {
			return domain.ErrInstallmentNotFound
		}
		if current.Version != expectedVersion {
			return domain.ErrConcurrentModification
		}
		next := copyInstallment(inst)
		next.LoanID = current.LoanID
		next.DueDate = current.DueDate
		next.InstallmentAmount = current.InstallmentAmount
		next.CreatedAt = current.CreatedAt
		next.Version = expectedVersion + 1
		st.installments[inst.ID] = next
		updated = copyInstallment(next)
		return nil
	})
	return updated, err
}

func (r *memInstallments) ListOverdueCandidateIDs(ctx context.Context, asOf time.Time) ([]int32, error) {
	var ids []int32
	err := r.with(func(st *memState) error {
		for _, i := range st.installments {
			if i.Status == domain.InstallmentStatusPending && i.IsLate(asOf) {
				ids = append(ids, i.ID)
			}
		}
		return nil
	})
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, err
}

func (r *memInstallments) MarkOverdue(ctx context.Context, id int32, asOf time.Time) (bool, error) {
	if err := r.fail("installments.mark_overdue"); err != nil {
		return false, err
	}
	changed := false
	err := r.with(func(st *memState) error {
		i, ok := st.installments[id]
		if !ok || i.Status != domain.InstallmentStatusPending || !i.IsLate(asOf) {
			return nil
		}
		if err := i.MarkOverdue(asOf); err != nil {
			return err
		}
		i.Version++
		changed = true
		return nil
	})
	return changed, err
}

func (r *memInstallments) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	if err := r.fail("installments.delete_by_loan"); err != nil {
		return 0, err
	}
	count := 0
	err := r.with(func(st *memState) error {
		for id, i := range st.installments {
			if i.LoanID == loanID {
				delete(st.installments, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

type memTransactions struct{ memRepos }

func (r *memTransactions) Create(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if err := r.fail("transactions.create"); err != nil {
		return nil, err
	}
	var created *domain.Transaction
	err := r.with(func(st *memState) error {
		if _, ok := st.installments[t.InstallmentID]; !ok {
			return domain.ErrInstallmentNotFound
		}
		c := copyTransaction(t)
		c.ID = st.newID()
		st.transactions[c.ID] = c
		created = copyTransaction(c)
		return nil
	})
	return created, err
}

func (r *memTransactions) ListByInstallment(ctx context.Context, installmentID int32) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	err := r.with(func(st *memState) error {
		result = transactionsOf(st, installmentID)
		return nil
	})
	return result, err
}

func (r *memTransactions) ListCreatedBetween(ctx context.Context, agentID *int32, from, to time.Time) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	err := r.with(func(st *memState) error {
		for _, t := range st.transactions {
			if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
				continue
			}
			if agentID != nil {
				b := st.borrowerOfInstallment(t.InstallmentID)
				if b == nil || !b.IsAssignedTo(*agentID) {
					continue
				}
			}
			result = append(result, copyTransaction(t))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, err
}

func (r *memTransactions) DeleteByInstallmentAndType(ctx context.Context, installmentID int32, txType domain.TransactionType) (int, error) {
	if err := r.fail("transactions.delete_by_installment"); err != nil {
		return 0, err
	}
	count := 0
	err := r.with(func(st *memState) error {
		for id, t := range st.transactions {
			if t.InstallmentID == installmentID && t.Type == txType {
				delete(st.transactions, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *memTransactions) DeleteByLoan(ctx context.Context, loanID int32) (int, error) {
	if err := r.fail("transactions.delete_by_loan"); err != nil {
		return 0, err
	}
	count := 0
	err := r.with(func(st *memState) error {
		for id, t := range st.transactions {
			inst, ok := st.installments[t.InstallmentID]
			if ok && inst.LoanID == loanID {
				delete(st.transactions, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

// ===== Helpers =====

func transactionsOf(st *memState, installmentID int32) []*domain.Transaction {
	var result []*domain.Transaction
	for _, t := range st.transactions {
		if t.InstallmentID == installmentID {
			result = append(result, copyTransaction(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func sortByDueDate(installments []*domain.Installment) {
	sort.SliceStable(installments, func(i, j int) bool {
		if installments[i].DueDate.Equal(installments[j].DueDate) {
			return installments[i].ID < installments[j].ID
		}
		return installments[i].DueDate.Before(installments[j].DueDate)
	})
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func copyAgent(a *domain.Agent) *domain.Agent {
	c := *a
	return &c
}

func copyBorrower(b *domain.Borrower) *domain.Borrower {
	c := *b
	if b.AgentID != nil {
		id := *b.AgentID
		c.AgentID = &id
	}
	return &c
}

func copyLoan(l *domain.Loan) *domain.Loan {
	c := *l
	return &c
}

func copyInstallment(i *domain.Installment) *domain.Installment {
	c := *i
	if i.PaidAt != nil {
		paidAt := *i.PaidAt
		c.PaidAt = &paidAt
	}
	return &c
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	if t.Notes != nil {
		notes := *t.Notes
		c.Notes = &notes
	}
	return &c
}
