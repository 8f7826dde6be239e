package service

import (
	"context"

	"github.com/microfin/ledger-backend/internal/domain"
)

// installmentScope is an installment together with the records that decide who may touch it
type installmentScope struct {
	installment *domain.Installment
	loan        *domain.Loan
	borrower    *domain.Borrower
}

// loadInstallmentScope reads installment -> loan -> borrower and checks the principal
func loadInstallmentScope(ctx context.Context, repos domain.Repositories, p domain.Principal, id int32) (*installmentScope, error) {
	inst, err := repos.Installments().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	loan, err := repos.Loans().GetByID(ctx, inst.LoanID)
	if err != nil {
		return nil, err
	}
	borrower, err := repos.Borrowers().GetByID(ctx, loan.BorrowerID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessBorrower(borrower) {
		return nil, domain.ErrBorrowerNotOwned
	}
	return &installmentScope{installment: inst, loan: loan, borrower: borrower}, nil
}

// loadBorrower reads a borrower and checks the principal
func loadBorrower(ctx context.Context, repos domain.Repositories, p domain.Principal, id int32) (*domain.Borrower, error) {
	borrower, err := repos.Borrowers().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessBorrower(borrower) {
		return nil, domain.ErrBorrowerNotOwned
	}
	return borrower, nil
}
