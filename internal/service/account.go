package service

import (
	"context"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// AccountService covers the cash account surface: balance queries,
// deposits and withdrawals. Withdrawals respect the amount blocked by
// open buy orders.
type AccountService struct {
	store store.Store
}

// NewAccountService creates an AccountService.
func NewAccountService(st store.Store) *AccountService {
	return &AccountService{store: st}
}

// Get returns the customer's account.
func (s *AccountService) Get(ctx context.Context, customerID string) (domain.Account, error) {
	return s.store.Accounts().GetByCustomer(ctx, customerID)
}

// Deposit credits the account with a positive dollar amount.
func (s *AccountService) Deposit(ctx context.Context, customerID string, amount float64) (domain.Account, error) {
	cents, err := parseAmount(amount)
	if err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err = s.store.Do(ctx, func(tx store.Tx) error {
		acct, err := tx.Accounts().GetByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		acct.Balance += cents
		updated = acct
		return tx.Accounts().Update(ctx, acct)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

// Withdraw debits the account. It fails with ErrInsufficientFunds when
// the amount exceeds the available (unblocked) balance.
func (s *AccountService) Withdraw(ctx context.Context, customerID string, amount float64) (domain.Account, error) {
	cents, err := parseAmount(amount)
	if err != nil {
		return domain.Account{}, err
	}

	var updated domain.Account
	err = s.store.Do(ctx, func(tx store.Tx) error {
		acct, err := tx.Accounts().GetByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		if acct.Available() < cents {
			return domain.ErrInsufficientFunds
		}
		acct.Balance -= cents
		updated = acct
		return tx.Accounts().Update(ctx, acct)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return updated, nil
}

// parseAmount validates a positive dollar amount and converts it to cents.
func parseAmount(amount float64) (int64, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{
			Message: "amount must be greater than 0",
		}
	}
	cents, err := domain.DollarsToCents(amount)
	if err != nil {
		return 0, &domain.ValidationError{
			Message: "amount must have at most 2 decimal places",
		}
	}
	return cents, nil
}
