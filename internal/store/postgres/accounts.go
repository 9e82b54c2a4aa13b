package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type accountStore struct {
	q         querier
	forUpdate bool
}

func (s accountStore) Create(ctx context.Context, a domain.Account) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO accounts (id, customer_id, balance, blocked_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.CustomerID, a.Balance, a.BlockedAmount, a.CreatedAt,
	)
	return domain.Infra(err)
}

func (s accountStore) GetByCustomer(ctx context.Context, customerID string) (domain.Account, error) {
	query := `SELECT id, customer_id, balance, blocked_amount, created_at
	          FROM accounts WHERE customer_id = $1`
	if s.forUpdate {
		query += ` FOR UPDATE`
	}

	var a domain.Account
	err := s.q.QueryRow(ctx, query, customerID).Scan(
		&a.ID, &a.CustomerID, &a.Balance, &a.BlockedAmount, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, domain.Infra(err)
	}
	return a, nil
}

func (s accountStore) Update(ctx context.Context, a domain.Account) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE accounts SET balance = $2, blocked_amount = $3 WHERE id = $1`,
		a.ID, a.Balance, a.BlockedAmount,
	)
	if err != nil {
		return domain.Infra(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrAccountNotFound
	}
	return nil
}
