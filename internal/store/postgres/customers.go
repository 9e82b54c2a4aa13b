package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type customerStore struct {
	q querier
}

func (s customerStore) Create(ctx context.Context, c domain.Customer) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO customers (id, email, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Email, c.Name, c.PasswordHash, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrCustomerExists
	}
	return domain.Infra(err)
}

func (s customerStore) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

func (s customerStore) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return s.get(ctx, `WHERE email = $1`, email)
}

func (s customerStore) get(ctx context.Context, where string, arg any) (domain.Customer, error) {
	var c domain.Customer
	err := s.q.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM customers `+where,
		arg,
	).Scan(&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.Customer{}, domain.Infra(err)
	}
	return c, nil
}
