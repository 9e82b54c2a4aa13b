package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type positionStore struct {
	q         querier
	forUpdate bool
}

func (s positionStore) Get(ctx context.Context, customerID, shareID string) (domain.SecuritiesPosition, error) {
	query := `SELECT id, customer_id, share_id, total_quantity, blocked_quantity
	          FROM securities_positions WHERE customer_id = $1 AND share_id = $2`
	if s.forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.SecuritiesPosition
	err := s.q.QueryRow(ctx, query, customerID, shareID).Scan(
		&p.ID, &p.CustomerID, &p.ShareID, &p.TotalQuantity, &p.BlockedQuantity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SecuritiesPosition{}, domain.ErrPositionNotFound
	}
	if err != nil {
		return domain.SecuritiesPosition{}, domain.Infra(err)
	}
	return p, nil
}

func (s positionStore) Upsert(ctx context.Context, p domain.SecuritiesPosition) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO securities_positions (id, customer_id, share_id, total_quantity, blocked_quantity)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (customer_id, share_id)
		 DO UPDATE SET total_quantity = $4, blocked_quantity = $5`,
		p.ID, p.CustomerID, p.ShareID, p.TotalQuantity, p.BlockedQuantity,
	)
	return domain.Infra(err)
}

func (s positionStore) ListByCustomer(ctx context.Context, customerID string) ([]domain.SecuritiesPosition, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, customer_id, share_id, total_quantity, blocked_quantity
		 FROM securities_positions WHERE customer_id = $1 ORDER BY share_id`,
		customerID)
	if err != nil {
		return nil, domain.Infra(err)
	}
	defer rows.Close()

	out := make([]domain.SecuritiesPosition, 0)
	for rows.Next() {
		var p domain.SecuritiesPosition
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.ShareID, &p.TotalQuantity, &p.BlockedQuantity); err != nil {
			return nil, domain.Infra(err)
		}
		out = append(out, p)
	}
	return out, domain.Infra(rows.Err())
}

func (s positionStore) HasHoldingsByShare(ctx context.Context, shareID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM securities_positions
		   WHERE share_id = $1 AND total_quantity > 0
		 )`, shareID,
	).Scan(&exists)
	return exists, domain.Infra(err)
}
