package postgres

import (
	"context"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type tradeStore struct {
	q querier
}

func (s tradeStore) Append(ctx context.Context, t domain.ShareTransaction) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO share_transactions (id, share_id, buy_order_id, sell_order_id, quantity, execution_price, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.ShareID, t.BuyOrderID, t.SellOrderID, t.Quantity, t.ExecutionPrice, t.ExecutedAt,
	)
	return domain.Infra(err)
}

func (s tradeStore) ListByShare(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, share_id, buy_order_id, sell_order_id, quantity, execution_price, executed_at
		 FROM share_transactions WHERE share_id = $1 ORDER BY executed_at, id`,
		shareID)
	if err != nil {
		return nil, domain.Infra(err)
	}
	defer rows.Close()

	out := make([]domain.ShareTransaction, 0)
	for rows.Next() {
		var t domain.ShareTransaction
		if err := rows.Scan(&t.ID, &t.ShareID, &t.BuyOrderID, &t.SellOrderID, &t.Quantity, &t.ExecutionPrice, &t.ExecutedAt); err != nil {
			return nil, domain.Infra(err)
		}
		out = append(out, t)
	}
	return out, domain.Infra(rows.Err())
}
