package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type orderStore struct {
	q         querier
	forUpdate bool
}

const orderColumns = `id, customer_id, share_id, direction, quantity, price_limit, validity,
	status, filled_quantity, remaining_quantity, cancelled_quantity,
	blocked_amount, blocked_quantity, captured_at, cancelled_at, expired_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ShareID, &o.Direction, &o.Quantity, &o.PriceLimit, &o.Validity,
		&o.Status, &o.FilledQuantity, &o.RemainingQuantity, &o.CancelledQuantity,
		&o.BlockedAmount, &o.BlockedQuantity, &o.CapturedAt, &o.CancelledAt, &o.ExpiredAt,
	)
	return o, err
}

func (s orderStore) Create(ctx context.Context, o domain.Order) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.CustomerID, o.ShareID, o.Direction, o.Quantity, o.PriceLimit, o.Validity,
		o.Status, o.FilledQuantity, o.RemainingQuantity, o.CancelledQuantity,
		o.BlockedAmount, o.BlockedQuantity, o.CapturedAt, o.CancelledAt, o.ExpiredAt,
	)
	return domain.Infra(err)
}

func (s orderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if s.forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(s.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, domain.Infra(err)
	}
	return o, nil
}

func (s orderStore) Update(ctx context.Context, o domain.Order) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE orders
		 SET status = $2, filled_quantity = $3, remaining_quantity = $4,
		     cancelled_quantity = $5, blocked_amount = $6, blocked_quantity = $7,
		     cancelled_at = $8, expired_at = $9
		 WHERE id = $1`,
		o.ID, o.Status, o.FilledQuantity, o.RemainingQuantity,
		o.CancelledQuantity, o.BlockedAmount, o.BlockedQuantity,
		o.CancelledAt, o.ExpiredAt,
	)
	if err != nil {
		return domain.Infra(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s orderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status IN ('open', 'partially_filled')
		 ORDER BY captured_at, id`)
	if err != nil {
		return nil, domain.Infra(err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (s orderStore) ListByCustomer(ctx context.Context, customerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	where := `WHERE customer_id = $1`
	args := []any{customerID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, *status)
	}

	var total int
	err := s.q.QueryRow(ctx, `SELECT count(*) FROM orders `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, domain.Infra(err)
	}

	offset := (page - 1) * limit
	query := `SELECT ` + orderColumns + ` FROM orders ` + where +
		` ORDER BY captured_at DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, domain.Infra(err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	return orders, total, err
}

func (s orderStore) HasOpenByShare(ctx context.Context, shareID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM orders
		   WHERE share_id = $1 AND status IN ('open', 'partially_filled')
		 )`, shareID,
	).Scan(&exists)
	return exists, domain.Infra(err)
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Infra(err)
		}
		out = append(out, o)
	}
	return out, domain.Infra(rows.Err())
}
