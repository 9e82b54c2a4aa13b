package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

type shareStore struct {
	q querier
}

const shareColumns = `id, name, total_parts, initial_price, last_executed_price, active, created_at`

func (s shareStore) Create(ctx context.Context, sh domain.Share) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO shares (`+shareColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sh.ID, sh.Name, sh.TotalParts, sh.InitialPrice, sh.LastExecutedPrice, sh.Active, sh.CreatedAt,
	)
	return domain.Infra(err)
}

func (s shareStore) GetByID(ctx context.Context, id string) (domain.Share, error) {
	var sh domain.Share
	err := s.q.QueryRow(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE id = $1`, id,
	).Scan(&sh.ID, &sh.Name, &sh.TotalParts, &sh.InitialPrice, &sh.LastExecutedPrice, &sh.Active, &sh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Share{}, domain.ErrShareNotFound
	}
	if err != nil {
		return domain.Share{}, domain.Infra(err)
	}
	return sh, nil
}

func (s shareStore) List(ctx context.Context) ([]domain.Share, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+shareColumns+` FROM shares ORDER BY created_at, id`)
	if err != nil {
		return nil, domain.Infra(err)
	}
	defer rows.Close()

	out := make([]domain.Share, 0)
	for rows.Next() {
		var sh domain.Share
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.TotalParts, &sh.InitialPrice, &sh.LastExecutedPrice, &sh.Active, &sh.CreatedAt); err != nil {
			return nil, domain.Infra(err)
		}
		out = append(out, sh)
	}
	return out, domain.Infra(rows.Err())
}

func (s shareStore) Update(ctx context.Context, sh domain.Share) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE shares
		 SET name = $2, total_parts = $3, initial_price = $4, last_executed_price = $5, active = $6
		 WHERE id = $1`,
		sh.ID, sh.Name, sh.TotalParts, sh.InitialPrice, sh.LastExecutedPrice, sh.Active,
	)
	if err != nil {
		return domain.Infra(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrShareNotFound
	}
	return nil
}

func (s shareStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM shares WHERE id = $1`, id)
	if err != nil {
		return domain.Infra(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrShareNotFound
	}
	return nil
}
