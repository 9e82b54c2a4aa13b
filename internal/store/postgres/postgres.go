// Package postgres is the SQL persistence adapter, built on pgx. The
// unit of work maps directly onto a database transaction; in-scope
// reads of accounts, positions and orders take row locks so that two
// concurrent reservation checks can never both pass on the same row.
package postgres

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

//go:embed schema.sql
var schema string

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// every query can run either directly or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, domain.Infra(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.Infra(err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema applies the embedded schema. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so this is safe to run at every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return domain.Infra(err)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Do runs fn inside a database transaction. fn's error (or a commit
// failure) rolls the transaction back; only domain errors pass through
// unwrapped.
func (s *Store) Do(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Infra(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Infra(err)
	}
	return nil
}

func (s *Store) Customers() store.CustomerStore { return customerStore{q: s.pool} }
func (s *Store) Accounts() store.AccountStore   { return accountStore{q: s.pool} }
func (s *Store) Shares() store.ShareStore       { return shareStore{q: s.pool} }
func (s *Store) Orders() store.OrderStore       { return orderStore{q: s.pool} }
func (s *Store) Positions() store.PositionStore { return positionStore{q: s.pool} }
func (s *Store) Trades() store.TradeStore       { return tradeStore{q: s.pool} }

// pgTx exposes the stores bound to one transaction. Reads that back a
// reservation or settlement decision lock their rows.
type pgTx struct {
	q pgx.Tx
}

func (t pgTx) Customers() store.CustomerStore { return customerStore{q: t.q} }
func (t pgTx) Accounts() store.AccountStore   { return accountStore{q: t.q, forUpdate: true} }
func (t pgTx) Shares() store.ShareStore       { return shareStore{q: t.q} }
func (t pgTx) Orders() store.OrderStore       { return orderStore{q: t.q, forUpdate: true} }
func (t pgTx) Positions() store.PositionStore { return positionStore{q: t.q, forUpdate: true} }
func (t pgTx) Trades() store.TradeStore       { return tradeStore{q: t.q} }

// isUniqueViolation reports whether err is a unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
