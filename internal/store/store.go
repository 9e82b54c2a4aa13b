// Package store defines the persistence capability interfaces the
// engine and services depend on. Two adapters implement them: an
// in-memory one (package memory) and a Postgres one (package postgres).
// The engine only ever sees these interfaces.
package store

import (
	"context"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

// CustomerStore persists customers.
type CustomerStore interface {
	// Create fails with domain.ErrCustomerExists when the email is taken.
	Create(ctx context.Context, c domain.Customer) error
	GetByID(ctx context.Context, id string) (domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (domain.Customer, error)
}

// AccountStore persists cash accounts, one per customer.
type AccountStore interface {
	Create(ctx context.Context, a domain.Account) error
	GetByCustomer(ctx context.Context, customerID string) (domain.Account, error)
	Update(ctx context.Context, a domain.Account) error
}

// ShareStore persists tradable instruments.
type ShareStore interface {
	Create(ctx context.Context, s domain.Share) error
	GetByID(ctx context.Context, id string) (domain.Share, error)
	List(ctx context.Context) ([]domain.Share, error)
	Update(ctx context.Context, s domain.Share) error
	Delete(ctx context.Context, id string) error
}

// OrderStore persists orders. Orders are never deleted; terminal
// statuses are retained as history.
type OrderStore interface {
	Create(ctx context.Context, o domain.Order) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	Update(ctx context.Context, o domain.Order) error
	// ListOpen returns every open or partially filled order, oldest
	// first. The order books are rebuilt from this at startup.
	ListOpen(ctx context.Context) ([]domain.Order, error)
	// ListByCustomer returns a customer's orders newest first, with an
	// optional status filter and 1-based pagination. The second return
	// value is the total match count before pagination.
	ListByCustomer(ctx context.Context, customerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error)
	// HasOpenByShare reports whether any open order references the share.
	HasOpenByShare(ctx context.Context, shareID string) (bool, error)
}

// PositionStore persists securities positions, unique per
// (customer, share).
type PositionStore interface {
	// Get fails with domain.ErrPositionNotFound when the customer has
	// never held the share; callers create positions lazily.
	Get(ctx context.Context, customerID, shareID string) (domain.SecuritiesPosition, error)
	Upsert(ctx context.Context, p domain.SecuritiesPosition) error
	ListByCustomer(ctx context.Context, customerID string) ([]domain.SecuritiesPosition, error)
	// HasHoldingsByShare reports whether any position in the share has
	// a non-zero total quantity.
	HasHoldingsByShare(ctx context.Context, shareID string) (bool, error)
}

// TradeStore persists the append-only trade ledger.
type TradeStore interface {
	Append(ctx context.Context, t domain.ShareTransaction) error
	ListByShare(ctx context.Context, shareID string) ([]domain.ShareTransaction, error)
}

// Tx bundles every store inside one atomic scope.
type Tx interface {
	Customers() CustomerStore
	Accounts() AccountStore
	Shares() ShareStore
	Orders() OrderStore
	Positions() PositionStore
	Trades() TradeStore
}

// Store is the full persistence surface: direct (committed-state)
// reads plus the unit of work. Do runs fn atomically — if fn returns
// an error every write performed inside the scope is rolled back and
// the error is returned unchanged. No concurrent reader observes an
// intermediate state of a scope.
type Store interface {
	Tx
	Do(ctx context.Context, fn func(tx Tx) error) error
}
