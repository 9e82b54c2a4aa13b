// Package memory is the in-memory persistence adapter. All state
// lives in maps guarded by one RWMutex; the unit of work snapshots
// the tables before running its scope and restores them on failure,
// so a failed scope leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// tables holds every in-memory table. Values are stored by value:
// reads hand out copies and writes copy in, so callers never share
// mutable state with the store.
type tables struct {
	customers      map[string]domain.Customer
	customerEmails map[string]string // email → customer id
	accounts       map[string]domain.Account // customer id → account
	shares         map[string]domain.Share
	orders         map[string]domain.Order
	customerOrders map[string][]string // customer id → order ids, oldest first
	positions      map[string]domain.SecuritiesPosition // customer id + "\x00" + share id
	trades         map[string][]domain.ShareTransaction // share id → chronological
}

func newTables() *tables {
	return &tables{
		customers:      make(map[string]domain.Customer),
		customerEmails: make(map[string]string),
		accounts:       make(map[string]domain.Account),
		shares:         make(map[string]domain.Share),
		orders:         make(map[string]domain.Order),
		customerOrders: make(map[string][]string),
		positions:      make(map[string]domain.SecuritiesPosition),
		trades:         make(map[string][]domain.ShareTransaction),
	}
}

func posKey(customerID, shareID string) string {
	return customerID + "\x00" + shareID
}

// clone deep-copies the tables for the unit-of-work snapshot.
func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.customers {
		c.customers[k] = v
	}
	for k, v := range t.customerEmails {
		c.customerEmails[k] = v
	}
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.shares {
		c.shares[k] = v
	}
	for k, v := range t.orders {
		c.orders[k] = v
	}
	for k, v := range t.customerOrders {
		ids := make([]string, len(v))
		copy(ids, v)
		c.customerOrders[k] = ids
	}
	for k, v := range t.positions {
		c.positions[k] = v
	}
	for k, v := range t.trades {
		ts := make([]domain.ShareTransaction, len(v))
		copy(ts, v)
		c.trades[k] = ts
	}
	return c
}

// Core table operations, no locking. The Store views and the unit of
// work add the locking around them.

func (t *tables) createCustomer(c domain.Customer) error {
	if _, taken := t.customerEmails[c.Email]; taken {
		return domain.ErrCustomerExists
	}
	t.customers[c.ID] = c
	t.customerEmails[c.Email] = c.ID
	return nil
}

func (t *tables) getCustomer(id string) (domain.Customer, error) {
	c, ok := t.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return c, nil
}

func (t *tables) getCustomerByEmail(email string) (domain.Customer, error) {
	id, ok := t.customerEmails[email]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return t.customers[id], nil
}

func (t *tables) createAccount(a domain.Account) {
	t.accounts[a.CustomerID] = a
}

func (t *tables) getAccount(customerID string) (domain.Account, error) {
	a, ok := t.accounts[customerID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (t *tables) createShare(s domain.Share) {
	t.shares[s.ID] = s
}

func (t *tables) getShare(id string) (domain.Share, error) {
	s, ok := t.shares[id]
	if !ok {
		return domain.Share{}, domain.ErrShareNotFound
	}
	return s, nil
}

func (t *tables) listShares() []domain.Share {
	out := make([]domain.Share, 0, len(t.shares))
	for _, s := range t.shares {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) deleteShare(id string) error {
	if _, ok := t.shares[id]; !ok {
		return domain.ErrShareNotFound
	}
	delete(t.shares, id)
	return nil
}

func (t *tables) createOrder(o domain.Order) {
	t.orders[o.ID] = o
	t.customerOrders[o.CustomerID] = append(t.customerOrders[o.CustomerID], o.ID)
}

func (t *tables) getOrder(id string) (domain.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (t *tables) listOpenOrders() []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range t.orders {
		if o.Open() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) listOrdersByCustomer(customerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int) {
	all := t.customerOrders[customerID]

	// Newest first, optional status filter.
	filtered := make([]domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		o := t.orders[all[i]]
		if status != nil && o.Status != *status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)
	start := (page - 1) * limit
	if start >= total {
		return []domain.Order{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total
}

func (t *tables) hasOpenByShare(shareID string) bool {
	for _, o := range t.orders {
		if o.ShareID == shareID && o.Open() {
			return true
		}
	}
	return false
}

func (t *tables) getPosition(customerID, shareID string) (domain.SecuritiesPosition, error) {
	p, ok := t.positions[posKey(customerID, shareID)]
	if !ok {
		return domain.SecuritiesPosition{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (t *tables) upsertPosition(p domain.SecuritiesPosition) {
	t.positions[posKey(p.CustomerID, p.ShareID)] = p
}

func (t *tables) listPositionsByCustomer(customerID string) []domain.SecuritiesPosition {
	out := make([]domain.SecuritiesPosition, 0)
	for _, p := range t.positions {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShareID < out[j].ShareID })
	return out
}

func (t *tables) hasHoldingsByShare(shareID string) bool {
	for _, p := range t.positions {
		if p.ShareID == shareID && p.TotalQuantity > 0 {
			return true
		}
	}
	return false
}

func (t *tables) appendTrade(tr domain.ShareTransaction) {
	t.trades[tr.ShareID] = append(t.trades[tr.ShareID], tr)
}

func (t *tables) listTradesByShare(shareID string) []domain.ShareTransaction {
	ts := t.trades[shareID]
	out := make([]domain.ShareTransaction, len(ts))
	copy(out, ts)
	return out
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex
	t  *tables
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{t: newTables()}
}

// Do runs fn atomically: the tables are snapshotted up front and
// restored if fn returns an error or panics, so partial writes are
// never observed. The write lock is held for the whole scope, which
// also serializes reservation checks against concurrent mutations.
func (s *Store) Do(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.t.clone()
	committed := false
	// Covers the panic path too; the panic keeps propagating.
	defer func() {
		if !committed {
			s.t = snap
		}
	}()

	if err := fn(txView{s.t}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Customers() store.CustomerStore { return customersView{s} }
func (s *Store) Accounts() store.AccountStore   { return accountsView{s} }
func (s *Store) Shares() store.ShareStore       { return sharesView{s} }
func (s *Store) Orders() store.OrderStore       { return ordersView{s} }
func (s *Store) Positions() store.PositionStore { return positionsView{s} }
func (s *Store) Trades() store.TradeStore       { return tradesView{s} }

// txView exposes the tables inside a unit-of-work scope. The scope
// already holds the store's write lock, so methods go straight to
// the tables.
type txView struct {
	t *tables
}

func (v txView) Customers() store.CustomerStore { return txCustomers{v.t} }
func (v txView) Accounts() store.AccountStore   { return txAccounts{v.t} }
func (v txView) Shares() store.ShareStore       { return txShares{v.t} }
func (v txView) Orders() store.OrderStore       { return txOrders{v.t} }
func (v txView) Positions() store.PositionStore { return txPositions{v.t} }
func (v txView) Trades() store.TradeStore       { return txTrades{v.t} }

// Unlocked (in-scope) store views.

type txCustomers struct{ t *tables }

func (s txCustomers) Create(ctx context.Context, c domain.Customer) error {
	return s.t.createCustomer(c)
}

func (s txCustomers) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	return s.t.getCustomer(id)
}

func (s txCustomers) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return s.t.getCustomerByEmail(email)
}

type txAccounts struct{ t *tables }

func (s txAccounts) Create(ctx context.Context, a domain.Account) error {
	s.t.createAccount(a)
	return nil
}

func (s txAccounts) GetByCustomer(ctx context.Context, customerID string) (domain.Account, error) {
	return s.t.getAccount(customerID)
}

func (s txAccounts) Update(ctx context.Context, a domain.Account) error {
	s.t.createAccount(a)
	return nil
}

type txShares struct{ t *tables }

func (s txShares) Create(ctx context.Context, sh domain.Share) error {
	s.t.createShare(sh)
	return nil
}

func (s txShares) GetByID(ctx context.Context, id string) (domain.Share, error) {
	return s.t.getShare(id)
}

func (s txShares) List(ctx context.Context) ([]domain.Share, error) {
	return s.t.listShares(), nil
}

func (s txShares) Update(ctx context.Context, sh domain.Share) error {
	if _, ok := s.t.shares[sh.ID]; !ok {
		return domain.ErrShareNotFound
	}
	s.t.createShare(sh)
	return nil
}

func (s txShares) Delete(ctx context.Context, id string) error {
	return s.t.deleteShare(id)
}

type txOrders struct{ t *tables }

func (s txOrders) Create(ctx context.Context, o domain.Order) error {
	s.t.createOrder(o)
	return nil
}

func (s txOrders) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return s.t.getOrder(id)
}

func (s txOrders) Update(ctx context.Context, o domain.Order) error {
	if _, ok := s.t.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	s.t.orders[o.ID] = o
	return nil
}

func (s txOrders) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return s.t.listOpenOrders(), nil
}

func (s txOrders) ListByCustomer(ctx context.Context, customerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	orders, total := s.t.listOrdersByCustomer(customerID, status, page, limit)
	return orders, total, nil
}

func (s txOrders) HasOpenByShare(ctx context.Context, shareID string) (bool, error) {
	return s.t.hasOpenByShare(shareID), nil
}

type txPositions struct{ t *tables }

func (s txPositions) Get(ctx context.Context, customerID, shareID string) (domain.SecuritiesPosition, error) {
	return s.t.getPosition(customerID, shareID)
}

func (s txPositions) Upsert(ctx context.Context, p domain.SecuritiesPosition) error {
	s.t.upsertPosition(p)
	return nil
}

func (s txPositions) ListByCustomer(ctx context.Context, customerID string) ([]domain.SecuritiesPosition, error) {
	return s.t.listPositionsByCustomer(customerID), nil
}

func (s txPositions) HasHoldingsByShare(ctx context.Context, shareID string) (bool, error) {
	return s.t.hasHoldingsByShare(shareID), nil
}

type txTrades struct{ t *tables }

func (s txTrades) Append(ctx context.Context, tr domain.ShareTransaction) error {
	s.t.appendTrade(tr)
	return nil
}

func (s txTrades) ListByShare(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	return s.t.listTradesByShare(shareID), nil
}

// Locked (committed-state) store views.

type customersView struct{ s *Store }

func (v customersView) Create(ctx context.Context, c domain.Customer) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.t.createCustomer(c)
}

func (v customersView) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getCustomer(id)
}

func (v customersView) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getCustomerByEmail(email)
}

type accountsView struct{ s *Store }

func (v accountsView) Create(ctx context.Context, a domain.Account) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.createAccount(a)
	return nil
}

func (v accountsView) GetByCustomer(ctx context.Context, customerID string) (domain.Account, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getAccount(customerID)
}

func (v accountsView) Update(ctx context.Context, a domain.Account) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.createAccount(a)
	return nil
}

type sharesView struct{ s *Store }

func (v sharesView) Create(ctx context.Context, sh domain.Share) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.createShare(sh)
	return nil
}

func (v sharesView) GetByID(ctx context.Context, id string) (domain.Share, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getShare(id)
}

func (v sharesView) List(ctx context.Context) ([]domain.Share, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.listShares(), nil
}

func (v sharesView) Update(ctx context.Context, sh domain.Share) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.t.shares[sh.ID]; !ok {
		return domain.ErrShareNotFound
	}
	v.s.t.createShare(sh)
	return nil
}

func (v sharesView) Delete(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.t.deleteShare(id)
}

type ordersView struct{ s *Store }

func (v ordersView) Create(ctx context.Context, o domain.Order) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.createOrder(o)
	return nil
}

func (v ordersView) GetByID(ctx context.Context, id string) (domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getOrder(id)
}

func (v ordersView) Update(ctx context.Context, o domain.Order) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.t.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	v.s.t.orders[o.ID] = o
	return nil
}

func (v ordersView) ListOpen(ctx context.Context) ([]domain.Order, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.listOpenOrders(), nil
}

func (v ordersView) ListByCustomer(ctx context.Context, customerID string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	orders, total := v.s.t.listOrdersByCustomer(customerID, status, page, limit)
	return orders, total, nil
}

func (v ordersView) HasOpenByShare(ctx context.Context, shareID string) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.hasOpenByShare(shareID), nil
}

type positionsView struct{ s *Store }

func (v positionsView) Get(ctx context.Context, customerID, shareID string) (domain.SecuritiesPosition, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.getPosition(customerID, shareID)
}

func (v positionsView) Upsert(ctx context.Context, p domain.SecuritiesPosition) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.upsertPosition(p)
	return nil
}

func (v positionsView) ListByCustomer(ctx context.Context, customerID string) ([]domain.SecuritiesPosition, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.listPositionsByCustomer(customerID), nil
}

func (v positionsView) HasHoldingsByShare(ctx context.Context, shareID string) (bool, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.hasHoldingsByShare(shareID), nil
}

type tradesView struct{ s *Store }

func (v tradesView) Append(ctx context.Context, tr domain.ShareTransaction) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.t.appendTrade(tr)
	return nil
}

func (v tradesView) ListByShare(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.t.listTradesByShare(shareID), nil
}
