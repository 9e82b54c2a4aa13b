package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// Matcher implements order placement, cancellation, expiry and the
// batch matching pass. Every mutation runs under the target share's
// book lock and inside one unit-of-work scope, in that order, so a
// failed operation leaves neither the stores nor the book changed.
type Matcher struct {
	books *BookManager
	store store.Store
}

// NewMatcher creates a Matcher with the given dependencies.
func NewMatcher(books *BookManager, st store.Store) *Matcher {
	return &Matcher{books: books, store: st}
}

// PlaceOrderInput is a validated order placement request. The service
// layer rejects malformed input before it gets here.
type PlaceOrderInput struct {
	CustomerID string
	ShareID    string
	Direction  domain.OrderDirection
	Quantity   int64
	PriceLimit int64
	Validity   domain.OrderValidity
}

// PlaceOrder reserves the order's resources (funds for a buy, shares
// for a sell), persists the order and rests it on the book. Buy
// reservations are sized at quantity × price limit; the matching pass
// refunds the excess over the execution price fill by fill.
//
// Unknown and inactive shares both fail with ErrShareNotFound:
// deactivation hides a share from order placement entirely.
func (m *Matcher) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	// quantity × limit wraps negative past MaxInt64 and would slip
	// through the available-funds check below.
	required, ok := mulCents(in.Quantity, in.PriceLimit)
	if !ok {
		return domain.Order{}, &domain.ValidationError{
			Message: "order value exceeds the maximum supported amount",
		}
	}

	book := m.books.GetOrCreate(in.ShareID)
	book.Lock()
	defer book.Unlock()

	var order domain.Order
	err := m.store.Do(ctx, func(tx store.Tx) error {
		share, err := tx.Shares().GetByID(ctx, in.ShareID)
		if err != nil {
			return err
		}
		if !share.Active {
			return domain.ErrShareNotFound
		}

		order = domain.Order{
			ID:                uuid.New().String(),
			CustomerID:        in.CustomerID,
			ShareID:           in.ShareID,
			Direction:         in.Direction,
			Quantity:          in.Quantity,
			PriceLimit:        in.PriceLimit,
			Validity:          in.Validity,
			Status:            domain.OrderStatusOpen,
			RemainingQuantity: in.Quantity,
			CapturedAt:        time.Now(),
		}

		if in.Direction == domain.OrderDirectionBuy {
			acct, err := tx.Accounts().GetByCustomer(ctx, in.CustomerID)
			if err != nil {
				return err
			}
			if acct.Available() < required {
				return domain.ErrInsufficientFunds
			}
			acct.BlockedAmount += required
			order.BlockedAmount = required
			if err := tx.Accounts().Update(ctx, acct); err != nil {
				return err
			}
		} else {
			pos, err := tx.Positions().Get(ctx, in.CustomerID, in.ShareID)
			if errors.Is(err, domain.ErrPositionNotFound) {
				pos = domain.SecuritiesPosition{
					ID:         uuid.New().String(),
					CustomerID: in.CustomerID,
					ShareID:    in.ShareID,
				}
			} else if err != nil {
				return err
			}
			if pos.Available() < in.Quantity {
				return domain.ErrInsufficientPosition
			}
			pos.BlockedQuantity += in.Quantity
			order.BlockedQuantity = in.Quantity
			if err := tx.Positions().Upsert(ctx, pos); err != nil {
				return err
			}
		}

		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	entry := &Entry{
		OrderID:    order.ID,
		Price:      order.PriceLimit,
		CapturedAt: order.CapturedAt,
		Remaining:  order.RemainingQuantity,
	}
	if order.Direction == domain.OrderDirectionBuy {
		book.InsertBid(entry)
	} else {
		book.InsertAsk(entry)
	}

	return order, nil
}

// CancelOrder cancels an open or partially filled order on behalf of
// its owner, releasing exactly the reservation still held for the
// unfilled remainder.
func (m *Matcher) CancelOrder(ctx context.Context, orderID, customerID string) (domain.Order, error) {
	order, err := m.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.CustomerID != customerID {
		return domain.Order{}, domain.ErrNotOrderOwner
	}
	if !order.Open() {
		return domain.Order{}, domain.ErrOrderNotOpen
	}
	return m.terminate(ctx, order, domain.OrderStatusCancelled)
}

// ExpireOrder expires a day order through the same release path as
// cancellation. Orders that reached a terminal state since the expiry
// sweep last looked are left alone.
func (m *Matcher) ExpireOrder(ctx context.Context, orderID string) error {
	order, err := m.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Open() {
		return nil
	}
	_, err = m.terminate(ctx, order, domain.OrderStatusExpired)
	if errors.Is(err, domain.ErrOrderNotOpen) {
		return nil
	}
	return err
}

// terminate moves an order to cancelled or expired, releasing the
// remaining reservation. The status is re-checked inside the scope:
// a matching pass may have filled the order between the caller's
// check and the book lock.
func (m *Matcher) terminate(ctx context.Context, order domain.Order, status domain.OrderStatus) (domain.Order, error) {
	book := m.books.GetOrCreate(order.ShareID)
	book.Lock()
	defer book.Unlock()

	var out domain.Order
	err := m.store.Do(ctx, func(tx store.Tx) error {
		cur, err := tx.Orders().GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if !cur.Open() {
			return domain.ErrOrderNotOpen
		}

		if cur.Direction == domain.OrderDirectionBuy {
			acct, err := tx.Accounts().GetByCustomer(ctx, cur.CustomerID)
			if err != nil {
				return err
			}
			acct.BlockedAmount -= cur.BlockedAmount
			if err := tx.Accounts().Update(ctx, acct); err != nil {
				return err
			}
		} else {
			pos, err := tx.Positions().Get(ctx, cur.CustomerID, cur.ShareID)
			if err != nil {
				return err
			}
			pos.BlockedQuantity -= cur.BlockedQuantity
			if err := tx.Positions().Upsert(ctx, pos); err != nil {
				return err
			}
		}

		now := time.Now()
		cur.CancelledQuantity = cur.RemainingQuantity
		cur.RemainingQuantity = 0
		cur.BlockedAmount = 0
		cur.BlockedQuantity = 0
		cur.Status = status
		if status == domain.OrderStatusExpired {
			cur.ExpiredAt = &now
		} else {
			cur.CancelledAt = &now
		}

		out = cur
		return tx.Orders().Update(ctx, cur)
	})
	if err != nil {
		return domain.Order{}, err
	}

	book.Remove(order.ID)
	return out, nil
}

// ExecuteMatching runs one matching pass over a share's book: it
// repeatedly crosses the best bid against the best ask while the bid
// price is at or above the ask price, settling each trade against the
// orders, positions, accounts and the share's last executed price.
// The whole pass is one unit-of-work scope; the book is only touched
// after it commits. Returns the trades produced, oldest first —
// an empty slice when nothing crosses.
func (m *Matcher) ExecuteMatching(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	book := m.books.GetOrCreate(shareID)
	book.Lock()
	defer book.Unlock()

	trades := make([]domain.ShareTransaction, 0)
	consumed := make(map[string]int64) // order id → quantity filled this pass

	err := m.store.Do(ctx, func(tx store.Tx) error {
		trades = trades[:0]
		clear(consumed)

		share, err := tx.Shares().GetByID(ctx, shareID)
		if err != nil {
			return err
		}

		orders := make(map[string]*domain.Order)
		accounts := make(map[string]*domain.Account)
		positions := make(map[string]*domain.SecuritiesPosition)

		loadOrder := func(id string) (*domain.Order, error) {
			if o, ok := orders[id]; ok {
				return o, nil
			}
			o, err := tx.Orders().GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			orders[id] = &o
			return &o, nil
		}
		loadAccount := func(customerID string) (*domain.Account, error) {
			if a, ok := accounts[customerID]; ok {
				return a, nil
			}
			a, err := tx.Accounts().GetByCustomer(ctx, customerID)
			if err != nil {
				return nil, err
			}
			accounts[customerID] = &a
			return &a, nil
		}
		loadPosition := func(customerID string) (*domain.SecuritiesPosition, error) {
			if p, ok := positions[customerID]; ok {
				return p, nil
			}
			p, err := tx.Positions().Get(ctx, customerID, shareID)
			if errors.Is(err, domain.ErrPositionNotFound) {
				// Created lazily on the buyer's first acquisition.
				p = domain.SecuritiesPosition{
					ID:         uuid.New().String(),
					CustomerID: customerID,
					ShareID:    shareID,
				}
			} else if err != nil {
				return nil, err
			}
			positions[customerID] = &p
			return &p, nil
		}

		// The pass walks both sides in priority order. Entries are
		// only read here; the book itself is updated after commit.
		bids := book.BidEntries()
		asks := book.AskEntries()
		executedAt := time.Now()

		var i, j int
		var bidRem, askRem int64
		if len(bids) > 0 {
			bidRem = bids[0].Remaining
		}
		if len(asks) > 0 {
			askRem = asks[0].Remaining
		}

		for i < len(bids) && j < len(asks) {
			be, ae := bids[i], asks[j]
			if be.Price < ae.Price {
				break
			}

			buyOrd, err := loadOrder(be.OrderID)
			if err != nil {
				return err
			}
			sellOrd, err := loadOrder(ae.OrderID)
			if err != nil {
				return err
			}

			qty := min(bidRem, askRem)

			// The earlier-captured order was resting first and sets
			// the price; an exact tie falls back to the ask's price.
			px := ae.Price
			if be.CapturedAt.Before(ae.CapturedAt) {
				px = be.Price
			}

			// Fill both orders. The buy side's reservation is consumed
			// at the limit price: the execution cost plus the immediate
			// refund of the qty × (limit − px) excess. Placement caps
			// quantity × limit, so these products only overflow on rows
			// written before that guard existed.
			buyReserve, ok := mulCents(qty, buyOrd.PriceLimit)
			if !ok {
				return fmt.Errorf("order %s: reservation amount overflows", buyOrd.ID)
			}
			cost, ok := mulCents(qty, px)
			if !ok {
				return fmt.Errorf("orders %s/%s: settlement amount overflows", buyOrd.ID, sellOrd.ID)
			}
			applyFill(buyOrd, qty)
			buyOrd.BlockedAmount -= buyReserve
			applyFill(sellOrd, qty)
			sellOrd.BlockedQuantity -= qty

			buyer, err := loadAccount(buyOrd.CustomerID)
			if err != nil {
				return err
			}
			seller, err := loadAccount(sellOrd.CustomerID)
			if err != nil {
				return err
			}
			buyer.Balance -= cost
			buyer.BlockedAmount -= buyReserve
			seller.Balance += cost

			sellerPos, err := loadPosition(sellOrd.CustomerID)
			if err != nil {
				return err
			}
			buyerPos, err := loadPosition(buyOrd.CustomerID)
			if err != nil {
				return err
			}
			sellerPos.TotalQuantity -= qty
			sellerPos.BlockedQuantity -= qty
			buyerPos.TotalQuantity += qty

			trades = append(trades, domain.ShareTransaction{
				ID:             uuid.New().String(),
				ShareID:        shareID,
				BuyOrderID:     buyOrd.ID,
				SellOrderID:    sellOrd.ID,
				Quantity:       qty,
				ExecutionPrice: px,
				ExecutedAt:     executedAt,
			})
			price := px
			share.LastExecutedPrice = &price

			consumed[be.OrderID] += qty
			consumed[ae.OrderID] += qty
			bidRem -= qty
			askRem -= qty
			if bidRem == 0 {
				i++
				if i < len(bids) {
					bidRem = bids[i].Remaining
				}
			}
			if askRem == 0 {
				j++
				if j < len(asks) {
					askRem = asks[j].Remaining
				}
			}
		}

		if len(trades) == 0 {
			return nil
		}

		// Flush in sorted key order so concurrent passes on different
		// shares lock shared account rows in a stable order.
		for _, id := range sortedKeys(orders) {
			if err := tx.Orders().Update(ctx, *orders[id]); err != nil {
				return err
			}
		}
		for _, id := range sortedKeys(accounts) {
			if err := tx.Accounts().Update(ctx, *accounts[id]); err != nil {
				return err
			}
		}
		for _, id := range sortedKeys(positions) {
			if err := tx.Positions().Upsert(ctx, *positions[id]); err != nil {
				return err
			}
		}
		for _, t := range trades {
			if err := tx.Trades().Append(ctx, t); err != nil {
				return err
			}
		}
		return tx.Shares().Update(ctx, share)
	})
	if err != nil {
		return nil, err
	}

	for orderID, qty := range consumed {
		book.Reduce(orderID, qty)
	}

	return trades, nil
}

// RebuildBooks reloads every open order into its share's book. Run at
// startup before the server accepts traffic; returns the open orders
// so the caller can re-register day orders for expiry.
func (m *Matcher) RebuildBooks(ctx context.Context) ([]domain.Order, error) {
	open, err := m.store.Orders().ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	for _, o := range open {
		book := m.books.GetOrCreate(o.ShareID)
		book.Lock()
		entry := &Entry{
			OrderID:    o.ID,
			Price:      o.PriceLimit,
			CapturedAt: o.CapturedAt,
			Remaining:  o.RemainingQuantity,
		}
		if o.Direction == domain.OrderDirectionBuy {
			book.InsertBid(entry)
		} else {
			book.InsertAsk(entry)
		}
		book.Unlock()
	}
	return open, nil
}

// Books returns the book manager, for read-only snapshot access.
func (m *Matcher) Books() *BookManager {
	return m.books
}

func applyFill(o *domain.Order, qty int64) {
	o.RemainingQuantity -= qty
	o.FilledQuantity += qty
	if o.RemainingQuantity == 0 {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}

// mulCents returns qty × price, reporting whether the product fits in
// int64. Both arguments are positive by the time they get here.
func mulCents(qty, price int64) (int64, bool) {
	if qty > math.MaxInt64/price {
		return 0, false
	}
	return qty * price, true
}

func sortedKeys[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
