package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store/memory"
)

// newTestMatcher creates a Matcher backed by a fresh in-memory store.
func newTestMatcher() (*Matcher, *memory.Store) {
	st := memory.New()
	m := NewMatcher(NewBookManager(), st)
	return m, st
}

// seedCustomer creates a customer with a cash account.
func seedCustomer(t rapid.TB, st *memory.Store, id string, cash int64) {
	t.Helper()
	ctx := context.Background()
	err := st.Customers().Create(ctx, domain.Customer{
		ID:        id,
		Email:     id + "@example.com",
		Name:      id,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed customer %s: %v", id, err)
	}
	err = st.Accounts().Create(ctx, domain.Account{
		ID:         "acct-" + id,
		CustomerID: id,
		Balance:    cash,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed account for %s: %v", id, err)
	}
}

// seedShare registers an active share.
func seedShare(t rapid.TB, st *memory.Store, id string, initialPrice int64) {
	t.Helper()
	err := st.Shares().Create(context.Background(), domain.Share{
		ID:           id,
		Name:         id,
		TotalParts:   1000,
		InitialPrice: initialPrice,
		Active:       true,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("seed share %s: %v", id, err)
	}
}

// seedPosition gives a customer an existing holding.
func seedPosition(t rapid.TB, st *memory.Store, customerID, shareID string, qty int64) {
	t.Helper()
	err := st.Positions().Upsert(context.Background(), domain.SecuritiesPosition{
		ID:            "pos-" + customerID + "-" + shareID,
		CustomerID:    customerID,
		ShareID:       shareID,
		TotalQuantity: qty,
	})
	if err != nil {
		t.Fatalf("seed position for %s: %v", customerID, err)
	}
}

// place submits an order and fails the test on error.
func place(t rapid.TB, m *Matcher, customerID, shareID string, dir domain.OrderDirection, qty, price int64) domain.Order {
	t.Helper()
	order, err := m.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: customerID,
		ShareID:    shareID,
		Direction:  dir,
		Quantity:   qty,
		PriceLimit: price,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if err != nil {
		t.Fatalf("place order for %s: %v", customerID, err)
	}
	return order
}

func TestPlaceOrder_BuyRestsAndBlocksFunds(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)

	order := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	if order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want open", order.Status)
	}
	if order.RemainingQuantity != 5 {
		t.Errorf("remaining = %d, want 5", order.RemainingQuantity)
	}
	if order.BlockedAmount != 50000 {
		t.Errorf("blocked amount = %d, want 50000", order.BlockedAmount)
	}

	acct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if acct.BlockedAmount != 50000 {
		t.Errorf("account blocked = %d, want 50000", acct.BlockedAmount)
	}
	if acct.Balance != 100000 {
		t.Errorf("balance should not change on placement, got %d", acct.Balance)
	}

	book := m.books.GetOrCreate("acme")
	if book.BidCount() != 1 {
		t.Errorf("expected 1 bid on book, got %d", book.BidCount())
	}
}

func TestPlaceOrder_SellRestsAndBlocksQuantity(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	order := place(t, m, "seller", "acme", domain.OrderDirectionSell, 4, 10000)

	if order.BlockedQuantity != 4 {
		t.Errorf("blocked quantity = %d, want 4", order.BlockedQuantity)
	}

	pos, _ := st.Positions().Get(ctx, "seller", "acme")
	if pos.BlockedQuantity != 4 {
		t.Errorf("position blocked = %d, want 4", pos.BlockedQuantity)
	}
	if pos.TotalQuantity != 10 {
		t.Errorf("total should not change on placement, got %d", pos.TotalQuantity)
	}

	book := m.books.GetOrCreate("acme")
	if book.AskCount() != 1 {
		t.Errorf("expected 1 ask on book, got %d", book.AskCount())
	}
}

func TestPlaceOrder_InsufficientFunds(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "buyer", 49999)
	seedShare(t, st, "acme", 10000)

	_, err := m.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "buyer",
		ShareID:    "acme",
		Direction:  domain.OrderDirectionBuy,
		Quantity:   5,
		PriceLimit: 10000,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	// The failed placement must leave nothing behind.
	acct, _ := st.Accounts().GetByCustomer(context.Background(), "buyer")
	if acct.BlockedAmount != 0 {
		t.Errorf("blocked = %d after failed placement, want 0", acct.BlockedAmount)
	}
	if m.books.GetOrCreate("acme").BidCount() != 0 {
		t.Error("failed placement should not rest on the book")
	}
}

func TestPlaceOrder_RejectsOverflowingOrderValue(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 0)
	seedShare(t, st, "acme", 10000)

	// quantity × limit wraps negative past MaxInt64; without the guard
	// the wrapped value passes the available-funds check and drives the
	// blocked amount below zero.
	_, err := m.PlaceOrder(ctx, PlaceOrderInput{
		CustomerID: "buyer",
		ShareID:    "acme",
		Direction:  domain.OrderDirectionBuy,
		Quantity:   2_000_000,
		PriceLimit: 9_223_372_036_854,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("overflowing order = %v, want ValidationError", err)
	}

	acct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if acct.BlockedAmount != 0 || acct.Balance != 0 {
		t.Errorf("account = %+v after rejected placement, want untouched", acct)
	}
	if m.books.GetOrCreate("acme").BidCount() != 0 {
		t.Error("rejected placement should not rest on the book")
	}
}

func TestPlaceOrder_InsufficientPosition(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "seller", 0)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 3)

	_, err := m.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "seller",
		ShareID:    "acme",
		Direction:  domain.OrderDirectionSell,
		Quantity:   4,
		PriceLimit: 10000,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if !errors.Is(err, domain.ErrInsufficientPosition) {
		t.Errorf("expected ErrInsufficientPosition, got %v", err)
	}
}

func TestPlaceOrder_SellWithNoPosition(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "seller", 0)
	seedShare(t, st, "acme", 10000)

	_, err := m.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "seller",
		ShareID:    "acme",
		Direction:  domain.OrderDirectionSell,
		Quantity:   1,
		PriceLimit: 10000,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if !errors.Is(err, domain.ErrInsufficientPosition) {
		t.Errorf("expected ErrInsufficientPosition, got %v", err)
	}
}

func TestPlaceOrder_UnknownShare(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "buyer", 100000)

	_, err := m.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "buyer",
		ShareID:    "ghost",
		Direction:  domain.OrderDirectionBuy,
		Quantity:   1,
		PriceLimit: 10000,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if !errors.Is(err, domain.ErrShareNotFound) {
		t.Errorf("expected ErrShareNotFound, got %v", err)
	}
}

func TestPlaceOrder_InactiveShare(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)

	share, _ := st.Shares().GetByID(ctx, "acme")
	share.Active = false
	if err := st.Shares().Update(ctx, share); err != nil {
		t.Fatalf("deactivate share: %v", err)
	}

	_, err := m.PlaceOrder(ctx, PlaceOrderInput{
		CustomerID: "buyer",
		ShareID:    "acme",
		Direction:  domain.OrderDirectionBuy,
		Quantity:   1,
		PriceLimit: 10000,
		Validity:   domain.OrderValidityUntilCancelled,
	})
	if !errors.Is(err, domain.ErrShareNotFound) {
		t.Errorf("expected ErrShareNotFound for inactive share, got %v", err)
	}
}

func TestExecuteMatching_FullMatch(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	// Seller rests first at $100, buyer crosses at $100.
	ask := place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Quantity != 5 || tr.ExecutionPrice != 10000 {
		t.Errorf("trade = qty %d @ %d, want 5 @ 10000", tr.Quantity, tr.ExecutionPrice)
	}
	if tr.BuyOrderID != bid.ID || tr.SellOrderID != ask.ID {
		t.Errorf("trade references wrong orders: %s / %s", tr.BuyOrderID, tr.SellOrderID)
	}

	// Both orders filled, reservations fully consumed.
	gotBid, _ := st.Orders().GetByID(ctx, bid.ID)
	gotAsk, _ := st.Orders().GetByID(ctx, ask.ID)
	if gotBid.Status != domain.OrderStatusFilled || gotAsk.Status != domain.OrderStatusFilled {
		t.Errorf("statuses = %s / %s, want filled / filled", gotBid.Status, gotAsk.Status)
	}
	if gotBid.BlockedAmount != 0 || gotAsk.BlockedQuantity != 0 {
		t.Errorf("reservations not consumed: amount=%d qty=%d", gotBid.BlockedAmount, gotAsk.BlockedQuantity)
	}

	// Cash moved: buyer down 50000, seller up 50000.
	buyerAcct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	sellerAcct, _ := st.Accounts().GetByCustomer(ctx, "seller")
	if buyerAcct.Balance != 50000 || buyerAcct.BlockedAmount != 0 {
		t.Errorf("buyer account = %d blocked %d, want 50000 blocked 0", buyerAcct.Balance, buyerAcct.BlockedAmount)
	}
	if sellerAcct.Balance != 50000 {
		t.Errorf("seller balance = %d, want 50000", sellerAcct.Balance)
	}

	// Shares moved: seller 10→5, buyer 0→5.
	sellerPos, _ := st.Positions().Get(ctx, "seller", "acme")
	buyerPos, _ := st.Positions().Get(ctx, "buyer", "acme")
	if sellerPos.TotalQuantity != 5 || sellerPos.BlockedQuantity != 0 {
		t.Errorf("seller position = %d blocked %d, want 5 blocked 0", sellerPos.TotalQuantity, sellerPos.BlockedQuantity)
	}
	if buyerPos.TotalQuantity != 5 {
		t.Errorf("buyer position = %d, want 5", buyerPos.TotalQuantity)
	}

	// Last executed price recorded.
	share, _ := st.Shares().GetByID(ctx, "acme")
	if share.LastExecutedPrice == nil || *share.LastExecutedPrice != 10000 {
		t.Errorf("last executed price = %v, want 10000", share.LastExecutedPrice)
	}

	// Book drained.
	book := m.books.GetOrCreate("acme")
	if book.BidCount() != 0 || book.AskCount() != 0 {
		t.Errorf("book not drained: %d bids, %d asks", book.BidCount(), book.AskCount())
	}
}

func TestExecuteMatching_RestingOrderSetsPrice(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	// Ask rests at $100; a later bid at $105 crosses. The resting
	// order's limit sets the execution price.
	place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10500)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 || trades[0].ExecutionPrice != 10000 {
		t.Fatalf("expected one trade at 10000, got %+v", trades)
	}

	// The buyer reserved at the limit (5 × 10500) but paid the
	// execution price; the difference comes straight back.
	buyerAcct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if buyerAcct.Balance != 50000 {
		t.Errorf("buyer balance = %d, want 50000 (paid 5 × 10000)", buyerAcct.Balance)
	}
	if buyerAcct.BlockedAmount != 0 {
		t.Errorf("buyer blocked = %d, want 0", buyerAcct.BlockedAmount)
	}

	gotBid, _ := st.Orders().GetByID(ctx, bid.ID)
	if gotBid.BlockedAmount != 0 {
		t.Errorf("order blocked amount = %d, want 0", gotBid.BlockedAmount)
	}
}

func TestExecuteMatching_RestingBidSetsPrice(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	// Bid rests at $105; a later ask at $100 crosses. The earlier bid
	// sets the price, so the trade prints at $105.
	place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10500)
	place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)

	trades, err := m.ExecuteMatching(context.Background(), "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 || trades[0].ExecutionPrice != 10500 {
		t.Fatalf("expected one trade at 10500, got %+v", trades)
	}
}

func TestExecuteMatching_PartialFill(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 200000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	place(t, m, "seller", "acme", domain.OrderDirectionSell, 3, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 10, 10000)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 3 {
		t.Fatalf("expected one trade of 3, got %+v", trades)
	}

	gotBid, _ := st.Orders().GetByID(ctx, bid.ID)
	if gotBid.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("bid status = %s, want partially_filled", gotBid.Status)
	}
	if gotBid.FilledQuantity != 3 || gotBid.RemainingQuantity != 7 {
		t.Errorf("bid fill = %d/%d, want 3 filled / 7 remaining", gotBid.FilledQuantity, gotBid.RemainingQuantity)
	}
	// Reservation for the remainder is still held: 7 × 10000.
	if gotBid.BlockedAmount != 70000 {
		t.Errorf("bid blocked = %d, want 70000", gotBid.BlockedAmount)
	}

	buyerAcct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if buyerAcct.Balance != 170000 {
		t.Errorf("buyer balance = %d, want 170000", buyerAcct.Balance)
	}
	if buyerAcct.BlockedAmount != 70000 {
		t.Errorf("buyer blocked = %d, want 70000", buyerAcct.BlockedAmount)
	}

	// The partially filled bid stays on the book with its remainder.
	book := m.books.GetOrCreate("acme")
	best, ok := book.BestBid()
	if !ok || best.Remaining != 7 {
		t.Errorf("expected bid with 7 remaining on book, got %+v", best)
	}
}

func TestExecuteMatching_PriceTimePriority(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "s1", 0)
	seedCustomer(t, st, "s2", 0)
	seedCustomer(t, st, "buyer", 200000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "s1", "acme", 10)
	seedPosition(t, st, "s2", "acme", 10)

	// Two asks at the same price; the earlier one must trade first.
	first := place(t, m, "s1", "acme", domain.OrderDirectionSell, 5, 10000)
	place(t, m, "s2", "acme", domain.OrderDirectionSell, 5, 10000)
	place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SellOrderID != first.ID {
		t.Errorf("trade filled %s, want the earlier ask %s", trades[0].SellOrderID, first.ID)
	}
}

func TestExecuteMatching_BetterPricedAskFillsFirst(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "s1", 0)
	seedCustomer(t, st, "s2", 0)
	seedCustomer(t, st, "buyer", 200000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "s1", "acme", 10)
	seedPosition(t, st, "s2", "acme", 10)

	place(t, m, "s1", "acme", domain.OrderDirectionSell, 5, 10200)
	cheap := place(t, m, "s2", "acme", domain.OrderDirectionSell, 5, 9900)
	place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10500)

	trades, err := m.ExecuteMatching(context.Background(), "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].SellOrderID != cheap.ID {
		t.Errorf("trade filled %s, want the cheaper ask %s", trades[0].SellOrderID, cheap.ID)
	}
}

func TestExecuteMatching_NoCross(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	// Bid below ask: nothing crosses.
	place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10100)
	place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	trades, err := m.ExecuteMatching(context.Background(), "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

func TestExecuteMatching_SecondPassIsEmpty(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)
	place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	first, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("first pass error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first pass: expected 1 trade, got %d", len(first))
	}

	second, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("second pass error: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second pass should produce no trades, got %d", len(second))
	}
}

func TestExecuteMatching_SelfCross(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "trader", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "trader", "acme", 10)

	// One customer on both sides of the trade. Allowed: the ledger
	// nets out but the fills and the trade record are real.
	place(t, m, "trader", "acme", domain.OrderDirectionSell, 5, 10000)
	place(t, m, "trader", "acme", domain.OrderDirectionBuy, 5, 10000)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	acct, _ := st.Accounts().GetByCustomer(ctx, "trader")
	if acct.Balance != 100000 || acct.BlockedAmount != 0 {
		t.Errorf("account = %d blocked %d, want 100000 blocked 0", acct.Balance, acct.BlockedAmount)
	}
	pos, _ := st.Positions().Get(ctx, "trader", "acme")
	if pos.TotalQuantity != 10 || pos.BlockedQuantity != 0 {
		t.Errorf("position = %d blocked %d, want 10 blocked 0", pos.TotalQuantity, pos.BlockedQuantity)
	}
}

func TestExecuteMatching_MultipleFills(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "s1", 0)
	seedCustomer(t, st, "s2", 0)
	seedCustomer(t, st, "buyer", 500000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "s1", "acme", 10)
	seedPosition(t, st, "s2", "acme", 10)

	place(t, m, "s1", "acme", domain.OrderDirectionSell, 3, 10000)
	place(t, m, "s2", "acme", domain.OrderDirectionSell, 4, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 7, 10000)

	trades, err := m.ExecuteMatching(ctx, "acme")
	if err != nil {
		t.Fatalf("matching error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	gotBid, _ := st.Orders().GetByID(ctx, bid.ID)
	if gotBid.Status != domain.OrderStatusFilled || gotBid.FilledQuantity != 7 {
		t.Errorf("bid = %s filled %d, want filled 7", gotBid.Status, gotBid.FilledQuantity)
	}

	buyerPos, _ := st.Positions().Get(ctx, "buyer", "acme")
	if buyerPos.TotalQuantity != 7 {
		t.Errorf("buyer position = %d, want 7", buyerPos.TotalQuantity)
	}
}

func TestExecuteMatching_UnknownShare(t *testing.T) {
	m, _ := newTestMatcher()

	_, err := m.ExecuteMatching(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrShareNotFound) {
		t.Errorf("expected ErrShareNotFound, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)

	order := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	cancelled, err := m.CancelOrder(ctx, order.ID, "buyer")
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledQuantity != 5 || cancelled.RemainingQuantity != 0 {
		t.Errorf("cancelled/remaining = %d/%d, want 5/0", cancelled.CancelledQuantity, cancelled.RemainingQuantity)
	}
	if cancelled.CancelledAt == nil {
		t.Error("cancelled_at not set")
	}

	// Reservation released, book cleared.
	acct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if acct.BlockedAmount != 0 {
		t.Errorf("blocked = %d after cancel, want 0", acct.BlockedAmount)
	}
	if m.books.GetOrCreate("acme").BidCount() != 0 {
		t.Error("cancelled order still on the book")
	}
}

func TestCancelOrder_PartiallyFilledReleasesRemainder(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 200000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	place(t, m, "seller", "acme", domain.OrderDirectionSell, 3, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 10, 10000)

	if _, err := m.ExecuteMatching(ctx, "acme"); err != nil {
		t.Fatalf("matching error: %v", err)
	}

	cancelled, err := m.CancelOrder(ctx, bid.ID, "buyer")
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if cancelled.FilledQuantity != 3 || cancelled.CancelledQuantity != 7 {
		t.Errorf("filled/cancelled = %d/%d, want 3/7", cancelled.FilledQuantity, cancelled.CancelledQuantity)
	}

	// Exactly the remainder's reservation comes back: the fill consumed
	// 3 × 10000, the cancel releases 7 × 10000.
	acct, _ := st.Accounts().GetByCustomer(ctx, "buyer")
	if acct.Balance != 170000 || acct.BlockedAmount != 0 {
		t.Errorf("account = %d blocked %d, want 170000 blocked 0", acct.Balance, acct.BlockedAmount)
	}
}

func TestCancelOrder_NotOwner(t *testing.T) {
	m, st := newTestMatcher()
	seedCustomer(t, st, "buyer", 100000)
	seedCustomer(t, st, "other", 100000)
	seedShare(t, st, "acme", 10000)

	order := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)

	_, err := m.CancelOrder(context.Background(), order.ID, "other")
	if !errors.Is(err, domain.ErrNotOrderOwner) {
		t.Errorf("expected ErrNotOrderOwner, got %v", err)
	}
}

func TestCancelOrder_AlreadyTerminal(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)

	order := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)
	if _, err := m.CancelOrder(ctx, order.ID, "buyer"); err != nil {
		t.Fatalf("first cancel error: %v", err)
	}

	_, err := m.CancelOrder(ctx, order.ID, "buyer")
	if !errors.Is(err, domain.ErrOrderNotOpen) {
		t.Errorf("expected ErrOrderNotOpen, got %v", err)
	}
}

func TestCancelOrder_NotFound(t *testing.T) {
	m, _ := newTestMatcher()

	_, err := m.CancelOrder(context.Background(), "ghost", "buyer")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestExpireOrder(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	order := place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)

	if err := m.ExpireOrder(ctx, order.ID); err != nil {
		t.Fatalf("expire error: %v", err)
	}

	got, _ := st.Orders().GetByID(ctx, order.ID)
	if got.Status != domain.OrderStatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if got.ExpiredAt == nil {
		t.Error("expired_at not set")
	}

	pos, _ := st.Positions().Get(ctx, "seller", "acme")
	if pos.BlockedQuantity != 0 {
		t.Errorf("blocked quantity = %d after expiry, want 0", pos.BlockedQuantity)
	}
	if m.books.GetOrCreate("acme").AskCount() != 0 {
		t.Error("expired order still on the book")
	}
}

func TestExpireOrder_TerminalIsNoop(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)

	order := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 10000)
	if _, err := m.CancelOrder(ctx, order.ID, "buyer"); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	if err := m.ExpireOrder(ctx, order.ID); err != nil {
		t.Errorf("expiring a cancelled order should be a no-op, got %v", err)
	}

	got, _ := st.Orders().GetByID(ctx, order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, should stay cancelled", got.Status)
	}
}

func TestRebuildBooks(t *testing.T) {
	m, st := newTestMatcher()
	ctx := context.Background()
	seedCustomer(t, st, "seller", 0)
	seedCustomer(t, st, "buyer", 100000)
	seedShare(t, st, "acme", 10000)
	seedPosition(t, st, "seller", "acme", 10)

	ask := place(t, m, "seller", "acme", domain.OrderDirectionSell, 5, 10000)
	bid := place(t, m, "buyer", "acme", domain.OrderDirectionBuy, 5, 9900)

	// A fresh matcher over the same store starts with empty books.
	m2 := NewMatcher(NewBookManager(), st)
	open, err := m2.RebuildBooks(ctx)
	if err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open orders, got %d", len(open))
	}

	book := m2.books.GetOrCreate("acme")
	if book.BidCount() != 1 || book.AskCount() != 1 {
		t.Errorf("rebuilt book has %d bids, %d asks, want 1/1", book.BidCount(), book.AskCount())
	}
	bestBid, _ := book.BestBid()
	bestAsk, _ := book.BestAsk()
	if bestBid.OrderID != bid.ID || bestAsk.OrderID != ask.ID {
		t.Errorf("rebuilt entries reference wrong orders")
	}
}
