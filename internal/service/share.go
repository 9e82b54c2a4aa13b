package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/engine"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// CreateShareRequest is the input for listing a new share.
type CreateShareRequest struct {
	Name         string
	TotalParts   int64
	InitialPrice float64
}

// UpdateShareRequest carries the mutable share fields; nil means
// leave unchanged.
type UpdateShareRequest struct {
	Name   *string
	Active *bool
}

// SharePrice is the calculated price of a share: the last executed
// price when trades exist, the initial listing price otherwise.
type SharePrice struct {
	Price        int64
	LastExecuted bool
}

// OrderBookView is the aggregated public view of one share's book.
type OrderBookView struct {
	Bids []engine.PriceLevel
	Asks []engine.PriceLevel
}

// ShareService covers the share registry plus the share-scoped market
// data operations (price, book, trade history) and the matching trigger.
type ShareService struct {
	store   store.Store
	matcher *engine.Matcher
	expiry  *engine.ExpiryManager
}

// NewShareService creates a ShareService.
func NewShareService(st store.Store, matcher *engine.Matcher, expiry *engine.ExpiryManager) *ShareService {
	return &ShareService{store: st, matcher: matcher, expiry: expiry}
}

// Create lists a new share. New shares start active.
func (s *ShareService) Create(ctx context.Context, req CreateShareRequest) (domain.Share, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return domain.Share{}, &domain.ValidationError{
			Message: "name must be between 1 and 100 characters",
		}
	}
	if req.TotalParts <= 0 {
		return domain.Share{}, &domain.ValidationError{
			Message: "total_parts must be a positive integer",
		}
	}
	if req.InitialPrice <= 0 {
		return domain.Share{}, &domain.ValidationError{
			Message: "initial_price must be greater than 0",
		}
	}
	priceCents, err := domain.DollarsToCents(req.InitialPrice)
	if err != nil {
		return domain.Share{}, &domain.ValidationError{
			Message: "initial_price must have at most 2 decimal places",
		}
	}

	share := domain.Share{
		ID:           uuid.New().String(),
		Name:         name,
		TotalParts:   req.TotalParts,
		InitialPrice: priceCents,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := s.store.Shares().Create(ctx, share); err != nil {
		return domain.Share{}, err
	}
	return share, nil
}

// Update renames a share or flips its active flag. Deactivating
// blocks new order placement but not cancellation of resting orders.
func (s *ShareService) Update(ctx context.Context, shareID string, req UpdateShareRequest) (domain.Share, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 100 {
			return domain.Share{}, &domain.ValidationError{
				Message: "name must be between 1 and 100 characters",
			}
		}
		req.Name = &name
	}

	var updated domain.Share
	err := s.store.Do(ctx, func(tx store.Tx) error {
		share, err := tx.Shares().GetByID(ctx, shareID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			share.Name = *req.Name
		}
		if req.Active != nil {
			share.Active = *req.Active
		}
		updated = share
		return tx.Shares().Update(ctx, share)
	})
	if err != nil {
		return domain.Share{}, err
	}
	return updated, nil
}

// Delete removes a share from the registry. It fails with
// ErrShareHasOpenInterest while open orders or non-zero positions
// reference the share.
func (s *ShareService) Delete(ctx context.Context, shareID string) error {
	return s.store.Do(ctx, func(tx store.Tx) error {
		if _, err := tx.Shares().GetByID(ctx, shareID); err != nil {
			return err
		}
		openOrders, err := tx.Orders().HasOpenByShare(ctx, shareID)
		if err != nil {
			return err
		}
		if openOrders {
			return domain.ErrShareHasOpenInterest
		}
		holdings, err := tx.Positions().HasHoldingsByShare(ctx, shareID)
		if err != nil {
			return err
		}
		if holdings {
			return domain.ErrShareHasOpenInterest
		}
		return tx.Shares().Delete(ctx, shareID)
	})
}

// Get returns a share by ID.
func (s *ShareService) Get(ctx context.Context, shareID string) (domain.Share, error) {
	return s.store.Shares().GetByID(ctx, shareID)
}

// List returns every listed share, oldest first.
func (s *ShareService) List(ctx context.Context) ([]domain.Share, error) {
	return s.store.Shares().List(ctx)
}

// Price calculates the share's current price.
func (s *ShareService) Price(ctx context.Context, shareID string) (SharePrice, error) {
	share, err := s.store.Shares().GetByID(ctx, shareID)
	if err != nil {
		return SharePrice{}, err
	}
	return SharePrice{
		Price:        share.CurrentPrice(),
		LastExecuted: share.LastExecutedPrice != nil,
	}, nil
}

// Book returns the aggregated order book view: bids and asks collapsed
// into price levels, best first. depth <= 0 returns every level.
func (s *ShareService) Book(ctx context.Context, shareID string, depth int) (OrderBookView, error) {
	if _, err := s.store.Shares().GetByID(ctx, shareID); err != nil {
		return OrderBookView{}, err
	}
	book := s.matcher.Books().GetOrCreate(shareID)
	return OrderBookView{
		Bids: book.BidLevels(depth),
		Asks: book.AskLevels(depth),
	}, nil
}

// Trades returns the share's executed trades, oldest first.
func (s *ShareService) Trades(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	if _, err := s.store.Shares().GetByID(ctx, shareID); err != nil {
		return nil, err
	}
	return s.store.Trades().ListByShare(ctx, shareID)
}

// ExecuteMatching runs one matching pass for the share and returns
// the trades it produced. Orders the pass filled completely are
// dropped from the expiry manager; partially filled day orders keep
// their end-of-day deadline.
func (s *ShareService) ExecuteMatching(ctx context.Context, shareID string) ([]domain.ShareTransaction, error) {
	trades, err := s.matcher.ExecuteMatching(ctx, shareID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, tr := range trades {
		for _, id := range []string{tr.BuyOrderID, tr.SellOrderID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			order, err := s.store.Orders().GetByID(ctx, id)
			if err != nil || order.Open() {
				// Still-open orders stay registered; a lookup failure
				// just leaves the entry to the sweep's no-op path.
				continue
			}
			s.expiry.Remove(id)
		}
	}
	return trades, nil
}
