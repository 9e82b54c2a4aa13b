package service

import (
	"context"
	"fmt"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/engine"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// validOrderStatuses lists the order status values accepted as a
// listing filter.
var validOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
	domain.OrderStatusExpired:         true,
}

// PlaceOrderRequest is the input for order placement. Price is in
// dollars; it is converted to cents during validation.
type PlaceOrderRequest struct {
	CustomerID string
	ShareID    string
	Direction  string
	Quantity   int64
	Price      float64
	Validity   string
}

// OrderService handles order placement, retrieval, cancellation and
// listing on top of the matching engine.
type OrderService struct {
	matcher *engine.Matcher
	expiry  *engine.ExpiryManager
	store   store.Store
}

// NewOrderService creates an OrderService.
func NewOrderService(matcher *engine.Matcher, expiry *engine.ExpiryManager, st store.Store) *OrderService {
	return &OrderService{matcher: matcher, expiry: expiry, store: st}
}

// PlaceOrder validates the request, reserves the order's resources and
// rests it on the book. Day orders are registered for end-of-day expiry.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	direction := domain.OrderDirection(req.Direction)
	if direction != domain.OrderDirectionBuy && direction != domain.OrderDirectionSell {
		return domain.Order{}, &domain.ValidationError{
			Message: "direction must be 'buy' or 'sell'",
		}
	}

	validity := domain.OrderValidity(req.Validity)
	if validity != domain.OrderValidityDay && validity != domain.OrderValidityUntilCancelled {
		return domain.Order{}, &domain.ValidationError{
			Message: "validity must be 'day' or 'until_cancelled'",
		}
	}

	if req.Quantity <= 0 {
		return domain.Order{}, &domain.ValidationError{
			Message: "quantity must be a positive integer",
		}
	}

	if req.Price <= 0 {
		return domain.Order{}, &domain.ValidationError{
			Message: "price must be greater than 0",
		}
	}
	priceCents, err := domain.DollarsToCents(req.Price)
	if err != nil {
		return domain.Order{}, &domain.ValidationError{
			Message: "price must have at most 2 decimal places",
		}
	}

	order, err := s.matcher.PlaceOrder(ctx, engine.PlaceOrderInput{
		CustomerID: req.CustomerID,
		ShareID:    req.ShareID,
		Direction:  direction,
		Quantity:   req.Quantity,
		PriceLimit: priceCents,
		Validity:   validity,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.expiry.Add(order)
	return order, nil
}

// CancelOrder cancels one of the customer's own open orders.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, customerID string) (domain.Order, error) {
	order, err := s.matcher.CancelOrder(ctx, orderID, customerID)
	if err != nil {
		return domain.Order{}, err
	}
	s.expiry.Remove(order.ID)
	return order, nil
}

// GetOrder returns one of the customer's own orders.
func (s *OrderService) GetOrder(ctx context.Context, orderID, customerID string) (domain.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.CustomerID != customerID {
		return domain.Order{}, domain.ErrNotOrderOwner
	}
	return order, nil
}

// ListOrders returns the customer's orders, newest first, with an
// optional status filter and 1-based pagination. Returns the page and
// the total match count.
func (s *OrderService) ListOrders(ctx context.Context, customerID string, status string, page, limit int) ([]domain.Order, int, error) {
	var statusFilter *domain.OrderStatus
	if status != "" {
		st := domain.OrderStatus(status)
		if !validOrderStatuses[st] {
			return nil, 0, &domain.ValidationError{
				Message: fmt.Sprintf("unknown status filter: %s", status),
			}
		}
		statusFilter = &st
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return s.store.Orders().ListByCustomer(ctx, customerID, statusFilter, page, limit)
}
