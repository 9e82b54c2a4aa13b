package domain

import "time"

// OrderDirection indicates whether an order buys or sells shares.
type OrderDirection string

const (
	OrderDirectionBuy  OrderDirection = "buy"
	OrderDirectionSell OrderDirection = "sell"
)

// OrderValidity controls how long an order stays on the book.
type OrderValidity string

const (
	// OrderValidityDay orders expire at the end of their capture day.
	OrderValidityDay OrderValidity = "day"
	// OrderValidityUntilCancelled orders rest until filled or cancelled.
	OrderValidityUntilCancelled OrderValidity = "until_cancelled"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order represents a buy or sell instruction captured for a customer.
// Orders are never deleted; terminal rows are kept as history.
//
// BlockedAmount (buy) and BlockedQuantity (sell) track the reservation
// still held for the unfilled remainder: sized at capture, consumed
// fill by fill by the matching pass, and zeroed on cancellation or
// expiry when the remainder is released.
type Order struct {
	ID                string
	CustomerID        string
	ShareID           string
	Direction         OrderDirection
	Quantity          int64
	PriceLimit        int64 // cents
	Validity          OrderValidity
	Status            OrderStatus
	FilledQuantity    int64
	RemainingQuantity int64
	CancelledQuantity int64
	BlockedAmount     int64 // cents, buy orders only
	BlockedQuantity   int64 // sell orders only
	CapturedAt        time.Time
	CancelledAt       *time.Time
	ExpiredAt         *time.Time
}

// Open reports whether the order can still trade or be cancelled.
func (o *Order) Open() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}
