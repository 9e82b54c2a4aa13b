package domain

import "time"

// Account is a customer's cash account. BlockedAmount is the sum of
// reservations held by the customer's open buy orders; it never
// exceeds Balance.
type Account struct {
	ID            string
	CustomerID    string
	Balance       int64 // cents
	BlockedAmount int64 // cents
	CreatedAt     time.Time
}

// Available returns the balance not locked by open buy orders.
func (a *Account) Available() int64 {
	return a.Balance - a.BlockedAmount
}
