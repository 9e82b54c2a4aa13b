package domain

import "time"

// ShareTransaction is one executed trade between a buy and a sell
// order. Rows are append-only: the trade ledger is immutable history.
type ShareTransaction struct {
	ID             string
	ShareID        string
	BuyOrderID     string
	SellOrderID    string
	Quantity       int64
	ExecutionPrice int64 // cents
	ExecutedAt     time.Time
}
