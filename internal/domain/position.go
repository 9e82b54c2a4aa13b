package domain

// SecuritiesPosition is the per (customer, share) holding record.
// BlockedQuantity ≤ TotalQuantity holds at all times; the difference
// is what the customer may still sell or withdraw.
type SecuritiesPosition struct {
	ID              string
	CustomerID      string
	ShareID         string
	TotalQuantity   int64
	BlockedQuantity int64
}

// Available returns the unblocked quantity.
func (p *SecuritiesPosition) Available() int64 {
	return p.TotalQuantity - p.BlockedQuantity
}
