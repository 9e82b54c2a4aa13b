package domain

import "time"

// Share represents a tradable instrument listed by an administrator.
type Share struct {
	ID                string
	Name              string
	TotalParts        int64
	InitialPrice      int64  // cents
	LastExecutedPrice *int64 // cents, nil until the first trade
	Active            bool
	CreatedAt         time.Time
}

// CurrentPrice returns the last executed price, falling back to the
// initial listing price while no trade has happened yet.
func (s *Share) CurrentPrice() int64 {
	if s.LastExecutedPrice != nil {
		return *s.LastExecutedPrice
	}
	return s.InitialPrice
}
