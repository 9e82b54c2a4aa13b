package domain

import "time"

// Customer is a registered platform user who owns one cash account
// and zero or more securities positions.
type Customer struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
