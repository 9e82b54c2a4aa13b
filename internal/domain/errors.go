package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrCustomerExists       = errors.New("customer_already_exists")
	ErrCustomerNotFound     = errors.New("customer_not_found")
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrShareNotFound        = errors.New("share_not_found")
	ErrShareHasOpenInterest = errors.New("share_has_open_interest")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotOpen         = errors.New("order_not_open")
	ErrNotOrderOwner        = errors.New("not_order_owner")
	ErrPositionNotFound     = errors.New("position_not_found")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientPosition = errors.New("insufficient_position")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InfrastructureError wraps a persistence or transaction failure. Unlike
// the sentinel errors above it is retry-eligible at the caller's
// discretion; the core itself never retries.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return "infrastructure: " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infra wraps err as an InfrastructureError. Returns nil for nil.
func Infra(err error) error {
	if err == nil {
		return nil
	}
	return &InfrastructureError{Err: err}
}
