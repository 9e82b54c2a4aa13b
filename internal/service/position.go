package service

import (
	"context"

	"github.com/openbrokerage/sharetrading/internal/domain"
	"github.com/openbrokerage/sharetrading/internal/store"
)

// PositionService exposes a customer's securities positions.
type PositionService struct {
	store store.Store
}

// NewPositionService creates a PositionService.
func NewPositionService(st store.Store) *PositionService {
	return &PositionService{store: st}
}

// List returns the customer's positions ordered by share ID.
func (s *PositionService) List(ctx context.Context, customerID string) ([]domain.SecuritiesPosition, error) {
	return s.store.Positions().ListByCustomer(ctx, customerID)
}
