package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openbrokerage/sharetrading/internal/domain"
)

// Terminator expires a single order through the cancellation release
// path. Implemented by Matcher; the interface keeps the sweep
// decoupled from it.
type Terminator interface {
	ExpireOrder(ctx context.Context, orderID string) error
}

// expiryEntry tracks one day order's end-of-day deadline.
type expiryEntry struct {
	orderID  string
	deadline time.Time
}

// ExpiryManager tracks open day orders sorted by deadline and
// periodically expires the ones whose end of day has passed. Orders
// with until_cancelled validity never enter the manager.
type ExpiryManager struct {
	interval   time.Duration
	terminator Terminator
	logger     *slog.Logger
	mu         sync.Mutex // protects pending
	pending    []expiryEntry // sorted by deadline ASC
}

// NewExpiryManager creates an ExpiryManager with the given sweep interval.
func NewExpiryManager(interval time.Duration, terminator Terminator, logger *slog.Logger) *ExpiryManager {
	return &ExpiryManager{
		interval:   interval,
		terminator: terminator,
		logger:     logger,
		pending:    make([]expiryEntry, 0),
	}
}

// EndOfDay returns the first instant after t's calendar day, the
// moment a day order captured at t stops being valid.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Add registers a day order for expiry at the end of its capture day.
// Other validities are ignored.
func (e *ExpiryManager) Add(order domain.Order) {
	if order.Validity != domain.OrderValidityDay {
		return
	}
	deadline := EndOfDay(order.CapturedAt)

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := sort.Search(len(e.pending), func(i int) bool {
		return e.pending[i].deadline.After(deadline)
	})
	e.pending = append(e.pending, expiryEntry{})
	copy(e.pending[idx+1:], e.pending[idx:])
	e.pending[idx] = expiryEntry{orderID: order.ID, deadline: deadline}
}

// Remove drops an order from the pending list, typically after an
// explicit cancellation or a full fill.
func (e *ExpiryManager) Remove(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, entry := range e.pending {
		if entry.orderID == orderID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// Start launches the sweep goroutine. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.tick(ctx, t)
			}
		}
	}()
}

// tick pops every due entry from the front of the sorted pending list
// and expires it. The terminator re-checks order status under the
// share's book lock, so an order filled or cancelled in the meantime
// is simply skipped.
func (e *ExpiryManager) tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	var due []expiryEntry
	cutoff := 0
	for cutoff < len(e.pending) && !e.pending[cutoff].deadline.After(now) {
		due = append(due, e.pending[cutoff])
		cutoff++
	}
	if cutoff > 0 {
		e.pending = e.pending[cutoff:]
	}
	e.mu.Unlock()

	for _, entry := range due {
		if err := e.terminator.ExpireOrder(ctx, entry.orderID); err != nil {
			e.logger.Error("order expiry failed",
				slog.String("order_id", entry.orderID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// PendingCount returns the number of orders awaiting expiry.
func (e *ExpiryManager) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
