package engine

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// genEntry generates a book entry with a small timestamp range to
// encourage collisions and exercise the tiebreakers.
func genEntry(id int) *rapid.Generator[*Entry] {
	return rapid.Custom(func(t *rapid.T) *Entry {
		price := rapid.Int64Range(1, 10000).Draw(t, "price")
		secOffset := rapid.IntRange(0, 20).Draw(t, "secOffset")
		capturedAt := time.Date(2025, 1, 1, 0, 0, secOffset, 0, time.UTC)

		return &Entry{
			OrderID:    fmt.Sprintf("order-%03d", id),
			Price:      price,
			CapturedAt: capturedAt,
			Remaining:  rapid.Int64Range(1, 100).Draw(t, "remaining"),
		}
	})
}

func TestProperty_BidSideSortingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "numEntries")
		book := NewBook("test")

		for i := 0; i < n; i++ {
			book.InsertBid(genEntry(i).Draw(t, fmt.Sprintf("bid-%d", i)))
		}

		// Price descending, then captured_at ascending, then order_id ascending.
		entries := book.BidEntries()
		for i := 1; i < len(entries); i++ {
			prev, cur := entries[i-1], entries[i]
			if cur.Price > prev.Price {
				t.Fatalf("bid side: price should be descending, got %d after %d", cur.Price, prev.Price)
			}
			if cur.Price == prev.Price {
				if cur.CapturedAt.Before(prev.CapturedAt) {
					t.Fatalf("bid side: same price %d, captured_at should be ascending, got %v after %v",
						cur.Price, cur.CapturedAt, prev.CapturedAt)
				}
				if cur.CapturedAt.Equal(prev.CapturedAt) && cur.OrderID < prev.OrderID {
					t.Fatalf("bid side: same price %d and time, order_id should be ascending, got %q after %q",
						cur.Price, cur.OrderID, prev.OrderID)
				}
			}
		}
	})
}

func TestProperty_AskSideSortingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "numEntries")
		book := NewBook("test")

		for i := 0; i < n; i++ {
			book.InsertAsk(genEntry(i).Draw(t, fmt.Sprintf("ask-%d", i)))
		}

		// Price ascending, then captured_at ascending, then order_id ascending.
		entries := book.AskEntries()
		for i := 1; i < len(entries); i++ {
			prev, cur := entries[i-1], entries[i]
			if cur.Price < prev.Price {
				t.Fatalf("ask side: price should be ascending, got %d after %d", cur.Price, prev.Price)
			}
			if cur.Price == prev.Price {
				if cur.CapturedAt.Before(prev.CapturedAt) {
					t.Fatalf("ask side: same price %d, captured_at should be ascending, got %v after %v",
						cur.Price, cur.CapturedAt, prev.CapturedAt)
				}
				if cur.CapturedAt.Equal(prev.CapturedAt) && cur.OrderID < prev.OrderID {
					t.Fatalf("ask side: same price %d and time, order_id should be ascending, got %q after %q",
						cur.Price, cur.OrderID, prev.OrderID)
				}
			}
		}
	})
}

func TestProperty_LevelsAggregateRemaining(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "numEntries")
		book := NewBook("test")

		var total int64
		for i := 0; i < n; i++ {
			e := genEntry(i).Draw(t, fmt.Sprintf("bid-%d", i))
			total += e.Remaining
			book.InsertBid(e)
		}

		// Aggregated levels conserve the total remaining quantity and
		// the order count.
		var levelTotal int64
		var count int
		for _, l := range book.BidLevels(0) {
			levelTotal += l.TotalQuantity
			count += l.OrderCount
		}
		if levelTotal != total {
			t.Fatalf("level quantities sum to %d, want %d", levelTotal, total)
		}
		if count != n {
			t.Fatalf("level order counts sum to %d, want %d", count, n)
		}
	})
}
