package engine

import (
	"sync"
	"time"

	"github.com/google/btree"
)

// Entry is one open order resting on a book. The book is a transient
// index over persisted open orders: an entry carries only what
// priority ordering and level aggregation need, and is rebuilt from
// the order store at startup. Remaining is not part of the ordering
// key, so fills mutate it in place.
type Entry struct {
	OrderID    string
	Price      int64
	CapturedAt time.Time
	Remaining  int64
}

// PriceLevel is an aggregated price level in the public book view.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess orders the bid side: price descending, then captured_at
// ascending, then order_id ascending. Min() is the best bid.
func bidLess(a, b *Entry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.CapturedAt.Equal(b.CapturedAt) {
		return a.CapturedAt.Before(b.CapturedAt)
	}
	return a.OrderID < b.OrderID
}

// askLess orders the ask side: price ascending, then captured_at
// ascending, then order_id ascending. Min() is the best ask.
func askLess(a, b *Entry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if !a.CapturedAt.Equal(b.CapturedAt) {
		return a.CapturedAt.Before(b.CapturedAt)
	}
	return a.OrderID < b.OrderID
}

// Book holds the bid and ask sides for a single share using B-trees
// with a secondary index for removal by order ID. Its mutex is the
// per-share critical section: placement, cancellation, expiry and a
// matching pass against the same share all serialize on it.
type Book struct {
	shareID string
	mu      sync.RWMutex
	bids    *btree.BTreeG[*Entry]
	asks    *btree.BTreeG[*Entry]
	index   map[string]*Entry
}

// NewBook creates an empty book for the given share.
func NewBook(shareID string) *Book {
	const degree = 32
	return &Book{
		shareID: shareID,
		bids:    btree.NewG(degree, bidLess),
		asks:    btree.NewG(degree, askLess),
		index:   make(map[string]*Entry),
	}
}

// Lock acquires the per-share write lock.
func (b *Book) Lock() {
	b.mu.Lock()
}

// Unlock releases the per-share write lock.
func (b *Book) Unlock() {
	b.mu.Unlock()
}

// InsertBid adds an entry to the bid side. Caller holds the lock.
func (b *Book) InsertBid(e *Entry) {
	b.bids.ReplaceOrInsert(e)
	b.index[e.OrderID] = e
}

// InsertAsk adds an entry to the ask side. Caller holds the lock.
func (b *Book) InsertAsk(e *Entry) {
	b.asks.ReplaceOrInsert(e)
	b.index[e.OrderID] = e
}

// Remove deletes an order from the book by order ID. It tries both
// sides — Delete is a no-op for the side the entry isn't on.
func (b *Book) Remove(orderID string) {
	e, ok := b.index[orderID]
	if !ok {
		return
	}
	delete(b.index, orderID)
	b.bids.Delete(e)
	b.asks.Delete(e)
}

// Reduce decrements an entry's remaining quantity after a fill,
// removing it once nothing is left. Caller holds the lock.
func (b *Book) Reduce(orderID string, qty int64) {
	e, ok := b.index[orderID]
	if !ok {
		return
	}
	e.Remaining -= qty
	if e.Remaining <= 0 {
		b.Remove(orderID)
	}
}

// BestBid returns the highest-priority bid (highest price, earliest capture).
func (b *Book) BestBid() (*Entry, bool) {
	return b.bids.Min()
}

// BestAsk returns the highest-priority ask (lowest price, earliest capture).
func (b *Book) BestAsk() (*Entry, bool) {
	return b.asks.Min()
}

// BidEntries returns the bid side in priority order. Caller holds the lock.
func (b *Book) BidEntries() []*Entry {
	return entries(b.bids)
}

// AskEntries returns the ask side in priority order. Caller holds the lock.
func (b *Book) AskEntries() []*Entry {
	return entries(b.asks)
}

func entries(tree *btree.BTreeG[*Entry]) []*Entry {
	out := make([]*Entry, 0, tree.Len())
	tree.Ascend(func(e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// BidLevels returns aggregated bid price levels, best first. n <= 0
// means no limit.
func (b *Book) BidLevels(n int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return levels(b.bids, n)
}

// AskLevels returns aggregated ask price levels, best first. n <= 0
// means no limit.
func (b *Book) AskLevels(n int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return levels(b.asks, n)
}

// levels walks the tree in priority order, collapsing entries that
// share a price into one level.
func levels(tree *btree.BTreeG[*Entry], n int) []PriceLevel {
	out := make([]PriceLevel, 0)
	tree.Ascend(func(e *Entry) bool {
		if len(out) > 0 && out[len(out)-1].Price == e.Price {
			out[len(out)-1].TotalQuantity += e.Remaining
			out[len(out)-1].OrderCount++
			return true
		}
		if n > 0 && len(out) >= n {
			return false
		}
		out = append(out, PriceLevel{
			Price:         e.Price,
			TotalQuantity: e.Remaining,
			OrderCount:    1,
		})
		return true
	})
	return out
}

// BidCount returns the number of bid orders on the book.
func (b *Book) BidCount() int {
	return b.bids.Len()
}

// AskCount returns the number of ask orders on the book.
func (b *Book) AskCount() int {
	return b.asks.Len()
}

// BookManager is a thread-safe map of share ID → Book.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*Book),
	}
}

// GetOrCreate returns the book for the given share, creating one if
// it doesn't already exist.
func (bm *BookManager) GetOrCreate(shareID string) *Book {
	bm.mu.RLock()
	book, ok := bm.books[shareID]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[shareID]; ok {
		return book
	}
	book = NewBook(shareID)
	bm.books[shareID] = book
	return book
}
