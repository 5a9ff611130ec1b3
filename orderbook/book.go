package orderbook

import (
	"sync"
)

// Book is a live order book maintained from streaming deltas. A size of zero
// removes the level. The watcher goroutine is the only writer; Snapshot may
// be called from any goroutine.
type Book struct {
	mu       sync.RWMutex
	exchange string
	symbol   string
	bids     map[float64]float64 // price -> base size
	asks     map[float64]float64
	ts       int64
}

// NewBook creates an empty live book for one (exchange, symbol).
func NewBook(exchange, symbol string) *Book {
	return &Book{
		exchange: exchange,
		symbol:   symbol,
		bids:     make(map[float64]float64),
		asks:     make(map[float64]float64),
	}
}

// Reset replaces both sides with a full snapshot.
func (b *Book) Reset(bids, asks []Level, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))
	for _, lvl := range bids {
		if lvl.Price > 0 && lvl.Size > 0 {
			b.bids[lvl.Price] = lvl.Size
		}
	}
	for _, lvl := range asks {
		if lvl.Price > 0 && lvl.Size > 0 {
			b.asks[lvl.Price] = lvl.Size
		}
	}
	b.ts = ts
}

// Apply merges delta updates into the book. Zero sizes delete the level.
func (b *Book) Apply(bids, asks []Level, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lvl := range bids {
		if lvl.Price <= 0 {
			continue
		}
		if lvl.Size == 0 {
			delete(b.bids, lvl.Price)
		} else {
			b.bids[lvl.Price] = lvl.Size
		}
	}
	for _, lvl := range asks {
		if lvl.Price <= 0 {
			continue
		}
		if lvl.Size == 0 {
			delete(b.asks, lvl.Price)
		} else {
			b.asks[lvl.Price] = lvl.Size
		}
	}
	if ts > b.ts {
		b.ts = ts
	}
}

// Snapshot materializes a sorted, truncated snapshot of the current state.
func (b *Book) Snapshot(depth int) Snapshot {
	b.mu.RLock()
	asks := make([]Level, 0, len(b.asks))
	for px, sz := range b.asks {
		asks = append(asks, Level{Price: px, Size: sz})
	}
	bids := make([]Level, 0, len(b.bids))
	for px, sz := range b.bids {
		bids = append(bids, Level{Price: px, Size: sz})
	}
	ts := b.ts
	b.mu.RUnlock()

	snap := Snapshot{
		Exchange: b.exchange,
		Symbol:   b.symbol,
		TS:       ts,
		Asks:     asks,
		Bids:     bids,
	}
	snap.Normalize()
	snap.Truncate(depth)
	return snap
}
