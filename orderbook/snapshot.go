package orderbook

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Level is a single (price, base size) entry of one book side.
// The canonical wire form is a two-element JSON array [price, size].
type Level struct {
	Price float64
	Size  float64
}

// MarshalJSON encodes the level as [price, size].
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{l.Price, l.Size})
}

// UnmarshalJSON decodes [price, size].
func (l *Level) UnmarshalJSON(data []byte) error {
	var arr [2]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("orderbook level: %w", err)
	}
	l.Price = arr[0]
	l.Size = arr[1]
	return nil
}

// Snapshot is the latest known state of one (exchange, symbol) book.
// Asks are ascending by price, bids descending, after Normalize.
type Snapshot struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	TS       int64   `json:"ts"` // venue timestamp if known, else ingestion wall clock, ms
	Asks     []Level `json:"asks"`
	Bids     []Level `json:"bids"`
}

// SanitizeLevels drops malformed entries (price or size not positive) and
// merges duplicate prices so the sorted result is strictly monotonic.
func SanitizeLevels(levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	byPrice := make(map[float64]int, len(levels))
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		if i, seen := byPrice[lvl.Price]; seen {
			out[i].Size += lvl.Size
			continue
		}
		byPrice[lvl.Price] = len(out)
		out = append(out, lvl)
	}
	return out
}

// Normalize sanitizes both sides and sorts asks low->high, bids high->low.
// A zero TS is stamped with the current wall clock.
func (s *Snapshot) Normalize() {
	s.Asks = SanitizeLevels(s.Asks)
	s.Bids = SanitizeLevels(s.Bids)
	sort.Slice(s.Asks, func(i, j int) bool { return s.Asks[i].Price < s.Asks[j].Price })
	sort.Slice(s.Bids, func(i, j int) bool { return s.Bids[i].Price > s.Bids[j].Price })
	if s.TS == 0 {
		s.TS = time.Now().UnixMilli()
	}
}

// Truncate limits both sides to at most depth levels.
func (s *Snapshot) Truncate(depth int) {
	if depth <= 0 {
		return
	}
	if len(s.Asks) > depth {
		s.Asks = s.Asks[:depth]
	}
	if len(s.Bids) > depth {
		s.Bids = s.Bids[:depth]
	}
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (s *Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// BestBid returns the highest bid, or false when the side is empty.
func (s *Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// Encode produces the canonical JSON byte form stored under ob:{exchange}:{symbol}.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses the canonical byte form. Orderings are re-asserted
// so readers never trust a writer's sort.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	sort.Slice(s.Asks, func(i, j int) bool { return s.Asks[i].Price < s.Asks[j].Price })
	sort.Slice(s.Bids, func(i, j int) bool { return s.Bids[i].Price > s.Bids[j].Price })
	return &s, nil
}
