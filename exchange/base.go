package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"arbscan.trade/orderbook"
)

// venueBase carries the behavior every adapter shares: cached market
// metadata, symbol resolution with cache invalidation, and symbol listing.
type venueBase struct {
	name    string
	syn     SynonymTable
	markets *marketsCache
	log     zerolog.Logger
}

func (v *venueBase) Name() string { return v.name }

func (v *venueBase) LoadMarkets(ctx context.Context) (map[string]MarketMeta, error) {
	return v.markets.get(ctx)
}

// ResolveSymbol maps a canonical symbol to the venue market key. A miss
// invalidates the metadata cache and retries once, in case the venue listed
// the market after the cache was filled.
func (v *venueBase) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	markets, err := v.markets.get(ctx)
	if err != nil {
		return "", err
	}
	key, err := resolveSymbol(v.name, markets, v.syn, symbol)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrSymbolNotFound) {
		return "", err
	}
	v.markets.invalidate(ctx)
	if markets, err = v.markets.get(ctx); err != nil {
		return "", err
	}
	return resolveSymbol(v.name, markets, v.syn, symbol)
}

// ListSymbols enumerates active markets as canonical BASE/QUOTE symbols,
// optionally filtered by quote asset. Synonym bases collapse onto the
// canonical head of their class.
func (v *venueBase) ListSymbols(ctx context.Context, quote string) ([]string, error) {
	markets, err := v.markets.get(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToUpper(strings.TrimSpace(quote))
	seen := make(map[string]bool)
	var out []string
	for _, m := range markets {
		if !m.Active || m.Base == "" || m.Quote == "" {
			continue
		}
		mq := strings.ToUpper(m.Quote)
		if q != "" && mq != q {
			continue
		}
		base := v.syn.Class(m.Base)[0]
		sym := fmt.Sprintf("%s/%s", base, mq)
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

// toFloat coerces the mixed string/number level encodings the venues use.
func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}

// parseLevels converts raw [price, size, ...] arrays into levels, dropping
// malformed entries.
func parseLevels(raw [][]any) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		px, sz := toFloat(entry[0]), toFloat(entry[1])
		if px > 0 && sz > 0 {
			out = append(out, orderbook.Level{Price: px, Size: sz})
		}
	}
	return out
}
