// Package exchange provides uniform read-only access to the supported
// venues: order books, tickers, market metadata and symbol mapping. The
// pipeline consumes venues exclusively through the Adapter interface.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"arbscan.trade/orderbook"
)

// DefaultTakerFee applies when a venue does not report a fee schedule.
const DefaultTakerFee = 0.001

// MarketMeta describes one venue market. Zero-valued optional fields mean
// the venue does not publish the constraint.
type MarketMeta struct {
	Symbol          string  `msgpack:"symbol"` // venue-local symbol
	Base            string  `msgpack:"base"`
	Quote           string  `msgpack:"quote"`
	Active          bool    `msgpack:"active"`
	TakerFee        float64 `msgpack:"taker_fee"`
	MakerFee        float64 `msgpack:"maker_fee"`
	BaseStep        float64 `msgpack:"base_step"`
	PriceStep       float64 `msgpack:"price_step"`
	MinBase         float64 `msgpack:"min_base"`
	MaxBase         float64 `msgpack:"max_base"`
	MinNotional     float64 `msgpack:"min_notional"`
	MaxNotional     float64 `msgpack:"max_notional"`
	WithdrawFeeBase float64 `msgpack:"withdraw_fee_base"`
}

// Ticker is an opaque last-price snapshot. The core pipeline never trades
// on it; it serves external routes and diagnostics.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	TS     int64   `json:"ts"`
}

// Pong reports best-effort venue liveness.
type Pong struct {
	OK         bool  `json:"ok"`
	ServerTime int64 `json:"server_time,omitempty"` // ms, when the venue reports one
	LocalMS    int64 `json:"local_ms"`
}

// Adapter is the read-only capability set over one venue. Implementations
// are safe for concurrent use.
type Adapter interface {
	Name() string
	FetchOrderBook(ctx context.Context, symbol string, limit int) (asks, bids []orderbook.Level, err error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	LoadMarkets(ctx context.Context) (map[string]MarketMeta, error)
	ListSymbols(ctx context.Context, quote string) ([]string, error)
	ResolveSymbol(ctx context.Context, symbol string) (string, error)
	Ping(ctx context.Context) (Pong, error)
}

// Options configure adapter construction. Redis is optional and enables the
// shared market-metadata cache; a nil Synonyms table selects the default.
type Options struct {
	Redis    *redis.Client
	Synonyms SynonymTable
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// New constructs the adapter for a supported venue name.
func New(name string, opts Options) (Adapter, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Synonyms == nil {
		opts.Synonyms = DefaultSynonyms()
	}
	switch strings.ToLower(name) {
	case "bitvavo":
		return newBitvavo(opts), nil
	case "coinbase":
		return newCoinbase(opts), nil
	case "kraken":
		return newKraken(opts), nil
	default:
		return nil, fmt.Errorf("exchange %q not supported", name)
	}
}

// MetaFor resolves a canonical symbol on one venue and returns its market
// metadata. TakerFee is always populated, falling back to DefaultTakerFee.
func MetaFor(ctx context.Context, a Adapter, symbol string) (MarketMeta, error) {
	venueSym, err := a.ResolveSymbol(ctx, symbol)
	if err != nil {
		return MarketMeta{}, err
	}
	markets, err := a.LoadMarkets(ctx)
	if err != nil {
		return MarketMeta{}, err
	}
	meta, ok := markets[venueSym]
	if !ok {
		return MarketMeta{}, &SymbolNotFoundError{Venue: a.Name(), Symbol: symbol}
	}
	if meta.TakerFee <= 0 {
		meta.TakerFee = DefaultTakerFee
	}
	return meta, nil
}

// SplitSymbol breaks a canonical BASE/QUOTE pair into its uppercase parts.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol %q, expected BASE/QUOTE", symbol)
	}
	return strings.ToUpper(strings.TrimSpace(parts[0])), strings.ToUpper(strings.TrimSpace(parts[1])), nil
}
