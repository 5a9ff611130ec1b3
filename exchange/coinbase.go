package exchange

import (
	"context"
	"time"

	"arbscan.trade/orderbook"
)

const (
	coinbaseBaseURL = "https://api.exchange.coinbase.com"

	// Published base taker tier for Coinbase Exchange.
	coinbaseTakerFee = 0.006
	coinbaseMakerFee = 0.004
)

// Coinbase adapts the Coinbase Exchange public REST API.
type Coinbase struct {
	venueBase
	rest *restClient
}

func newCoinbase(opts Options) *Coinbase {
	c := &Coinbase{
		rest: newRestClient("coinbase", coinbaseBaseURL, opts.Timeout, 5),
	}
	log := opts.Logger.With().Str("exchange", "coinbase").Logger()
	c.venueBase = venueBase{
		name:    "coinbase",
		syn:     opts.Synonyms,
		markets: newMarketsCache("coinbase", opts.Redis, log, c.fetchMarkets),
		log:     log,
	}
	return c
}

type coinbaseProduct struct {
	ID             string `json:"id"`
	BaseCurrency   string `json:"base_currency"`
	QuoteCurrency  string `json:"quote_currency"`
	Status         string `json:"status"`
	BaseIncrement  string `json:"base_increment"`
	QuoteIncrement string `json:"quote_increment"`
	MinMarketFunds string `json:"min_market_funds"`
}

func (c *Coinbase) fetchMarkets(ctx context.Context) (map[string]MarketMeta, error) {
	var raw []coinbaseProduct
	if err := c.rest.getJSON(ctx, "/products", nil, &raw); err != nil {
		return nil, err
	}
	markets := make(map[string]MarketMeta, len(raw))
	for _, p := range raw {
		markets[p.ID] = MarketMeta{
			Symbol:      p.ID,
			Base:        p.BaseCurrency,
			Quote:       p.QuoteCurrency,
			Active:      p.Status == "online",
			TakerFee:    coinbaseTakerFee,
			MakerFee:    coinbaseMakerFee,
			BaseStep:    toFloat(p.BaseIncrement),
			PriceStep:   toFloat(p.QuoteIncrement),
			MinNotional: toFloat(p.MinMarketFunds),
		}
	}
	return markets, nil
}

func (c *Coinbase) FetchOrderBook(ctx context.Context, symbol string, limit int) ([]orderbook.Level, []orderbook.Level, error) {
	product, err := c.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	var book struct {
		Bids [][]any `json:"bids"`
		Asks [][]any `json:"asks"`
	}
	// Level 2 is the full aggregated book; truncation happens caller-side.
	if err := c.rest.getJSON(ctx, "/products/"+product+"/book", map[string]string{"level": "2"}, &book); err != nil {
		return nil, nil, err
	}
	asks, bids := parseLevels(book.Asks), parseLevels(book.Bids)
	if limit > 0 {
		if len(asks) > limit {
			asks = asks[:limit]
		}
		if len(bids) > limit {
			bids = bids[:limit]
		}
	}
	return asks, bids, nil
}

func (c *Coinbase) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	product, err := c.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Price string `json:"price"`
		Time  string `json:"time"`
	}
	if err := c.rest.getJSON(ctx, "/products/"+product+"/ticker", nil, &raw); err != nil {
		return nil, err
	}
	ts := time.Now().UnixMilli()
	if t, err := time.Parse(time.RFC3339Nano, raw.Time); err == nil {
		ts = t.UnixMilli()
	}
	return &Ticker{Symbol: symbol, Last: toFloat(raw.Price), TS: ts}, nil
}

func (c *Coinbase) Ping(ctx context.Context) (Pong, error) {
	local := time.Now().UnixMilli()
	var raw struct {
		Epoch float64 `json:"epoch"`
	}
	if err := c.rest.getJSON(ctx, "/time", nil, &raw); err != nil {
		return Pong{LocalMS: local}, err
	}
	return Pong{OK: true, ServerTime: int64(raw.Epoch * 1000), LocalMS: local}, nil
}
