package exchange

import (
	"context"
	"fmt"
	"time"

	"arbscan.trade/orderbook"
)

const (
	bitvavoBaseURL = "https://api.bitvavo.com/v2"
	bitvavoWSURL   = "wss://ws.bitvavo.com/v2/"

	// Published base trading tier; Bitvavo does not expose fees on its
	// public market endpoints.
	bitvavoTakerFee = 0.0025
)

// Bitvavo adapts the Bitvavo public REST API. It also implements the
// orderbook.Watcher capability over the venue's websocket (bitvavo_ws.go).
type Bitvavo struct {
	venueBase
	rest  *restClient
	wsURL string
}

func newBitvavo(opts Options) *Bitvavo {
	b := &Bitvavo{
		rest:  newRestClient("bitvavo", bitvavoBaseURL, opts.Timeout, 5),
		wsURL: bitvavoWSURL,
	}
	log := opts.Logger.With().Str("exchange", "bitvavo").Logger()
	b.venueBase = venueBase{
		name:    "bitvavo",
		syn:     opts.Synonyms,
		markets: newMarketsCache("bitvavo", opts.Redis, log, b.fetchMarkets),
		log:     log,
	}
	return b
}

type bitvavoMarket struct {
	Market               string `json:"market"`
	Status               string `json:"status"`
	Base                 string `json:"base"`
	Quote                string `json:"quote"`
	MinOrderInBaseAsset  string `json:"minOrderInBaseAsset"`
	MinOrderInQuoteAsset string `json:"minOrderInQuoteAsset"`
}

func (b *Bitvavo) fetchMarkets(ctx context.Context) (map[string]MarketMeta, error) {
	var raw []bitvavoMarket
	if err := b.rest.getJSON(ctx, "/markets", nil, &raw); err != nil {
		return nil, err
	}
	markets := make(map[string]MarketMeta, len(raw))
	for _, m := range raw {
		markets[m.Market] = MarketMeta{
			Symbol:      m.Market,
			Base:        m.Base,
			Quote:       m.Quote,
			Active:      m.Status == "trading",
			TakerFee:    bitvavoTakerFee,
			MinBase:     toFloat(m.MinOrderInBaseAsset),
			MinNotional: toFloat(m.MinOrderInQuoteAsset),
		}
	}
	return markets, nil
}

type bitvavoBook struct {
	Market string  `json:"market"`
	Nonce  int64   `json:"nonce"`
	Bids   [][]any `json:"bids"`
	Asks   [][]any `json:"asks"`
}

func (b *Bitvavo) FetchOrderBook(ctx context.Context, symbol string, limit int) ([]orderbook.Level, []orderbook.Level, error) {
	market, err := b.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	var book bitvavoBook
	query := map[string]string{"depth": fmt.Sprintf("%d", limit)}
	if err := b.rest.getJSON(ctx, "/"+market+"/book", query, &book); err != nil {
		return nil, nil, err
	}
	return parseLevels(book.Asks), parseLevels(book.Bids), nil
}

func (b *Bitvavo) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	market, err := b.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Market string `json:"market"`
		Price  string `json:"price"`
	}
	if err := b.rest.getJSON(ctx, "/ticker/price", map[string]string{"market": market}, &raw); err != nil {
		return nil, err
	}
	return &Ticker{Symbol: symbol, Last: toFloat(raw.Price), TS: time.Now().UnixMilli()}, nil
}

func (b *Bitvavo) Ping(ctx context.Context) (Pong, error) {
	local := time.Now().UnixMilli()
	var raw struct {
		Time int64 `json:"time"`
	}
	if err := b.rest.getJSON(ctx, "/time", nil, &raw); err != nil {
		return Pong{LocalMS: local}, err
	}
	return Pong{OK: true, ServerTime: raw.Time, LocalMS: local}, nil
}
