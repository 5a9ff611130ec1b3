package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbscan.trade/orderbook"
)

const (
	krakenBaseURL = "https://api.kraken.com"

	// Published base taker tier, used when the pair omits a fee schedule.
	krakenTakerFee = 0.0026
)

// Kraken adapts the Kraken public REST API. Kraken lists Bitcoin as XBT,
// which exercises the base-synonym table during resolution.
type Kraken struct {
	venueBase
	rest *restClient
}

func newKraken(opts Options) *Kraken {
	k := &Kraken{
		rest: newRestClient("kraken", krakenBaseURL, opts.Timeout, 1),
	}
	log := opts.Logger.With().Str("exchange", "kraken").Logger()
	k.venueBase = venueBase{
		name:    "kraken",
		syn:     opts.Synonyms,
		markets: newMarketsCache("kraken", opts.Redis, log, k.fetchMarkets),
		log:     log,
	}
	return k
}

func krakenErr(op string, apiErr []string) error {
	if len(apiErr) == 0 {
		return nil
	}
	return &AdapterError{Venue: "kraken", Op: op, Err: fmt.Errorf("%s", strings.Join(apiErr, "; "))}
}

type krakenPair struct {
	Altname   string      `json:"altname"`
	WSName    string      `json:"wsname"`
	Status    string      `json:"status"`
	OrderMin  string      `json:"ordermin"`
	CostMin   string      `json:"costmin"`
	TickSize  string      `json:"tick_size"`
	LotDec    int         `json:"lot_decimals"`
	Fees      [][]float64 `json:"fees"`
	FeesMaker [][]float64 `json:"fees_maker"`
}

func (k *Kraken) fetchMarkets(ctx context.Context) (map[string]MarketMeta, error) {
	var raw struct {
		Error  []string              `json:"error"`
		Result map[string]krakenPair `json:"result"`
	}
	if err := k.rest.getJSON(ctx, "/0/public/AssetPairs", nil, &raw); err != nil {
		return nil, err
	}
	if err := krakenErr("AssetPairs", raw.Error); err != nil {
		return nil, err
	}
	markets := make(map[string]MarketMeta, len(raw.Result))
	for key, p := range raw.Result {
		// wsname is "XBT/EUR"; the asset codes on the pair itself carry
		// legacy X/Z prefixes.
		base, quote, err := SplitSymbol(p.WSName)
		if err != nil {
			continue
		}
		meta := MarketMeta{
			Symbol:      key,
			Base:        base,
			Quote:       quote,
			Active:      p.Status == "online",
			TakerFee:    krakenTakerFee,
			BaseStep:    lotStep(p.LotDec),
			PriceStep:   toFloat(p.TickSize),
			MinBase:     toFloat(p.OrderMin),
			MinNotional: toFloat(p.CostMin),
		}
		if len(p.Fees) > 0 && len(p.Fees[0]) >= 2 {
			meta.TakerFee = p.Fees[0][1] / 100
		}
		if len(p.FeesMaker) > 0 && len(p.FeesMaker[0]) >= 2 {
			meta.MakerFee = p.FeesMaker[0][1] / 100
		}
		markets[key] = meta
	}
	return markets, nil
}

func lotStep(decimals int) float64 {
	if decimals <= 0 {
		return 0
	}
	step := 1.0
	for i := 0; i < decimals; i++ {
		step /= 10
	}
	return step
}

func (k *Kraken) FetchOrderBook(ctx context.Context, symbol string, limit int) ([]orderbook.Level, []orderbook.Level, error) {
	pair, err := k.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	var raw struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Asks [][]any `json:"asks"`
			Bids [][]any `json:"bids"`
		} `json:"result"`
	}
	query := map[string]string{"pair": pair, "count": fmt.Sprintf("%d", limit)}
	if err := k.rest.getJSON(ctx, "/0/public/Depth", query, &raw); err != nil {
		return nil, nil, err
	}
	if err := krakenErr("Depth", raw.Error); err != nil {
		return nil, nil, err
	}
	for _, book := range raw.Result {
		return parseLevels(book.Asks), parseLevels(book.Bids), nil
	}
	return nil, nil, &AdapterError{Venue: "kraken", Op: "Depth", Err: fmt.Errorf("empty result for %s", pair)}
}

func (k *Kraken) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	pair, err := k.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // last trade [price, lot volume]
		} `json:"result"`
	}
	if err := k.rest.getJSON(ctx, "/0/public/Ticker", map[string]string{"pair": pair}, &raw); err != nil {
		return nil, err
	}
	if err := krakenErr("Ticker", raw.Error); err != nil {
		return nil, err
	}
	for _, t := range raw.Result {
		if len(t.C) > 0 {
			return &Ticker{Symbol: symbol, Last: toFloat(t.C[0]), TS: time.Now().UnixMilli()}, nil
		}
	}
	return nil, &AdapterError{Venue: "kraken", Op: "Ticker", Err: fmt.Errorf("empty result for %s", pair)}
}

func (k *Kraken) Ping(ctx context.Context) (Pong, error) {
	local := time.Now().UnixMilli()
	var raw struct {
		Error  []string `json:"error"`
		Result struct {
			UnixTime int64 `json:"unixtime"`
		} `json:"result"`
	}
	if err := k.rest.getJSON(ctx, "/0/public/Time", nil, &raw); err != nil {
		return Pong{LocalMS: local}, err
	}
	if err := krakenErr("Time", raw.Error); err != nil {
		return Pong{LocalMS: local}, err
	}
	return Pong{OK: true, ServerTime: raw.Result.UnixTime * 1000, LocalMS: local}, nil
}
