package strategy

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"arbscan.trade/depth"
	"arbscan.trade/exchange"
	"arbscan.trade/metrics"
	"arbscan.trade/orderbook"
)

var errUnknownVenue = errors.New("no adapter configured")

// Scanner evaluates the depth simulator for every ordered pair of distinct
// venues on one symbol. Books come from the shared store when fresh, from
// the venue adapter otherwise.
type Scanner struct {
	adapters        map[string]exchange.Adapter
	store           *orderbook.Store
	budgetQuote     float64
	withdrawFeeBase float64
	depthLimit      int
	log             zerolog.Logger
}

// NewScanner wires the scanner. adapters is keyed by venue name; depthLimit
// bounds adapter fallback fetches.
func NewScanner(adapters map[string]exchange.Adapter, store *orderbook.Store,
	budgetQuote, withdrawFeeBase float64, depthLimit int, log zerolog.Logger) *Scanner {
	return &Scanner{
		adapters:        adapters,
		store:           store,
		budgetQuote:     budgetQuote,
		withdrawFeeBase: withdrawFeeBase,
		depthLimit:      depthLimit,
		log:             log.With().Str("comp", "scanner").Logger(),
	}
}

// bookSide loads a venue's book, preferring the cached snapshot. A store
// error degrades to an adapter fetch rather than failing the pair.
func (s *Scanner) bookSide(ctx context.Context, venue, symbol string) (asks, bids []orderbook.Level, err error) {
	snap, err := s.store.Get(ctx, venue, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("exchange", venue).Str("symbol", symbol).Msg("cache read failed")
	} else if snap != nil {
		return snap.Asks, snap.Bids, nil
	}
	adapter, ok := s.adapters[venue]
	if !ok {
		return nil, nil, &exchange.AdapterError{Venue: venue, Op: "lookup", Err: errUnknownVenue}
	}
	return adapter.FetchOrderBook(ctx, symbol, s.depthLimit)
}

// ComputePair evaluates one ordered (buy venue, sell venue) pair. Failures
// never propagate; they come back as non-OK records with either a Reason or
// an Error tag.
func (s *Scanner) ComputePair(ctx context.Context, symbol, buyEx, sellEx string) Opportunity {
	fail := func(err error) Opportunity {
		return Opportunity{
			Symbol:    symbol,
			Buy:       buyEx,
			Sell:      sellEx,
			Error:     err.Error(),
			ErrorType: exchange.ErrorKind(err),
		}
	}

	asks, _, err := s.bookSide(ctx, buyEx, symbol)
	if err != nil {
		return fail(err)
	}
	_, bids, err := s.bookSide(ctx, sellEx, symbol)
	if err != nil {
		return fail(err)
	}
	if len(asks) == 0 || len(bids) == 0 {
		return Opportunity{Symbol: symbol, Buy: buyEx, Sell: sellEx, Reason: "empty_orderbook"}
	}

	// The shared store may hold books for venues other processes stream;
	// metadata still needs a local adapter.
	buyAdapter, ok := s.adapters[buyEx]
	if !ok {
		return fail(&exchange.AdapterError{Venue: buyEx, Op: "lookup", Err: errUnknownVenue})
	}
	sellAdapter, ok := s.adapters[sellEx]
	if !ok {
		return fail(&exchange.AdapterError{Venue: sellEx, Op: "lookup", Err: errUnknownVenue})
	}

	buyMeta, err := exchange.MetaFor(ctx, buyAdapter, symbol)
	if err != nil {
		return fail(err)
	}
	sellMeta, err := exchange.MetaFor(ctx, sellAdapter, symbol)
	if err != nil {
		return fail(err)
	}

	bestAsk, bestBid := asks[0].Price, bids[0].Price

	res := depth.SimulateCrossFill(asks, bids, depth.Params{
		FeeBuy:          buyMeta.TakerFee,
		FeeSell:         sellMeta.TakerFee,
		WithdrawFeeBase: s.withdrawFeeBase,
		MaxQuoteBuy:     s.budgetQuote,
		BaseStep:        firstPositive(buyMeta.BaseStep, sellMeta.BaseStep),
		MinBase:         firstPositive(buyMeta.MinBase, sellMeta.MinBase),
		MinNotionalBuy:  buyMeta.MinNotional,
		MinNotionalSell: sellMeta.MinNotional,
	})

	return Opportunity{
		OK:          res.OK,
		TS:          time.Now().UnixMilli(),
		Symbol:      symbol,
		Buy:         buyEx,
		Sell:        sellEx,
		BestAsk:     bestAsk,
		BestBid:     bestBid,
		GrossSpread: (bestBid - bestAsk) / bestAsk,
		FeeBuy:      buyMeta.TakerFee,
		FeeSell:     sellMeta.TakerFee,
		Depth:       &res,
	}
}

// ScanAll evaluates every ordered pair of distinct venues for one symbol
// and returns exactly N*(N-1) records, ranked by depth net profit.
func (s *Scanner) ScanAll(ctx context.Context, symbol string, exchanges []string) []Opportunity {
	out := make([]Opportunity, 0, len(exchanges)*(len(exchanges)-1))
	for i, buyEx := range exchanges {
		for j, sellEx := range exchanges {
			if i == j {
				continue
			}
			out = append(out, s.ComputePair(ctx, symbol, buyEx, sellEx))
			metrics.PairEvaluations.WithLabelValues(symbol).Inc()
		}
	}
	SortByNet(out)
	return out
}

// SortByNet orders records by depth net profit descending; records without
// a depth result sink to the bottom.
func SortByNet(items []Opportunity) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].netProfit() > items[j].netProfit()
	})
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
