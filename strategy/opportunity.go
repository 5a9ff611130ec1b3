// Package strategy drives the periodic cross-exchange scan: it evaluates
// every ordered venue pair per symbol through the depth simulator, filters
// and ranks the results, and publishes qualifying opportunities.
package strategy

import (
	"arbscan.trade/depth"
)

// Opportunity is one evaluated (symbol, buy venue, sell venue) combination.
// Exactly one of Reason (semantic failure) or Error/ErrorType (exception)
// is set on non-OK records; OK records carry the full depth result.
type Opportunity struct {
	OK          bool              `json:"ok"`
	TS          int64             `json:"ts,omitempty"`
	Symbol      string            `json:"symbol"`
	Buy         string            `json:"buy"`
	Sell        string            `json:"sell"`
	BestAsk     float64           `json:"best_ask,omitempty"`
	BestBid     float64           `json:"best_bid,omitempty"`
	GrossSpread float64           `json:"gross_spread,omitempty"`
	FeeBuy      float64           `json:"fee_buy,omitempty"`
	FeeSell     float64           `json:"fee_sell,omitempty"`
	Depth       *depth.FillResult `json:"depth,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
}

// negInf ranks records without a depth result below every real one.
const negInf = -1e18

// netProfit is the ranking key: the depth simulator's net, or negInf when
// the record failed before simulation.
func (o *Opportunity) netProfit() float64 {
	if o.Depth == nil {
		return negInf
	}
	return o.Depth.NetProfitQuote
}

// netOrZero is for display: the depth net, or zero when the record failed
// before simulation.
func (o *Opportunity) netOrZero() float64 {
	if o.Depth == nil {
		return 0
	}
	return o.Depth.NetProfitQuote
}

// roi returns the depth ROI, zero when absent.
func (o *Opportunity) roi() float64 {
	if o.Depth == nil {
		return 0
	}
	return o.Depth.ROI
}

// Batch is the published payload: the flattened post-filter opportunity
// list of one scan tick.
type Batch struct {
	TS    int64         `json:"ts"`
	Items []Opportunity `json:"items"`
}

// Block is the per-symbol scan output of one tick. Top and Best are
// post-threshold; DebugTop and DebugBestAny preserve the pre-threshold
// ranking for observability.
type Block struct {
	Symbol       string        `json:"symbol"`
	Top          []Opportunity `json:"top"`
	Best         *Opportunity  `json:"best,omitempty"`
	DebugTop     []Opportunity `json:"debug_top"`
	DebugBestAny *Opportunity  `json:"debug_best_any,omitempty"`
}

// TickResult is the complete output of one scan tick across all symbols.
type TickResult struct {
	TS     int64   `json:"ts"`
	Blocks []Block `json:"blocks"`
}
