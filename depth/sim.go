// Package depth implements the depth-aware cross-exchange fill simulator.
// Given the ask side of a buy venue and the bid side of a sell venue it
// walks both books under venue constraints and produces a deterministic
// profit-and-loss result in quote currency.
package depth

import (
	"math"
	"sort"

	"arbscan.trade/orderbook"
)

// budgetEps terminates the buy walk once the quote budget is exhausted up to
// floating point noise.
const budgetEps = 1e-12

// Params are the fees, caps and venue constraints of one simulated cross
// fill. Caps and constraints are inactive when not positive.
type Params struct {
	FeeBuy          float64 // fractional taker fee on the buy venue
	FeeSell         float64 // fractional taker fee on the sell venue
	WithdrawFeeBase float64 // base units lost moving inventory between venues
	MaxQuoteBuy     float64 // quote-side budget for the buy walk
	MaxBaseSell     float64 // cap on base carried into the sell walk
	BaseStep        float64 // lot size increment
	MinBase         float64 // minimum base amount per order
	MinNotionalBuy  float64 // minimum quote notional per buy order
	MinNotionalSell float64 // minimum quote notional per sell order
}

// FillResult is the outcome of one simulated cross fill. OK is true only
// when base was actually sold and the net profit is positive.
type FillResult struct {
	QtyBaseBought        float64 `json:"qty_base_bought"`
	QtyBaseAfterWithdraw float64 `json:"qty_base_after_withdraw"`
	QtyBaseSold          float64 `json:"qty_base_sold"`
	SpentQuote           float64 `json:"spent_quote"`
	ReceivedQuote        float64 `json:"received_quote"`
	BuyFeeQuote          float64 `json:"buy_fee_quote"`
	SellFeeQuote         float64 `json:"sell_fee_quote"`
	WithdrawFeeBase      float64 `json:"withdraw_fee_base"`
	AvgBuyPx             float64 `json:"avg_buy_px"`
	AvgSellPx            float64 `json:"avg_sell_px"`
	EffectiveSpread      float64 `json:"effective_spread"`
	NetProfitQuote       float64 `json:"net_profit_quote"`
	ROI                  float64 `json:"roi"`
	OK                   bool    `json:"ok"`
}

func floorStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Floor(value/step) * step
}

func ceilStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Ceil(value/step) * step
}

// SimulateCrossFill buys base on the ask side, applies the withdraw fee and
// an optional sell cap, then sells on the bid side. The sell fee is deducted
// from proceeds at accrual; the buy fee is tracked separately and subtracted
// in the net formula. Inputs need not be sorted; non-positive sizes are
// dropped. An empty side yields an all-zero, not-OK result.
func SimulateCrossFill(asks, bids []orderbook.Level, p Params) FillResult {
	asks = orderbook.SanitizeLevels(asks)
	bids = orderbook.SanitizeLevels(bids)
	if len(asks) == 0 || len(bids) == 0 {
		return FillResult{}
	}
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	var spentQuote, acquiredBase, buyFeeQuote float64

	// BUY walk across asks.
	for _, lvl := range asks {
		maxAffordable := math.Inf(1)
		if p.MaxQuoteBuy > 0 {
			maxAffordable = math.Max(0, (p.MaxQuoteBuy-spentQuote)/lvl.Price)
		}
		take := math.Min(lvl.Size, maxAffordable)
		take = floorStep(take, p.BaseStep)
		if take <= 0 {
			break
		}
		notional := take * lvl.Price
		if p.MinNotionalBuy > 0 && notional < p.MinNotionalBuy {
			need := p.MinNotionalBuy / lvl.Price
			need = math.Max(need, p.MinBase)
			need = ceilStep(need, p.BaseStep)
			if need <= lvl.Size && (p.MaxQuoteBuy <= 0 || spentQuote+need*lvl.Price <= p.MaxQuoteBuy) {
				take = need
				notional = take * lvl.Price
			} else {
				continue
			}
		}
		if p.MinBase > 0 && take < p.MinBase {
			tb := math.Min(lvl.Size, math.Min(maxAffordable, p.MinBase))
			tb = ceilStep(tb, p.BaseStep)
			if tb <= lvl.Size && (p.MaxQuoteBuy <= 0 || spentQuote+tb*lvl.Price <= p.MaxQuoteBuy) {
				take = tb
				notional = take * lvl.Price
			} else {
				continue
			}
		}
		spentQuote += notional
		buyFeeQuote += notional * p.FeeBuy
		acquiredBase += take
		if p.MaxQuoteBuy > 0 && spentQuote >= p.MaxQuoteBuy-budgetEps {
			break
		}
	}

	if p.MaxBaseSell > 0 {
		acquiredBase = math.Min(acquiredBase, p.MaxBaseSell)
	}
	transferableBase := math.Max(0, acquiredBase-p.WithdrawFeeBase)

	// SELL walk across bids.
	remaining := transferableBase
	var receivedQuote, sellFeeQuote, qtySold float64

	for _, lvl := range bids {
		if remaining <= 0 {
			break
		}
		take := math.Min(lvl.Size, remaining)
		notional := take * lvl.Price
		if p.MinNotionalSell > 0 && notional < p.MinNotionalSell {
			need := ceilStep(p.MinNotionalSell/lvl.Price, p.BaseStep)
			need = math.Min(need, math.Min(remaining, lvl.Size))
			if need <= 0 || (p.MinBase > 0 && need < p.MinBase) {
				continue
			}
			take = need
		}
		take = floorStep(take, p.BaseStep)
		if take <= 0 {
			continue
		}
		notional = take * lvl.Price
		fee := notional * p.FeeSell
		receivedQuote += notional - fee
		sellFeeQuote += fee
		remaining -= take
		qtySold += take
	}

	res := FillResult{
		QtyBaseBought:        acquiredBase,
		QtyBaseAfterWithdraw: transferableBase,
		QtyBaseSold:          qtySold,
		SpentQuote:           spentQuote,
		ReceivedQuote:        receivedQuote,
		BuyFeeQuote:          buyFeeQuote,
		SellFeeQuote:         sellFeeQuote,
		WithdrawFeeBase:      p.WithdrawFeeBase,
		NetProfitQuote:       receivedQuote - spentQuote - buyFeeQuote,
	}

	if acquiredBase <= 0 || qtySold <= 0 {
		// Nothing crossed; report book tops so the caller can still explain
		// why the fill failed.
		res.AvgBuyPx = asks[0].Price
		res.AvgSellPx = bids[0].Price
		return res
	}

	res.AvgBuyPx = spentQuote / acquiredBase
	res.AvgSellPx = (receivedQuote + sellFeeQuote) / qtySold
	if res.AvgBuyPx > 0 {
		res.EffectiveSpread = (res.AvgSellPx - res.AvgBuyPx) / res.AvgBuyPx
	}
	if spentQuote > 0 {
		res.ROI = res.NetProfitQuote / spentQuote
	}
	res.OK = qtySold > 0 && res.NetProfitQuote > 0
	return res
}
