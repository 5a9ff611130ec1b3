// Package paper consumes published opportunities and records simulated,
// slippage-adjusted fills. No order ever reaches a real venue.
package paper

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"arbscan.trade/metrics"
	"arbscan.trade/orderbook"
	"arbscan.trade/strategy"
)

// DefaultStream and friends are the executor defaults, overridable via the
// PAPER_* environment variables.
const (
	DefaultStream      = "paper_trades"
	DefaultStreamCap   = 5000
	DefaultSlippageBPS = 2.0
	DefaultCooldown    = 4000 * time.Millisecond

	resubscribeWait = time.Second
)

// Config holds the executor's thresholds and stream wiring.
type Config struct {
	Channel       string        // pub/sub channel to consume, default strategy.DefaultChannel
	Stream        string        // fill history stream
	MinNetQuote   float64       // minimum net to simulate a fill
	MinRoiPct     float64       // minimum ROI (percent) to simulate a fill
	SlippageBPS   float64       // symmetric top-of-book slippage
	Cooldown      time.Duration // dedup cooldown window
	AllowNoProfit bool          // bypass thresholds (dev mode); qty > 0 still required
}

// Fill is one simulated trade appended to the paper stream.
type Fill struct {
	TS             int64   `json:"ts"`
	Symbol         string  `json:"symbol"`
	Buy            string  `json:"buy"`
	Sell           string  `json:"sell"`
	QtyBase        float64 `json:"qty_base"`
	BestAsk        float64 `json:"best_ask"`
	BestBid        float64 `json:"best_bid"`
	EffAsk         float64 `json:"eff_ask"`
	EffBid         float64 `json:"eff_bid"`
	FeeBuyRate     float64 `json:"fee_buy_rate"`
	FeeSellRate    float64 `json:"fee_sell_rate"`
	SlippageBPS    float64 `json:"slippage_bps"`
	SpentQuote     float64 `json:"spent_quote"`
	ReceivedQuote  float64 `json:"received_quote"`
	NetProfitQuote float64 `json:"net_profit_quote"`
	ROI            float64 `json:"roi"`
	GrossSpreadBPS float64 `json:"gross_spread_bps"`
	Source         string  `json:"source"`
}

// Executor subscribes to the opportunity channel, filters and de-duplicates
// items, and appends simulated fills to a capped stream.
type Executor struct {
	rdb   *redis.Client
	store *orderbook.Store
	cfg   Config
	log   zerolog.Logger
}

// NewExecutor wires the paper executor. The store provides the atomic
// set-if-absent primitive used for dedup.
func NewExecutor(rdb *redis.Client, store *orderbook.Store, cfg Config, log zerolog.Logger) *Executor {
	if cfg.Channel == "" {
		cfg.Channel = strategy.DefaultChannel
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.SlippageBPS == 0 {
		cfg.SlippageBPS = DefaultSlippageBPS
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Executor{
		rdb:   rdb,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("comp", "paper").Logger(),
	}
}

// Run consumes the channel until ctx is cancelled, resubscribing after a
// one-second backoff on any error.
func (ex *Executor) Run(ctx context.Context) {
	ex.log.Info().
		Str("channel", ex.cfg.Channel).
		Str("stream", ex.cfg.Stream).
		Float64("min_net", ex.cfg.MinNetQuote).
		Float64("min_roi_pct", ex.cfg.MinRoiPct).
		Float64("slippage_bps", ex.cfg.SlippageBPS).
		Msg("paper executor start")

	for {
		if err := ex.consume(ctx); err != nil {
			ex.log.Warn().Err(err).Msg("subscription lost, retrying")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeWait):
		}
	}
}

func (ex *Executor) consume(ctx context.Context) error {
	sub := ex.rdb.Subscribe(ctx, ex.cfg.Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, open := <-ch:
			if !open {
				return fmt.Errorf("channel %s closed", ex.cfg.Channel)
			}
			ex.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (ex *Executor) handle(ctx context.Context, payload []byte) {
	var batch strategy.Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		ex.log.Warn().Err(err).Msg("batch decode failed")
		return
	}
	for i := range batch.Items {
		item := &batch.Items[i]
		if !ex.shouldExecute(ctx, item) {
			continue
		}
		fill, ok := ex.buildFill(item)
		if !ok {
			continue
		}
		ex.record(ctx, fill)
	}
}

// itemQty is the executable quantity: base sold, falling back to base
// bought when the sell leg never crossed.
func itemQty(item *strategy.Opportunity) float64 {
	if item.Depth == nil {
		return 0
	}
	if item.Depth.QtyBaseSold > 0 {
		return item.Depth.QtyBaseSold
	}
	return item.Depth.QtyBaseBought
}

// shouldExecute applies the threshold gate and the dedup cooldown. In
// AllowNoProfit mode the gate is bypassed but a meaningful quantity is
// still required, and dedup always applies.
func (ex *Executor) shouldExecute(ctx context.Context, item *strategy.Opportunity) bool {
	qty := itemQty(item)
	if qty <= 0 {
		return false
	}

	var net, roi float64
	if item.Depth != nil {
		net = item.Depth.NetProfitQuote
		roi = item.Depth.ROI * 100
	}
	passes := item.OK && net >= ex.cfg.MinNetQuote && roi >= ex.cfg.MinRoiPct
	if !passes && !ex.cfg.AllowNoProfit {
		return false
	}

	key := "paper:dedup:" + fingerprint(item, qty)
	fresh, err := ex.store.SetIfAbsent(ctx, key, ex.cfg.Cooldown)
	if err != nil {
		ex.log.Warn().Err(err).Msg("dedup check failed")
		return false
	}
	if !fresh {
		metrics.PaperDedupDrops.Inc()
	}
	return fresh
}

// fingerprint identifies one opportunity within the cooldown window: same
// route at effectively the same prices and quantity hashes identically.
func fingerprint(item *strategy.Opportunity, qty float64) string {
	parts := []string{
		item.Symbol,
		item.Buy,
		item.Sell,
		trimFloat(roundTo(item.BestAsk, 2)),
		trimFloat(roundTo(item.BestBid, 2)),
		trimFloat(roundTo(qty, 8)),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// buildFill simulates the fill with symmetric slippage on top-of-book.
func (ex *Executor) buildFill(item *strategy.Opportunity) (*Fill, bool) {
	qty := itemQty(item)
	if qty <= 0 || item.BestAsk <= 0 || item.BestBid <= 0 {
		return nil, false
	}
	feeBuy, feeSell := item.FeeBuy, item.FeeSell
	if feeBuy == 0 {
		feeBuy = 0.001
	}
	if feeSell == 0 {
		feeSell = 0.001
	}

	slip := ex.cfg.SlippageBPS / 10000
	effAsk := item.BestAsk * (1 + slip) // buy a touch worse
	effBid := item.BestBid * (1 - slip) // sell a touch worse

	spent := qty * effAsk * (1 + feeBuy)
	received := qty * effBid * (1 - feeSell)
	net := received - spent
	var roi float64
	if spent > 0 {
		roi = net / spent
	}

	return &Fill{
		TS:             time.Now().UnixMilli(),
		Symbol:         item.Symbol,
		Buy:            item.Buy,
		Sell:           item.Sell,
		QtyBase:        qty,
		BestAsk:        item.BestAsk,
		BestBid:        item.BestBid,
		EffAsk:         effAsk,
		EffBid:         effBid,
		FeeBuyRate:     feeBuy,
		FeeSellRate:    feeSell,
		SlippageBPS:    ex.cfg.SlippageBPS,
		SpentQuote:     spent,
		ReceivedQuote:  received,
		NetProfitQuote: net,
		ROI:            roi,
		GrossSpreadBPS: (item.BestBid - item.BestAsk) / item.BestAsk * 10000,
		Source:         "paper-exec",
	}, true
}

func (ex *Executor) record(ctx context.Context, fill *Fill) {
	payload, err := json.Marshal(fill)
	if err != nil {
		ex.log.Error().Err(err).Msg("fill encode failed")
		return
	}
	add := &redis.XAddArgs{
		Stream: ex.cfg.Stream,
		MaxLen: DefaultStreamCap,
		Approx: true,
		Values: map[string]any{"payload": string(payload)},
	}
	if err := ex.rdb.XAdd(ctx, add).Err(); err != nil {
		ex.log.Warn().Err(err).Msg("fill append failed")
		return
	}
	metrics.PaperFills.Inc()
	ex.log.Info().
		Str("symbol", fill.Symbol).
		Str("route", fill.Buy+"->"+fill.Sell).
		Float64("qty", fill.QtyBase).
		Float64("net", fill.NetProfitQuote).
		Float64("roi_pct", fill.ROI*100).
		Msg("paper fill")
}
