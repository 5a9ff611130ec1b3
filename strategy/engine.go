package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"arbscan.trade/metrics"
)

// Config holds the strategy loop's knobs, bound once at startup.
type Config struct {
	Symbols           []string
	Exchanges         []string
	BudgetQuote       float64
	WithdrawFeeBase   float64
	MinNetQuote       float64
	MinRoiPct         float64
	Interval          time.Duration
	TopN              int
	FallbackWhenEmpty bool
	PrintTopN         int
}

// Engine is the periodic driver: scan every symbol, filter and rank, hand
// the flattened batch to the publisher, sleep to the tick boundary.
type Engine struct {
	scanner *Scanner
	pub     *Publisher
	cfg     Config
	log     zerolog.Logger
}

// NewEngine wires the strategy loop.
func NewEngine(scanner *Scanner, pub *Publisher, cfg Config, log zerolog.Logger) *Engine {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.PrintTopN <= 0 {
		cfg.PrintTopN = 3
	}
	return &Engine{
		scanner: scanner,
		pub:     pub,
		cfg:     cfg,
		log:     log.With().Str("comp", "strategy").Logger(),
	}
}

// RunOnce executes a single scan tick and returns its blocks. Publishing
// happens inside; callers only observe.
func (e *Engine) RunOnce(ctx context.Context) TickResult {
	blocks := make([]Block, 0, len(e.cfg.Symbols))
	var flat []Opportunity

	for _, symbol := range e.cfg.Symbols {
		pairs := e.scanner.ScanAll(ctx, symbol, e.cfg.Exchanges)

		block := Block{Symbol: symbol, DebugTop: headOf(pairs, e.cfg.TopN)}
		if len(pairs) > 0 {
			first := pairs[0]
			block.DebugBestAny = &first
		}

		var filtered []Opportunity
		for _, p := range pairs {
			if !p.OK {
				continue
			}
			if p.netProfit() >= e.cfg.MinNetQuote && p.roi()*100 >= e.cfg.MinRoiPct {
				filtered = append(filtered, p)
			}
		}
		SortByNet(filtered)
		block.Top = headOf(filtered, e.cfg.TopN)
		if len(filtered) > 0 {
			best := filtered[0]
			block.Best = &best
		}

		flat = append(flat, block.Top...)
		blocks = append(blocks, block)
	}

	// Quiet-market fallback: keep downstream observers live by publishing
	// each symbol's best unfiltered record instead of nothing.
	if len(flat) == 0 && e.cfg.FallbackWhenEmpty {
		for _, b := range blocks {
			switch {
			case b.DebugBestAny != nil:
				flat = append(flat, *b.DebugBestAny)
			case len(b.DebugTop) > 0:
				flat = append(flat, b.DebugTop[0])
			}
		}
	}

	e.pub.Publish(ctx, flat, e.cfg.TopN)
	metrics.ScanTicks.Inc()
	return TickResult{TS: time.Now().UnixMilli(), Blocks: blocks}
}

// Run drives ticks until ctx is cancelled. A tick that panics or errors is
// logged and the loop continues at the next boundary.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info().
		Strs("exchanges", e.cfg.Exchanges).
		Strs("symbols", e.cfg.Symbols).
		Float64("budget", e.cfg.BudgetQuote).
		Float64("min_net", e.cfg.MinNetQuote).
		Float64("min_roi_pct", e.cfg.MinRoiPct).
		Dur("interval", e.cfg.Interval).
		Int("topn", e.cfg.TopN).
		Msg("strategy loop start")

	for {
		t0 := time.Now()
		e.tick(ctx)

		wait := e.cfg.Interval - time.Since(t0)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("scan tick panicked")
		}
	}()
	res := e.RunOnce(ctx)
	e.report(res)
}

// report prints the per-symbol BEST and unfiltered TOP lines, including
// failed pair records so a dead venue is visible in the logs.
func (e *Engine) report(res TickResult) {
	for _, block := range res.Blocks {
		if block.Best != nil {
			e.log.Info().
				Str("symbol", block.Symbol).
				Str("route", block.Best.Buy+"->"+block.Best.Sell).
				Float64("net", block.Best.netOrZero()).
				Float64("roi_pct", block.Best.roi()*100).
				Float64("ask", block.Best.BestAsk).
				Float64("bid", block.Best.BestBid).
				Msg("best opportunity")
		}
		if len(block.DebugTop) == 0 {
			e.log.Debug().Str("symbol", block.Symbol).Msg("no pairs computed")
			continue
		}
		var lines []string
		for i, p := range headOf(block.DebugTop, e.cfg.PrintTopN) {
			tag := "NO"
			if p.OK {
				tag = "OK"
			} else if p.Error != "" {
				tag = "ERR"
			}
			line := fmt.Sprintf("%d. %s->%s [%s] gross=%.1fbps net=%.2f roi=%.2f%%",
				i+1, p.Buy, p.Sell, tag, p.GrossSpread*10000, p.netOrZero(), p.roi()*100)
			if p.Error != "" {
				line += fmt.Sprintf(" (err=%s: %s)", p.ErrorType, p.Error)
			}
			lines = append(lines, line)
		}
		e.log.Debug().Str("symbol", block.Symbol).Msg(strings.Join(lines, " | "))
	}
}

func headOf(items []Opportunity, n int) []Opportunity {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
