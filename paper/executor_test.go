package paper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan.trade/depth"
	"arbscan.trade/orderbook"
	"arbscan.trade/strategy"
)

func newTestExecutor(cfg Config) (*Executor, redismock.ClientMock) {
	rdb, mock := redismock.NewClientMock()
	store := orderbook.NewStore(rdb, 0)
	return NewExecutor(rdb, store, cfg, zerolog.Nop()), mock
}

func goodItem() strategy.Opportunity {
	return strategy.Opportunity{
		OK:      true,
		Symbol:  "BTC/EUR",
		Buy:     "a",
		Sell:    "b",
		BestAsk: 100,
		BestBid: 110,
		FeeBuy:  0.0025,
		FeeSell: 0.0026,
		Depth: &depth.FillResult{
			QtyBaseBought:  0.5,
			QtyBaseSold:    0.5,
			NetProfitQuote: 4.5,
			ROI:            0.09,
			OK:             true,
		},
	}
}

func TestItemQty(t *testing.T) {
	item := goodItem()
	assert.Equal(t, 0.5, itemQty(&item))

	item.Depth.QtyBaseSold = 0
	item.Depth.QtyBaseBought = 0.25
	assert.Equal(t, 0.25, itemQty(&item), "falls back to bought when nothing sold")

	item.Depth = nil
	assert.Zero(t, itemQty(&item))
}

func TestFingerprintStability(t *testing.T) {
	a, b := goodItem(), goodItem()
	assert.Equal(t, fingerprint(&a, 0.5), fingerprint(&b, 0.5))

	// Any route or price change produces a different fingerprint.
	b.Sell = "c"
	assert.NotEqual(t, fingerprint(&a, 0.5), fingerprint(&b, 0.5))

	c := goodItem()
	c.BestAsk = 100.5
	assert.NotEqual(t, fingerprint(&a, 0.5), fingerprint(&c, 0.5))

	// Sub-cent price noise rounds away.
	d := goodItem()
	d.BestAsk = 100.0001
	assert.Equal(t, fingerprint(&a, 0.5), fingerprint(&d, 0.5))
}

func TestBuildFill(t *testing.T) {
	ex, _ := newTestExecutor(Config{SlippageBPS: 2})
	item := goodItem()

	fill, ok := ex.buildFill(&item)
	require.True(t, ok)

	assert.Equal(t, "paper-exec", fill.Source)
	assert.Equal(t, 0.5, fill.QtyBase)
	assert.InDelta(t, 100*1.0002, fill.EffAsk, 1e-9)
	assert.InDelta(t, 110*0.9998, fill.EffBid, 1e-9)
	assert.InDelta(t, 0.5*100*1.0002*1.0025, fill.SpentQuote, 1e-9)
	assert.InDelta(t, 0.5*110*0.9998*(1-0.0026), fill.ReceivedQuote, 1e-9)
	assert.InDelta(t, fill.ReceivedQuote-fill.SpentQuote, fill.NetProfitQuote, 1e-12)
	assert.InDelta(t, fill.NetProfitQuote/fill.SpentQuote, fill.ROI, 1e-12)
	assert.InDelta(t, 1000, fill.GrossSpreadBPS, 1e-9)
	assert.NotZero(t, fill.TS)
}

func TestBuildFillFeeDefaults(t *testing.T) {
	ex, _ := newTestExecutor(Config{SlippageBPS: 2})
	item := goodItem()
	item.FeeBuy, item.FeeSell = 0, 0

	fill, ok := ex.buildFill(&item)
	require.True(t, ok)
	assert.Equal(t, 0.001, fill.FeeBuyRate)
	assert.Equal(t, 0.001, fill.FeeSellRate)
}

func TestBuildFillRejectsDegenerate(t *testing.T) {
	ex, _ := newTestExecutor(Config{})
	item := goodItem()
	item.BestAsk = 0
	_, ok := ex.buildFill(&item)
	assert.False(t, ok)

	item = goodItem()
	item.Depth = nil
	_, ok = ex.buildFill(&item)
	assert.False(t, ok)
}

func TestShouldExecuteGate(t *testing.T) {
	ex, mock := newTestExecutor(Config{MinNetQuote: 1, Cooldown: 4 * time.Second})
	ctx := context.Background()

	// Below threshold without AllowNoProfit: rejected before any store call.
	weak := goodItem()
	weak.Depth.NetProfitQuote = 0.5
	assert.False(t, ex.shouldExecute(ctx, &weak))

	// No quantity: always rejected, even with AllowNoProfit.
	ex2, _ := newTestExecutor(Config{AllowNoProfit: true})
	empty := goodItem()
	empty.Depth = nil
	assert.False(t, ex2.shouldExecute(ctx, &empty))

	// Qualifying item: dedup marker set, execution allowed.
	item := goodItem()
	key := "paper:dedup:" + fingerprint(&item, 0.5)
	mock.ExpectSetNX(key, "1", 4*time.Second).SetVal(true)
	assert.True(t, ex.shouldExecute(ctx, &item))

	// Same fingerprint inside the window: dropped.
	mock.ExpectSetNX(key, "1", 4*time.Second).SetVal(false)
	assert.False(t, ex.shouldExecute(ctx, &item))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShouldExecuteAllowNoProfit(t *testing.T) {
	ex, mock := newTestExecutor(Config{MinNetQuote: 1e9, AllowNoProfit: true, Cooldown: time.Second})

	item := goodItem()
	key := "paper:dedup:" + fingerprint(&item, 0.5)
	mock.ExpectSetNX(key, "1", time.Second).SetVal(true)

	assert.True(t, ex.shouldExecute(context.Background(), &item), "threshold bypassed in dev mode")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleRecordsFill(t *testing.T) {
	ex, mock := newTestExecutor(Config{Stream: "paper_trades", Cooldown: time.Second})

	item := goodItem()
	payload, err := json.Marshal(strategy.Batch{TS: time.Now().UnixMilli(), Items: []strategy.Opportunity{item}})
	require.NoError(t, err)

	key := "paper:dedup:" + fingerprint(&item, 0.5)
	mock.ExpectSetNX(key, "1", time.Second).SetVal(true)
	mock.Regexp().ExpectXAdd(&redis.XAddArgs{
		Stream: "paper_trades",
		MaxLen: DefaultStreamCap,
		Approx: true,
		ID:     `\*`,
		Values: map[string]any{"payload": `\{.*"source":"paper-exec"\}`},
	}).SetVal("1-1")

	ex.handle(context.Background(), payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIgnoresGarbage(t *testing.T) {
	ex, mock := newTestExecutor(Config{})
	ex.handle(context.Background(), []byte(`{not json`))
	assert.NoError(t, mock.ExpectationsWereMet(), "corrupt payloads are dropped silently")
}

func TestRoundHelpers(t *testing.T) {
	assert.Equal(t, 100.12, roundTo(100.1234, 2))
	assert.Equal(t, "100.12", trimFloat(100.12))
	assert.Equal(t, "0.00000001", trimFloat(roundTo(1.23e-8, 8)))
}
