package strategy

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan.trade/exchange"
)

func testPublisher() *Publisher {
	rdb, _ := redismock.NewClientMock()
	// No expectations: publish attempts fail and are swallowed, which is
	// exactly the publisher's contract.
	return NewPublisher(rdb, "", "", 0, zerolog.Nop())
}

func testEngine(adapters map[string]exchange.Adapter, cfg Config) *Engine {
	s := NewScanner(adapters, testStore(), 250, 0, 50, zerolog.Nop())
	return NewEngine(s, testPublisher(), cfg, zerolog.Nop())
}

func TestRunOnceBlocks(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
	}
	e := testEngine(adapters, Config{
		Symbols:   []string{"BTC/EUR"},
		Exchanges: []string{"a", "b"},
		TopN:      5,
	})

	res := e.RunOnce(context.Background())
	require.Len(t, res.Blocks, 1)
	block := res.Blocks[0]

	assert.Equal(t, "BTC/EUR", block.Symbol)
	assert.Len(t, block.DebugTop, 2, "both ordered pairs before filtering")

	// debug_best_any is the first record of the ranked pre-filter list.
	require.NotNil(t, block.DebugBestAny)
	assert.Equal(t, block.DebugTop[0], *block.DebugBestAny)

	require.NotNil(t, block.Best)
	assert.True(t, block.Best.OK)
	assert.Equal(t, "a", block.Best.Buy)
	assert.Equal(t, "b", block.Best.Sell)
	for _, opp := range block.Top {
		assert.True(t, opp.OK, "filtered list holds only ok records")
	}
}

func TestRunOnceThresholdFiltersAll(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
	}
	e := testEngine(adapters, Config{
		Symbols:     []string{"BTC/EUR"},
		Exchanges:   []string{"a", "b"},
		MinNetQuote: 1e9, // nothing qualifies
		TopN:        5,
	})

	res := e.RunOnce(context.Background())
	block := res.Blocks[0]

	assert.Empty(t, block.Top)
	assert.Nil(t, block.Best)
	assert.NotEmpty(t, block.DebugTop, "debug ranking survives the filter")
	assert.NotNil(t, block.DebugBestAny)
}

func TestRunOnceRoiThreshold(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
	}
	// The a->b route clears ~9% ROI; requiring 50% filters it out.
	e := testEngine(adapters, Config{
		Symbols:   []string{"BTC/EUR"},
		Exchanges: []string{"a", "b"},
		MinRoiPct: 50,
		TopN:      5,
	})
	res := e.RunOnce(context.Background())
	assert.Empty(t, res.Blocks[0].Top)

	e = testEngine(adapters, Config{
		Symbols:   []string{"BTC/EUR"},
		Exchanges: []string{"a", "b"},
		MinRoiPct: 1,
		TopN:      5,
	})
	res = e.RunOnce(context.Background())
	assert.NotEmpty(t, res.Blocks[0].Top)
}

func TestRunOnceFallbackWhenEmpty(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
	}
	scanner := NewScanner(adapters, testStore(), 250, 0, 50, zerolog.Nop())
	rdb, mock := redismock.NewClientMock()
	pub := NewPublisher(rdb, "opps", "opps_stream", 1000, zerolog.Nop())
	e := NewEngine(scanner, pub, Config{
		Symbols:           []string{"BTC/EUR"},
		Exchanges:         []string{"a", "b"},
		MinNetQuote:       1e9, // nothing qualifies
		FallbackWhenEmpty: true,
		TopN:              5,
	}, zerolog.Nop())

	// The quiet-market substitute is the symbol's best pre-filter record,
	// the a->b route, published as the sole batch item.
	pattern := `\{"ts":\d+,"items":\[\{"ok":true,"ts":\d+,"symbol":"BTC/EUR","buy":"a","sell":"b",.*\}\]\}`
	mock.Regexp().ExpectPublish("opps", pattern).SetVal(1)
	mock.Regexp().ExpectXAdd(&redis.XAddArgs{
		Stream: "opps_stream",
		MaxLen: 1000,
		Approx: true,
		ID:     `\*`,
		Values: map[string]any{"payload": pattern},
	}).SetVal("1-1")

	res := e.RunOnce(context.Background())
	block := res.Blocks[0]
	assert.Empty(t, block.Top, "threshold filters everything")
	require.NotNil(t, block.DebugBestAny)
	assert.NoError(t, mock.ExpectationsWereMet(), "fallback batch reaches the publisher")
}

func TestRunOnceNoFallbackStaysSilent(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
	}
	scanner := NewScanner(adapters, testStore(), 250, 0, 50, zerolog.Nop())
	rdb, mock := redismock.NewClientMock()
	pub := NewPublisher(rdb, "opps", "opps_stream", 1000, zerolog.Nop())
	e := NewEngine(scanner, pub, Config{
		Symbols:     []string{"BTC/EUR"},
		Exchanges:   []string{"a", "b"},
		MinNetQuote: 1e9,
		TopN:        5,
	}, zerolog.Nop())

	res := e.RunOnce(context.Background())
	assert.Empty(t, res.Blocks[0].Top)
	assert.NoError(t, mock.ExpectationsWereMet(), "no batch, no store traffic")
}

func TestRunOnceTopNTruncates(t *testing.T) {
	adapters := map[string]exchange.Adapter{
		"a": cheapVenue("a"),
		"b": richVenue("b"),
		"c": richVenue("c"),
	}
	e := testEngine(adapters, Config{
		Symbols:   []string{"BTC/EUR"},
		Exchanges: []string{"a", "b", "c"},
		TopN:      1,
	})

	res := e.RunOnce(context.Background())
	block := res.Blocks[0]
	assert.Len(t, block.DebugTop, 1)
	assert.LessOrEqual(t, len(block.Top), 1)
}

func TestHeadOf(t *testing.T) {
	items := []Opportunity{{Buy: "a"}, {Buy: "b"}, {Buy: "c"}}
	assert.Len(t, headOf(items, 2), 2)
	assert.Len(t, headOf(items, 0), 3)
	assert.Len(t, headOf(items, 10), 3)
}

func TestNetHelpers(t *testing.T) {
	var o Opportunity
	assert.Equal(t, negInf, o.netProfit())
	assert.Zero(t, o.netOrZero())
	assert.Zero(t, o.roi())

	o.Depth = mkDepth(-3)
	assert.Equal(t, -3.0, o.netProfit())
	assert.Equal(t, -3.0, o.netOrZero())
}
