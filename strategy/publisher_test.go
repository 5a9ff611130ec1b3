package strategy

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

const batchPattern = `\{"ts":\d+,"items":\[.*\]\}`

func sampleOpps() []Opportunity {
	return []Opportunity{
		{OK: true, Symbol: "BTC/EUR", Buy: "a", Sell: "b", Depth: mkDepth(5)},
		{OK: true, Symbol: "BTC/EUR", Buy: "c", Sell: "b", Depth: mkDepth(2)},
	}
}

func TestPublishEmptyIsNoop(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	p := NewPublisher(rdb, "", "", 0, zerolog.Nop())

	p.Publish(context.Background(), nil, 5)
	p.Publish(context.Background(), []Opportunity{}, 5)

	assert.NoError(t, mock.ExpectationsWereMet(), "no store traffic for an empty batch")
}

func TestPublishFansOut(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	p := NewPublisher(rdb, "opps", "opps_stream", 1000, zerolog.Nop())

	mock.Regexp().ExpectPublish("opps", batchPattern).SetVal(1)
	mock.Regexp().ExpectXAdd(&redis.XAddArgs{
		Stream: "opps_stream",
		MaxLen: 1000,
		Approx: true,
		ID:     `\*`,
		Values: map[string]any{"payload": batchPattern},
	}).SetVal("1-1")

	p.Publish(context.Background(), sampleOpps(), 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishSwallowsStoreErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	p := NewPublisher(rdb, "opps", "opps_stream", 1000, zerolog.Nop())

	mock.Regexp().ExpectPublish("opps", batchPattern).SetErr(assert.AnError)
	mock.Regexp().ExpectXAdd(&redis.XAddArgs{
		Stream: "opps_stream",
		MaxLen: 1000,
		Approx: true,
		ID:     `\*`,
		Values: map[string]any{"payload": batchPattern},
	}).SetErr(assert.AnError)

	// Must not panic or propagate; the next tick retries.
	p.Publish(context.Background(), sampleOpps(), 5)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublisherDefaults(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	p := NewPublisher(rdb, "", "", -1, zerolog.Nop())
	assert.Equal(t, DefaultChannel, p.channel)
	assert.Equal(t, DefaultStream, p.stream)
	assert.Equal(t, int64(DefaultStreamCap), p.maxLen)
}
