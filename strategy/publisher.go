package strategy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"arbscan.trade/metrics"
)

// Stream and channel defaults, overridable via PUBLISH_CHANNEL and
// PUBLISH_STREAM.
const (
	DefaultChannel   = "opps"
	DefaultStream    = "opps_stream"
	DefaultStreamCap = 1000
)

// Publisher fans a scan tick's qualifying opportunities out over Redis
// Pub/Sub and appends them to a capped history stream. It never emits an
// empty batch, and store errors never abort a tick; the next tick retries.
type Publisher struct {
	rdb     *redis.Client
	channel string
	stream  string
	maxLen  int64
	log     zerolog.Logger
}

// NewPublisher wires the publisher onto a shared Redis client. Empty names
// select the defaults; maxLen <= 0 selects DefaultStreamCap.
func NewPublisher(rdb *redis.Client, channel, stream string, maxLen int64, log zerolog.Logger) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamCap
	}
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		stream:  stream,
		maxLen:  maxLen,
		log:     log.With().Str("comp", "publisher").Logger(),
	}
}

// Publish broadcasts at most topn items as one batch. An empty list is a
// no-op.
func (p *Publisher) Publish(ctx context.Context, items []Opportunity, topn int) {
	if len(items) == 0 {
		return
	}
	if topn > 0 && len(items) > topn {
		items = items[:topn]
	}
	encoded, err := json.Marshal(Batch{TS: time.Now().UnixMilli(), Items: items})
	if err != nil {
		p.log.Error().Err(err).Msg("batch encode failed")
		return
	}
	payload := string(encoded)

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		metrics.PublishErrors.Inc()
		p.log.Warn().Err(err).Str("channel", p.channel).Msg("publish failed")
	}
	add := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := p.rdb.XAdd(ctx, add).Err(); err != nil {
		metrics.PublishErrors.Inc()
		p.log.Warn().Err(err).Str("stream", p.stream).Msg("history append failed")
		return
	}
	metrics.OpportunitiesPublished.Add(float64(len(items)))
}
