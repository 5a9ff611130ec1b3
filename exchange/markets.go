package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// marketsTTL is the coarse lifetime of cached market metadata. The cache is
// invalidated early when symbol resolution fails.
const marketsTTL = 10 * time.Minute

// marketsCache memoizes a venue's market metadata in process, with an
// optional shared Redis layer so sibling processes skip the venue call.
// Redis entries are msgpack-encoded under meta:{venue}.
type marketsCache struct {
	venue string
	fetch func(ctx context.Context) (map[string]MarketMeta, error)
	rdb   *redis.Client
	log   zerolog.Logger

	mu      sync.Mutex
	markets map[string]MarketMeta
	loaded  time.Time
}

func newMarketsCache(venue string, rdb *redis.Client, log zerolog.Logger,
	fetch func(ctx context.Context) (map[string]MarketMeta, error)) *marketsCache {
	return &marketsCache{venue: venue, fetch: fetch, rdb: rdb, log: log}
}

func metaKey(venue string) string { return fmt.Sprintf("meta:%s", venue) }

func (c *marketsCache) get(ctx context.Context) (map[string]MarketMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.markets != nil && time.Since(c.loaded) < marketsTTL {
		return c.markets, nil
	}
	if shared := c.fromRedis(ctx); shared != nil {
		c.markets = shared
		c.loaded = time.Now()
		return c.markets, nil
	}

	markets, err := c.fetch(ctx)
	if err != nil {
		// Serve the expired copy rather than nothing when the venue is down.
		if c.markets != nil {
			c.log.Warn().Err(err).Msg("markets refresh failed, serving stale metadata")
			return c.markets, nil
		}
		return nil, err
	}
	c.markets = markets
	c.loaded = time.Now()
	c.toRedis(ctx, markets)
	return c.markets, nil
}

// invalidate drops both cache layers so the next get refetches. Called after
// a failed symbol resolution in case the venue listed a new market.
func (c *marketsCache) invalidate(ctx context.Context) {
	c.mu.Lock()
	c.markets = nil
	c.loaded = time.Time{}
	c.mu.Unlock()
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, metaKey(c.venue)).Err(); err != nil {
			c.log.Warn().Err(err).Msg("meta cache invalidation failed")
		}
	}
}

func (c *marketsCache) fromRedis(ctx context.Context) map[string]MarketMeta {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, metaKey(c.venue)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("meta cache read failed")
		}
		return nil
	}
	var markets map[string]MarketMeta
	if err := msgpack.Unmarshal(data, &markets); err != nil {
		c.log.Warn().Err(err).Msg("meta cache decode failed")
		return nil
	}
	return markets
}

func (c *marketsCache) toRedis(ctx context.Context, markets map[string]MarketMeta) {
	if c.rdb == nil {
		return
	}
	data, err := msgpack.Marshal(markets)
	if err != nil {
		c.log.Warn().Err(err).Msg("meta cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, metaKey(c.venue), data, marketsTTL).Err(); err != nil {
		c.log.Warn().Err(err).Msg("meta cache write failed")
	}
}
