package orderbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStaleMS is the freshness window applied on the read side: snapshots
// older than this relative to the wall clock are treated as cache misses.
const DefaultStaleMS = 5000

// SnapshotTTL is how long a written snapshot survives in Redis without a
// refresh from its streamer.
const SnapshotTTL = 10 * time.Second

// ErrStore wraps transport failures talking to Redis.
var ErrStore = errors.New("orderbook store error")

// Store is the shared key/value home of the freshest snapshot per
// (exchange, symbol). It is single-writer per key (the owning streamer)
// and multi-reader.
type Store struct {
	rdb     *redis.Client
	staleMS int64
}

// NewStore wraps a shared Redis client. staleMS <= 0 selects DefaultStaleMS.
func NewStore(rdb *redis.Client, staleMS int64) *Store {
	if staleMS <= 0 {
		staleMS = DefaultStaleMS
	}
	return &Store{rdb: rdb, staleMS: staleMS}
}

// Key returns the canonical storage key for one (exchange, symbol) book.
func Key(exchange, symbol string) string {
	return fmt.Sprintf("ob:%s:%s", exchange, symbol)
}

// Put overwrites the snapshot for its (exchange, symbol) with the given TTL.
func (s *Store) Put(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, Key(snap.Exchange, snap.Symbol), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStore, Key(snap.Exchange, snap.Symbol), err)
	}
	return nil
}

// Get returns the cached snapshot, or nil when the key is absent or the
// snapshot is older than the staleness window.
func (s *Store) Get(ctx context.Context, exchange, symbol string) (*Snapshot, error) {
	data, err := s.rdb.Get(ctx, Key(exchange, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, Key(exchange, symbol), err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if snap.TS > 0 && time.Now().UnixMilli()-snap.TS > s.staleMS {
		return nil, nil
	}
	return snap, nil
}

// SetIfAbsent is an atomic test-and-set with expiry, used for short-lived
// dedup markers. It reports whether the key was newly set.
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx %s: %v", ErrStore, key, err)
	}
	return ok, nil
}

// Keys lists keys matching a glob pattern. Diagnostic only.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: keys %s: %v", ErrStore, pattern, err)
	}
	return keys, nil
}

// GetRaw fetches the raw bytes under an arbitrary key. Diagnostic only.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, key, err)
	}
	return data, nil
}
