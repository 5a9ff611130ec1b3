package orderbook

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"arbscan.trade/metrics"
)

// Source is the read-only venue capability the streamer needs. Satisfied by
// exchange adapters.
type Source interface {
	Name() string
	FetchOrderBook(ctx context.Context, symbol string, limit int) (asks, bids []Level, err error)
	ResolveSymbol(ctx context.Context, symbol string) (string, error)
}

// Watcher is the optional push-subscription capability of a Source. When the
// venue supports it the streamer prefers it over REST polling.
type Watcher interface {
	WatchOrderBook(ctx context.Context, symbol string, limit int) (<-chan Snapshot, error)
}

type symbolNotFounder interface {
	SymbolNotFound() bool
}

// Streamer keeps the store entry for one (exchange, symbol) fresh. It prefers
// a push subscription and falls back to periodic REST polling. Streamers are
// independent; there is no cross-venue coordination.
type Streamer struct {
	src      Source
	store    *Store
	symbol   string
	depth    int
	pollWait time.Duration
	log      zerolog.Logger
}

// NewStreamer builds a streamer for one (exchange, symbol). depth bounds the
// stored book; pollWait is the REST polling interval.
func NewStreamer(src Source, store *Store, symbol string, depth int, pollWait time.Duration, log zerolog.Logger) *Streamer {
	return &Streamer{
		src:      src,
		store:    store,
		symbol:   symbol,
		depth:    depth,
		pollWait: pollWait,
		log: log.With().
			Str("comp", "streamer").
			Str("exchange", src.Name()).
			Str("symbol", symbol).
			Logger(),
	}
}

// Run drives the streamer until ctx is cancelled. Recoverable errors never
// terminate it; they back off and retry.
func (st *Streamer) Run(ctx context.Context) {
	st.resolveSymbol(ctx)

	if w, ok := st.src.(Watcher); ok {
		if st.stream(ctx, w) {
			return // ctx cancelled while streaming
		}
		st.log.Warn().Msg("push subscription unavailable, falling back to polling")
	}
	st.poll(ctx)
}

// resolveSymbol warms the adapter's symbol mapping once at startup. Failure
// is not fatal; fetches resolve lazily and we re-resolve on demand.
func (st *Streamer) resolveSymbol(ctx context.Context) {
	venueSym, err := st.src.ResolveSymbol(ctx, st.symbol)
	if err != nil {
		st.log.Warn().Err(err).Msg("symbol resolution failed at startup")
		return
	}
	st.log.Info().Str("venue_symbol", venueSym).Msg("symbol resolved")
}

// stream consumes the push subscription. Returns true when ctx ended the
// stream, false when the subscription failed and polling should take over.
func (st *Streamer) stream(ctx context.Context, w Watcher) bool {
	books, err := w.WatchOrderBook(ctx, st.symbol, st.depth)
	if err != nil {
		st.log.Warn().Err(err).Msg("watch subscription failed")
		return false
	}
	st.log.Info().Msg("streaming order book")

	for {
		select {
		case <-ctx.Done():
			return true
		case snap, open := <-books:
			if !open {
				st.log.Warn().Msg("book stream closed")
				return ctx.Err() != nil
			}
			st.write(ctx, &snap)
		}
	}
}

// poll fetches the book over REST every pollWait, sleeping twice as long
// after an error.
func (st *Streamer) poll(ctx context.Context) {
	st.log.Info().Dur("interval", st.pollWait).Msg("polling order book")
	for {
		wait := st.pollWait
		asks, bids, err := st.src.FetchOrderBook(ctx, st.symbol, st.depth)
		if err != nil {
			st.log.Warn().Err(err).Msg("order book fetch failed")
			if nf, ok := err.(symbolNotFounder); ok && nf.SymbolNotFound() {
				st.resolveSymbol(ctx)
			}
			wait = 2 * st.pollWait
		} else {
			snap := Snapshot{
				Exchange: st.src.Name(),
				Symbol:   st.symbol,
				Asks:     asks,
				Bids:     bids,
			}
			st.write(ctx, &snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (st *Streamer) write(ctx context.Context, snap *Snapshot) {
	snap.Normalize()
	snap.Truncate(st.depth)
	if err := st.store.Put(ctx, snap, SnapshotTTL); err != nil {
		st.log.Warn().Err(err).Msg("snapshot write failed")
		return
	}
	metrics.SnapshotsWritten.WithLabelValues(snap.Exchange, snap.Symbol).Inc()
}
