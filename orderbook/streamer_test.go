package orderbook

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	name  string
	asks  []Level
	bids  []Level
	err   error
	books chan Snapshot // non-nil makes the source a Watcher
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchOrderBook(ctx context.Context, symbol string, limit int) ([]Level, []Level, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.asks, f.bids, nil
}

func (f *fakeSource) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	return symbol, nil
}

type fakeWatchSource struct {
	fakeSource
}

func (f *fakeWatchSource) WatchOrderBook(ctx context.Context, symbol string, limit int) (<-chan Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.books, nil
}

func snapPattern() string {
	return `\{"exchange":".*","symbol":".*","ts":\d+,"asks":\[.*\],"bids":\[.*\]\}`
}

func TestStreamerWriteNormalizes(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewStore(rdb, 5000)
	src := &fakeSource{name: "bitvavo"}
	st := NewStreamer(src, store, "BTC/EUR", 50, time.Second, zerolog.Nop())

	mock.Regexp().ExpectSet("ob:bitvavo:BTC/EUR", snapPattern(), SnapshotTTL).SetVal("OK")

	snap := Snapshot{
		Exchange: "bitvavo",
		Symbol:   "BTC/EUR",
		Asks:     []Level{{101, 1}, {100, 1}},
		Bids:     []Level{{99, 1}},
	}
	st.write(context.Background(), &snap)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 100.0, snap.Asks[0].Price, "write sorts before storing")
	assert.NotZero(t, snap.TS)
}

func TestStreamerPollWritesOnce(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewStore(rdb, 5000)
	src := &fakeSource{
		name: "coinbase",
		asks: []Level{{100, 1}},
		bids: []Level{{99, 1}},
	}
	st := NewStreamer(src, store, "ETH/EUR", 50, time.Minute, zerolog.Nop())

	mock.Regexp().ExpectSet("ob:coinbase:ETH/EUR", snapPattern(), SnapshotTTL).SetVal("OK")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	st.Run(ctx) // fetches once, then blocks on the poll timer until ctx ends

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamerStreamConsumesSnapshots(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewStore(rdb, 5000)
	src := &fakeWatchSource{fakeSource: fakeSource{name: "bitvavo"}}
	src.books = make(chan Snapshot, 1)
	src.books <- Snapshot{
		Exchange: "bitvavo",
		Symbol:   "BTC/EUR",
		Asks:     []Level{{100, 1}},
		Bids:     []Level{{99, 1}},
	}
	st := NewStreamer(src, store, "BTC/EUR", 50, time.Second, zerolog.Nop())

	mock.Regexp().ExpectSet("ob:bitvavo:BTC/EUR", snapPattern(), SnapshotTTL).SetVal("OK")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	st.Run(ctx)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamerPollSurvivesErrors(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	store := NewStore(rdb, 5000)
	src := &fakeSource{name: "kraken", err: assert.AnError}
	st := NewStreamer(src, store, "BTC/EUR", 50, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	st.Run(ctx) // several failed fetches, none fatal
}
