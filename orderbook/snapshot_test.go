package orderbook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLevels(t *testing.T) {
	in := []Level{
		{Price: 100, Size: 1},
		{Price: 0, Size: 5},
		{Price: 99, Size: -1},
		{Price: -2, Size: 3},
		{Price: 100, Size: 0.5}, // duplicate price merges
		{Price: 101, Size: 2},
	}
	out := SanitizeLevels(in)

	require.Len(t, out, 2)
	assert.Equal(t, Level{Price: 100, Size: 1.5}, out[0])
	assert.Equal(t, Level{Price: 101, Size: 2}, out[1])
}

func TestSnapshotNormalize(t *testing.T) {
	s := Snapshot{
		Exchange: "bitvavo",
		Symbol:   "BTC/EUR",
		Asks:     []Level{{Price: 102, Size: 1}, {Price: 100, Size: 1}, {Price: 101, Size: 0}},
		Bids:     []Level{{Price: 98, Size: 1}, {Price: 99, Size: 2}},
	}
	s.Normalize()

	require.Len(t, s.Asks, 2)
	assert.True(t, s.Asks[0].Price < s.Asks[1].Price, "asks ascending")
	require.Len(t, s.Bids, 2)
	assert.True(t, s.Bids[0].Price > s.Bids[1].Price, "bids descending")
	assert.NotZero(t, s.TS, "zero ts gets stamped")

	for _, lvl := range append(s.Asks, s.Bids...) {
		assert.Greater(t, lvl.Size, 0.0)
	}
}

func TestSnapshotTruncate(t *testing.T) {
	s := Snapshot{
		Asks: []Level{{100, 1}, {101, 1}, {102, 1}},
		Bids: []Level{{99, 1}, {98, 1}},
	}
	s.Truncate(2)
	assert.Len(t, s.Asks, 2)
	assert.Len(t, s.Bids, 2)

	s.Truncate(0) // no-op
	assert.Len(t, s.Asks, 2)
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(Level{Price: 100.5, Size: 0.25})
	require.NoError(t, err)
	assert.JSONEq(t, `[100.5, 0.25]`, string(data))

	var lvl Level
	require.NoError(t, json.Unmarshal([]byte(`[99.9, 1.5]`), &lvl))
	assert.Equal(t, Level{Price: 99.9, Size: 1.5}, lvl)

	assert.Error(t, json.Unmarshal([]byte(`{"price": 1}`), &lvl))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := Snapshot{
		Exchange: "kraken",
		Symbol:   "BTC/EUR",
		TS:       1700000000000,
		Asks:     []Level{{100, 1}, {101, 2}},
		Bids:     []Level{{99, 1}, {98, 0.5}},
	}
	data, err := s.Encode()
	require.NoError(t, err)

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, &s, got)

	// Byte-for-byte stability once normalized.
	again, err := got.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeSnapshotReSorts(t *testing.T) {
	raw := []byte(`{"exchange":"x","symbol":"A/B","ts":1,"asks":[[102,1],[100,1]],"bids":[[98,1],[99,1]]}`)
	s, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Asks[0].Price)
	assert.Equal(t, 99.0, s.Bids[0].Price)
}

func TestDecodeSnapshotCorrupt(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{nope`))
	assert.Error(t, err)
}

func TestBestAskBid(t *testing.T) {
	s := Snapshot{Asks: []Level{{100, 1}}, Bids: nil}
	ask, ok := s.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 100.0, ask.Price)

	_, ok = s.BestBid()
	assert.False(t, ok)
}

func TestBookDeltaMerge(t *testing.T) {
	b := NewBook("bitvavo", "BTC/EUR")
	b.Reset(
		[]Level{{99, 1}, {98, 2}},
		[]Level{{100, 1}, {101, 1}},
		10,
	)

	// Zero size deletes, positive size upserts, non-positive price ignored.
	b.Apply(
		[]Level{{99, 0}, {97, 3}},
		[]Level{{100, 0.5}, {-1, 2}},
		20,
	)

	snap := b.Snapshot(50)
	assert.Equal(t, int64(20), snap.TS)
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, Level{Price: 98, Size: 2}, snap.Bids[0])
	assert.Equal(t, Level{Price: 97, Size: 3}, snap.Bids[1])
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, Level{Price: 100, Size: 0.5}, snap.Asks[0])

	// Stale delta timestamps never rewind the book clock.
	b.Apply(nil, nil, 5)
	assert.Equal(t, int64(20), b.Snapshot(50).TS)
}

func TestBookSnapshotDepth(t *testing.T) {
	b := NewBook("x", "A/B")
	b.Reset(
		[]Level{{99, 1}, {98, 1}, {97, 1}},
		[]Level{{100, 1}, {101, 1}, {102, 1}},
		1,
	)
	snap := b.Snapshot(2)
	assert.Len(t, snap.Asks, 2)
	assert.Len(t, snap.Bids, 2)
	assert.Equal(t, 100.0, snap.Asks[0].Price)
	assert.Equal(t, 99.0, snap.Bids[0].Price)
}
