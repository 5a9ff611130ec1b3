package exchange

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"arbscan.trade/orderbook"
)

// wsReconnectWait is the pause between websocket reconnect attempts.
const wsReconnectWait = 5 * time.Second

// wsMaxReconnects bounds consecutive failed reconnects before the watch
// stream is declared dead and the consumer falls back to polling.
const wsMaxReconnects = 5

type bitvavoWSMsg struct {
	Event    string       `json:"event"`
	Action   string       `json:"action"`
	Market   string       `json:"market"`
	Nonce    int64        `json:"nonce"`
	Bids     [][]any      `json:"bids"`
	Asks     [][]any      `json:"asks"`
	Response *bitvavoBook `json:"response"`
}

// WatchOrderBook subscribes to the venue's book channel and emits a fresh
// sorted snapshot after every delta. The returned channel holds only the
// latest snapshot; slow consumers see the newest state, not a backlog.
// The channel closes when the subscription is beyond recovery.
func (b *Bitvavo) WatchOrderBook(ctx context.Context, symbol string, limit int) (<-chan orderbook.Snapshot, error) {
	market, err := b.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	conn, err := b.dialBook(ctx, market)
	if err != nil {
		return nil, &AdapterError{Venue: b.name, Op: "watch " + market, Err: err}
	}

	out := make(chan orderbook.Snapshot, 1)
	book := orderbook.NewBook(b.name, symbol)
	go b.watchLoop(ctx, conn, market, limit, book, out)
	return out, nil
}

func (b *Bitvavo) dialBook(ctx context.Context, market string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)

	// Full snapshot first, then delta subscription.
	if err := conn.WriteJSON(map[string]any{"action": "getBook", "market": market}); err != nil {
		conn.Close()
		return nil, err
	}
	sub := map[string]any{
		"action": "subscribe",
		"channels": []map[string]any{
			{"name": "book", "markets": []string{market}},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (b *Bitvavo) watchLoop(ctx context.Context, conn *websocket.Conn, market string, limit int, book *orderbook.Book, out chan orderbook.Snapshot) {
	defer close(out)
	defer func() { conn.Close() }()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		var msg bitvavoWSMsg
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn().Err(err).Str("market", market).Msg("book stream read failed, reconnecting")
			conn.Close()

			failures++
			if failures > wsMaxReconnects {
				b.log.Warn().Str("market", market).Msg("book stream beyond recovery")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wsReconnectWait):
			}
			next, err := b.dialBook(ctx, market)
			if err != nil {
				b.log.Warn().Err(err).Str("market", market).Msg("book stream reconnect failed")
				continue
			}
			conn = next
			continue
		}
		failures = 0

		switch {
		case msg.Action == "getBook" && msg.Response != nil:
			book.Reset(parseLevels(msg.Response.Bids), parseLevels(msg.Response.Asks), time.Now().UnixMilli())
		case msg.Event == "book" && msg.Market == market:
			book.Apply(parseDeltaLevels(msg.Bids), parseDeltaLevels(msg.Asks), time.Now().UnixMilli())
		default:
			continue
		}
		emitLatest(out, book.Snapshot(limit))
	}
}

// parseDeltaLevels keeps zero sizes: in delta updates a zero size deletes
// the price level.
func parseDeltaLevels(raw [][]any) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		px := toFloat(entry[0])
		if px > 0 {
			out = append(out, orderbook.Level{Price: px, Size: toFloat(entry[1])})
		}
	}
	return out
}

// emitLatest replaces any undelivered snapshot with the newest one.
func emitLatest(out chan orderbook.Snapshot, snap orderbook.Snapshot) {
	for {
		select {
		case out <- snap:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
