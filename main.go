package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"arbscan.trade/exchange"
	"arbscan.trade/metrics"
	"arbscan.trade/orderbook"
	"arbscan.trade/paper"
	"arbscan.trade/strategy"
)

func main() {
	_ = godotenv.Load() // absent .env is fine; production sets the environment directly
	cfg := LoadConfig()
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := newRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RedisURL).Msg("redis config invalid")
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis unreachable")
	}
	log.Info().Str("url", cfg.RedisURL).Msg("connected to redis")

	synonyms, err := exchange.LoadSynonyms(cfg.SynonymsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.SynonymsFile).Msg("synonym table invalid")
	}

	adapters := buildAdapters(cfg, rdb, synonyms, log)
	if len(adapters) == 0 {
		log.Fatal().Msg("no usable exchanges configured")
	}
	pingVenues(ctx, adapters, log)

	store := orderbook.NewStore(rdb, cfg.StaleMS)
	metrics.Serve(cfg.MetricsAddr, log)

	// One streamer per (exchange, symbol); each restarts after an
	// unexpected exit.
	for _, ex := range cfg.StreamExchanges {
		adapter, ok := adapters[ex]
		if !ok {
			continue
		}
		for _, sym := range cfg.StreamSymbols {
			st := orderbook.NewStreamer(adapter, store, sym, cfg.Depth, cfg.RestPoll, log)
			go superviseStreamer(ctx, st, log)
		}
	}

	scanner := strategy.NewScanner(adapters, store, cfg.BudgetQuote, cfg.WithdrawFeeBase, cfg.Depth, log)
	publisher := strategy.NewPublisher(rdb, cfg.PublishChannel, cfg.PublishStream, strategy.DefaultStreamCap, log)
	engine := strategy.NewEngine(scanner, publisher, strategy.Config{
		Symbols:           cfg.StratSymbols,
		Exchanges:         cfg.StratExchanges,
		BudgetQuote:       cfg.BudgetQuote,
		WithdrawFeeBase:   cfg.WithdrawFeeBase,
		MinNetQuote:       cfg.MinNetQuote,
		MinRoiPct:         cfg.MinRoiPct,
		Interval:          cfg.Interval,
		TopN:              cfg.TopN,
		FallbackWhenEmpty: cfg.FallbackWhenEmpty,
		PrintTopN:         cfg.PrintTopN,
	}, log)
	go engine.Run(ctx)

	executor := paper.NewExecutor(rdb, store, paper.Config{
		Channel:       cfg.PublishChannel,
		Stream:        cfg.PaperStream,
		MinNetQuote:   cfg.PaperMinNetQuote,
		MinRoiPct:     cfg.PaperMinRoiPct,
		SlippageBPS:   cfg.PaperSlippageBPS,
		Cooldown:      cfg.PaperCooldown,
		AllowNoProfit: cfg.AllowNoProfit,
	}, log)
	go executor.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

func newRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// buildAdapters constructs one adapter per venue named in either the
// streamer or the strategy exchange list.
func buildAdapters(cfg Config, rdb *redis.Client, synonyms exchange.SynonymTable, log zerolog.Logger) map[string]exchange.Adapter {
	names := make(map[string]bool)
	for _, ex := range cfg.StreamExchanges {
		names[ex] = true
	}
	for _, ex := range cfg.StratExchanges {
		names[ex] = true
	}

	adapters := make(map[string]exchange.Adapter, len(names))
	for name := range names {
		adapter, err := exchange.New(name, exchange.Options{
			Redis:    rdb,
			Synonyms: synonyms,
			Logger:   log,
		})
		if err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("skipping unsupported exchange")
			continue
		}
		adapters[name] = adapter
	}
	return adapters
}

// pingVenues logs best-effort liveness for every configured venue.
func pingVenues(ctx context.Context, adapters map[string]exchange.Adapter, log zerolog.Logger) {
	for name, adapter := range adapters {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pong, err := adapter.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("exchange", name).Msg("venue ping failed")
			continue
		}
		log.Info().
			Str("exchange", name).
			Int64("server_time", pong.ServerTime).
			Int64("skew_ms", pong.LocalMS-pong.ServerTime).
			Msg("venue reachable")
	}
}

// superviseStreamer restarts a streamer that exits for any reason other
// than shutdown, with capped exponential backoff.
func superviseStreamer(ctx context.Context, st *orderbook.Streamer, log zerolog.Logger) {
	backoff := time.Second
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("streamer panicked")
				}
			}()
			st.Run(ctx)
		}()
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
