package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config binds every environment knob once at startup. All variables are
// optional; defaults match a local single-host deployment.
type Config struct {
	RedisURL string

	StaleMS         int64
	Depth           int
	RestPoll        time.Duration
	StreamExchanges []string
	StreamSymbols   []string

	StratExchanges  []string
	StratSymbols    []string
	BudgetQuote     float64
	WithdrawFeeBase float64
	MinNetQuote     float64
	MinRoiPct       float64
	Interval        time.Duration
	TopN            int
	PrintTopN       int

	PublishChannel    string
	PublishStream     string
	FallbackWhenEmpty bool

	PaperStream      string
	PaperMinNetQuote float64
	PaperMinRoiPct   float64
	PaperSlippageBPS float64
	PaperCooldown    time.Duration
	AllowNoProfit    bool

	MetricsAddr  string
	SynonymsFile string
	LogLevel     string
}

// LoadConfig reads the environment. STRAT_EXCHANGES / STRAT_SYMBOLS default
// to the streamer's sets so a minimal deployment configures each list once.
func LoadConfig() Config {
	streamExchanges := lowerAll(getEnvList("STREAM_EXCHANGES", "bitvavo,coinbase,kraken"))
	streamSymbols := getEnvList("STREAM_SYMBOLS", "BTC/EUR,ETH/EUR")

	minNet := getEnvFloat("STRAT_MIN_NET_QUOTE", 0)
	minRoi := getEnvFloat("STRAT_MIN_ROI_PCT", 0)

	return Config{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		StaleMS:         int64(getEnvFloat("ORDERBOOK_STALE_MS", 5000)),
		Depth:           getEnvInt("ORDERBOOK_DEPTH", 50),
		RestPoll:        time.Duration(getEnvFloat("REST_POLL_SEC", 2.0) * float64(time.Second)),
		StreamExchanges: streamExchanges,
		StreamSymbols:   streamSymbols,

		StratExchanges:  lowerAll(getEnvListDefault("STRAT_EXCHANGES", streamExchanges)),
		StratSymbols:    getEnvListDefault("STRAT_SYMBOLS", streamSymbols),
		BudgetQuote:     getEnvFloat("STRAT_BUDGET_QUOTE", 250),
		WithdrawFeeBase: getEnvFloat("STRAT_WITHDRAW_FEE_BASE", 0),
		MinNetQuote:     minNet,
		MinRoiPct:       minRoi,
		Interval:        time.Duration(getEnvFloat("STRAT_INTERVAL_MS", 1500)) * time.Millisecond,
		TopN:            getEnvInt("STRAT_TOPN", 5),
		PrintTopN:       getEnvInt("PRINT_TOPN", 3),

		PublishChannel:    getEnv("PUBLISH_CHANNEL", "opps"),
		PublishStream:     getEnv("PUBLISH_STREAM", "opps_stream"),
		FallbackWhenEmpty: getEnvBool("PUBLISH_FALLBACK_WHEN_EMPTY", true),

		PaperStream:      getEnv("PAPER_STREAM", "paper_trades"),
		PaperMinNetQuote: getEnvFloat("PAPER_MIN_NET_QUOTE", minNet),
		PaperMinRoiPct:   getEnvFloat("PAPER_MIN_ROI_PCT", minRoi),
		PaperSlippageBPS: getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		PaperCooldown:    time.Duration(getEnvFloat("PAPER_DEDUP_COOLDOWN_MS", 4000)) * time.Millisecond,
		AllowNoProfit:    getEnvBool("ALLOW_NO_PROFIT", true),

		MetricsAddr:  getEnv("METRICS_ADDR", ":9109"),
		SynonymsFile: getEnv("SYMBOL_SYNONYMS_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvInt(key string, def int) int {
	return int(getEnvFloat(key, float64(def)))
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvList(key, def string) []string {
	raw := getEnv(key, def)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.ToLower(s)
	}
	return out
}

func getEnvListDefault(key string, def []string) []string {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def
	}
	return getEnvList(key, "")
}
