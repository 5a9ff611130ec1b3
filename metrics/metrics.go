// Package metrics exposes the pipeline's Prometheus collectors and the
// optional /metrics HTTP listener.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// SnapshotsWritten counts order-book snapshots written to the store,
	// per (exchange, symbol).
	SnapshotsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbscan_snapshots_written_total",
		Help: "Order book snapshots written to the shared store.",
	}, []string{"exchange", "symbol"})

	// ScanTicks counts completed strategy scan ticks.
	ScanTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_scan_ticks_total",
		Help: "Completed strategy scan ticks.",
	})

	// PairEvaluations counts ordered-pair depth evaluations, per symbol.
	PairEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbscan_pair_evaluations_total",
		Help: "Ordered exchange-pair evaluations.",
	}, []string{"symbol"})

	// OpportunitiesPublished counts items published to the pub/sub channel.
	OpportunitiesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_opportunities_published_total",
		Help: "Opportunity items handed to the publisher.",
	})

	// PublishErrors counts store failures while publishing. The publisher
	// itself stays silent about them; this is the observable trace.
	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_publish_errors_total",
		Help: "Store errors during opportunity publishing.",
	})

	// PaperFills counts simulated fills appended to the paper trade stream.
	PaperFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_paper_fills_total",
		Help: "Simulated paper fills recorded.",
	})

	// PaperDedupDrops counts items dropped by the dedup cooldown.
	PaperDedupDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_paper_dedup_drops_total",
		Help: "Paper executor items dropped by the dedup cooldown.",
	})
)

// Serve exposes /metrics on addr until the process exits. An empty addr
// disables the listener.
func Serve(addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener up")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("metrics listener failed")
		}
	}()
}
