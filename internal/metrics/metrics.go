// Package metrics exposes Prometheus collectors for the block pipeline and
// serves them, together with a health endpoint, over a small chi router.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles the pipeline collectors. A nil *Metrics is valid and
// records nothing, so callers do not branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	blocksProcessed *prometheus.CounterVec
	matchesTotal    *prometheus.CounterVec
	triggerErrors   *prometheus.CounterVec
	missedBlocks    *prometheus.CounterVec
	lastProcessed   *prometheus.GaugeVec
	tickDuration    *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_blocks_processed_total",
			Help: "Blocks run through the filter engine, per network.",
		}, []string{"network"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_matches_total",
			Help: "Monitor matches produced, per network.",
		}, []string{"network"}),
		triggerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_trigger_errors_total",
			Help: "Failed trigger deliveries, per trigger name.",
		}, []string{"trigger"}),
		missedBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainwatch_missed_blocks_total",
			Help: "Gaps detected in the processed block sequence, per network.",
		}, []string{"network"}),
		lastProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chainwatch_last_processed_block",
			Help: "Highest processed block number, per network.",
		}, []string{"network"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainwatch_tick_duration_seconds",
			Help:    "Duration of one watcher tick, per network.",
			Buckets: prometheus.DefBuckets,
		}, []string{"network"}),
	}
	m.registry.MustRegister(
		m.blocksProcessed, m.matchesTotal, m.triggerErrors,
		m.missedBlocks, m.lastProcessed, m.tickDuration,
	)
	return m
}

// BlockProcessed records one filtered block.
func (m *Metrics) BlockProcessed(network string) {
	if m == nil {
		return
	}
	m.blocksProcessed.WithLabelValues(network).Inc()
}

// MatchesFound records matches produced for a network.
func (m *Metrics) MatchesFound(network string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.matchesTotal.WithLabelValues(network).Add(float64(count))
}

// TriggerError records one failed delivery.
func (m *Metrics) TriggerError(trigger string) {
	if m == nil {
		return
	}
	m.triggerErrors.WithLabelValues(trigger).Inc()
}

// MissedBlock records one detected gap entry.
func (m *Metrics) MissedBlock(network string) {
	if m == nil {
		return
	}
	m.missedBlocks.WithLabelValues(network).Inc()
}

// LastProcessedBlock sets the high-water mark gauge.
func (m *Metrics) LastProcessedBlock(network string, number uint64) {
	if m == nil {
		return
	}
	m.lastProcessed.WithLabelValues(network).Set(float64(number))
}

// ObserveTick records one tick duration.
func (m *Metrics) ObserveTick(network string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(network).Observe(d.Seconds())
}

// Handler returns the scrape endpoint for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics HTTP server until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n")) //nolint:errcheck
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
