// Package metrics exposes gas window gauges for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gaswindow/internal/sampler"
)

const namespace = "gaswindow"

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	currentGwei     prometheus.Gauge
	lowGwei         prometheus.Gauge
	averageGwei     prometheus.Gauge
	savingsPct      prometheus.Gauge
	bestHour        prometheus.Gauge
	windowSamples   prometheus.Gauge
	skippedBlocks   prometheus.Counter
	refreshFailures *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

// NewRecorder registers all collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		currentGwei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_gwei",
			Help:      "Live gas price read at the last recommendation.",
		}),
		lowGwei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "historical_low_gwei",
			Help:      "Lowest base fee in the current window.",
		}),
		averageGwei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_gwei",
			Help:      "Mean base fee in the current window.",
		}),
		savingsPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "estimated_savings_pct",
			Help:      "Estimated savings of waiting for the window low, in percent.",
		}),
		bestHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_hour_utc",
			Help:      "UTC hour of day with the lowest mean base fee.",
		}),
		windowSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_samples",
			Help:      "Number of blocks in the current window.",
		}),
		skippedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_blocks_total",
			Help:      "Blocks that could not be read during refreshes.",
		}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_failures_total",
			Help:      "Failed refresh ticks by stage.",
		}, []string{"stage"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time taken to rebuild the window.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	r.registry.MustRegister(
		r.currentGwei,
		r.lowGwei,
		r.averageGwei,
		r.savingsPct,
		r.bestHour,
		r.windowSamples,
		r.skippedBlocks,
		r.refreshFailures,
		r.refreshDuration,
	)
	return r
}

// ObserveWindow records a completed refresh.
func (r *Recorder) ObserveWindow(w sampler.Window, took time.Duration) {
	r.windowSamples.Set(float64(len(w.Samples)))
	r.skippedBlocks.Add(float64(w.Skipped))
	r.refreshDuration.Observe(took.Seconds())
}

// ObserveRecommendation records the latest recommendation.
func (r *Recorder) ObserveRecommendation(rec sampler.Recommendation) {
	r.currentGwei.Set(rec.CurrentPrice)
	r.lowGwei.Set(rec.HistoricalLow)
	r.averageGwei.Set(rec.AveragePriceGwei)
	r.savingsPct.Set(rec.EstimatedSavingsPct)
	r.bestHour.Set(float64(rec.BestHourUTC))
}

// RefreshFailed counts a failed tick stage, e.g. "initialize" or "recommend".
func (r *Recorder) RefreshFailed(stage string) {
	r.refreshFailures.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
