// Package metrics exposes the agent's own health as prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"speedtest-mqtt/pkg/models"
)

type Collector struct {
	registry *prometheus.Registry

	measurements    *prometheus.CounterVec
	attemptFailures *prometheus.CounterVec
	cycles          prometheus.Counter
	publishErrors   prometheus.Counter
	downloadBps     prometheus.Gauge
	uploadBps       prometheus.Gauge
	latencyMs       prometheus.Gauge
	lastCycle       prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedtest_measurements_total",
			Help: "Successful measurements",
		}, []string{"direction"}),
		attemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedtest_attempt_failures_total",
			Help: "Failed measurement attempts",
		}, []string{"direction"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedtest_cycles_total",
			Help: "Completed measurement cycles",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedtest_publish_errors_total",
			Help: "Cycles whose results could not be published",
		}),
		downloadBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_download_bps",
			Help: "Last measured download rate in bits per second",
		}),
		uploadBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_upload_bps",
			Help: "Last measured upload rate in bits per second",
		}),
		latencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_latency_ms",
			Help: "Last measured latency in milliseconds, 0 when unavailable",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedtest_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}),
	}

	c.registry.MustRegister(
		c.measurements,
		c.attemptFailures,
		c.cycles,
		c.publishErrors,
		c.downloadBps,
		c.uploadBps,
		c.latencyMs,
		c.lastCycle,
	)
	return c
}

func (c *Collector) MeasurementSucceeded(outcome models.MeasurementOutcome, attempts int) {
	c.measurements.WithLabelValues(outcome.Direction.String()).Inc()
}

func (c *Collector) MeasurementFailed(outcome models.MeasurementOutcome, attempt int, backoff time.Duration) {
	c.attemptFailures.WithLabelValues(outcome.Direction.String()).Inc()
}

func (c *Collector) CycleCompleted(result models.CycleResult) {
	c.cycles.Inc()
	c.downloadBps.Set(result.DownloadBps)
	c.uploadBps.Set(result.UploadBps)
	c.latencyMs.Set(result.LatencyMs)
	c.lastCycle.SetToCurrentTime()
}

func (c *Collector) PublishFailed() {
	c.publishErrors.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Debug("Metrics server shutdown failed", "error", err)
		}
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
