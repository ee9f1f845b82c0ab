// Package telemetry exposes engine event counters over a Prometheus
// /metrics endpoint. Exposition is live gauges/counters only; the console
// keeps no time-series history.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector implements engine.Metrics over a dedicated Prometheus registry.
type Collector struct {
	registry      *prometheus.Registry
	probeFailures *prometheus.CounterVec
	delinquency   *prometheus.CounterVec
	failovers     *prometheus.CounterVec
}

// NewCollector builds a Collector with its counters registered on a fresh
// registry, so the console's metrics never collide with a host process.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_probe_failures_total",
			Help: "Probe failures by component and validator identity.",
		}, []string{"component", "validator"}),
		delinquency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_delinquency_alerts_total",
			Help: "Delinquency alerts sent by validator identity.",
		}, []string{"validator"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_failovers_total",
			Help: "Emergency failovers initiated by validator identity.",
		}, []string{"validator"}),
	}
	c.registry.MustRegister(c.probeFailures, c.delinquency, c.failovers)
	return c
}

func (c *Collector) ProbeFailure(component, validator string) {
	c.probeFailures.WithLabelValues(component, validator).Inc()
}

func (c *Collector) DelinquencyAlert(validator string) {
	c.delinquency.WithLabelValues(validator).Inc()
}

func (c *Collector) Failover(validator string) {
	c.failovers.WithLabelValues(validator).Inc()
}

// Handler returns the /metrics handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics server on addr until ctx is cancelled. Serve
// errors are logged, never fatal: losing metrics must not take down the
// monitoring console.
func (c *Collector) Serve(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics exposition enabled")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}
