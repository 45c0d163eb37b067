package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters and exposes them through a dedicated
// Prometheus registry.
type Metrics struct {
	FramesProcessed    atomic.Uint64
	FramesSkipped      atomic.Uint64
	FrameErrors        atomic.Uint64
	DisturbancesRaised atomic.Uint64
	AlertsDropped      atomic.Uint64
	BroadcastFailures  atomic.Uint64

	ActiveConnections atomic.Int64
	ProtectedItems    atomic.Int64
	FrameRate         atomic.Int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name string
		help string
		load func() uint64
	}{
		{"sentry_frames_processed_total", "Total frames processed by the pipeline", m.FramesProcessed.Load},
		{"sentry_frames_skipped_total", "Total frames skipped due to processing errors", m.FramesSkipped.Load},
		{"sentry_frame_errors_total", "Total frame source read errors", m.FrameErrors.Load},
		{"sentry_disturbances_total", "Total disturbances raised by the matcher", m.DisturbancesRaised.Load},
		{"sentry_alerts_dropped_total", "Total alerts dropped because the alert stream was full", m.AlertsDropped.Load},
		{"sentry_broadcast_failures_total", "Total client sends that failed and evicted the client", m.BroadcastFailures.Load},
	}
	for _, c := range counters {
		load := c.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(load()) },
		))
	}

	gauges := []struct {
		name string
		help string
		load func() int64
	}{
		{"sentry_active_connections", "Currently connected stream clients", m.ActiveConnections.Load},
		{"sentry_protected_items", "Items in the protection catalog", m.ProtectedItems.Load},
		{"sentry_frame_rate", "Configured target frame rate", m.FrameRate.Load},
	}
	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
