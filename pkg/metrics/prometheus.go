package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the control plane's global metrics container.
type Metrics struct {
	// control-plane API HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// allocator business metrics
	AllocationsTotal   *prometheus.CounterVec
	AllocationDuration *prometheus.HistogramVec
	ActiveTunnels      prometheus.Gauge
	ResidualCapacity   *prometheus.GaugeVec

	// reconciler and agent metrics
	ReconcileTickDuration prometheus.Histogram
	ReconcileDrift        prometheus.Gauge
	AgentCallsTotal       *prometheus.CounterVec
	AgentCallDuration     *prometheus.HistogramVec

	// system metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// service info
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the global Metrics container.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of control-plane API requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of control-plane API requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of control-plane API requests being processed",
			},
		),

		AllocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocations_total",
				Help:      "Total number of allocate/deallocate attempts",
			},
			[]string{"operation", "status"},
		),

		AllocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "allocation_duration_seconds",
				Help:      "Duration of allocate/deallocate calls, including agent RPCs",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation"},
		),

		ActiveTunnels: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_tunnels",
				Help:      "Current number of tunnels in the ledger",
			},
		),

		ResidualCapacity: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "link_residual_capacity_mbps",
				Help:      "Residual capacity of a link, in Mbps",
			},
			[]string{"link"},
		),

		ReconcileTickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_tick_duration_seconds",
				Help:      "Duration of one reconciler tick",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
			},
		),

		ReconcileDrift: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reconcile_drift",
				Help:      "Symmetric difference between desired and installed tunnel sets after the last tick",
			},
		),

		AgentCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "agent_calls_total",
				Help:      "Total number of data-plane agent RPCs",
			},
			[]string{"op", "status"},
		),

		AgentCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "agent_call_duration_seconds",
				Help:      "Duration of data-plane agent RPCs",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"op"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global Metrics, initializing them on first use.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("slicectl", "")
	}
	return defaultMetrics
}

// RecordHTTPRequest records one control-plane API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAllocation records one allocate/deallocate attempt.
func (m *Metrics) RecordAllocation(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.AllocationsTotal.WithLabelValues(operation, status).Inc()
	m.AllocationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconcileTick records the duration and drift of one reconciler tick.
func (m *Metrics) RecordReconcileTick(duration time.Duration, drift int) {
	m.ReconcileTickDuration.Observe(duration.Seconds())
	m.ReconcileDrift.Set(float64(drift))
}

// RecordAgentCall records one data-plane agent RPC.
func (m *Metrics) RecordAgentCall(op string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.AgentCallsTotal.WithLabelValues(op, status).Inc()
	m.AgentCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetServiceInfo publishes the running version/environment labels.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a dedicated HTTP server for /metrics, used when
// the config's metrics.port differs from the control-plane API's port.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write error isn't critical here
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
