package httpapi

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is Leon's Prometheus registration, ambient observability carried
// regardless of SPEC_FULL's Non-goals (§1 AMBIENT STACK), grounded on
// internal/observability/metrics.go's promauto.NewCounterVec/NewHistogramVec
// idiom, narrowed to the runtime/HTTP surfaces this package actually
// exercises.
type Metrics struct {
	RunsStarted      *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	ToolInvocations  *prometheus.CounterVec
	HTTPRequestTotal *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers every collector against the default registry. The
// registration happens once per process; later calls return the same
// *Metrics, so building several Servers never registers a collector twice.
func NewMetrics() *Metrics {
	defaultMetricsOnce.Do(func() { defaultMetrics = newMetrics() })
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leon_runs_started_total",
				Help: "Total number of agent runs started, by terminal status once known",
			},
			[]string{"status"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leon_run_duration_seconds",
				Help:    "Run wall-clock duration from start to terminal event",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		ToolInvocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leon_tool_invocations_total",
				Help: "Total tool calls executed, by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		HTTPRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leon_http_requests_total",
				Help: "Total HTTP requests served, by method/path/status",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// MetricsHandler exposes the default Prometheus registry for mounting at
// /metrics on the metrics listener, grounded on
// internal/gateway/http_server.go's promhttp.Handler() wiring.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
