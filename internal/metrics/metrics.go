// Package metrics exposes Prometheus collectors for the analytics collector
// process (SPEC_FULL.md §6 ambient process surface), grounded in the
// corpus's pkg/monitoring/metrics.go MetricsCollector shape.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the collector-specific Prometheus metrics alongside the
// standard HTTP request metrics every service in the corpus carries.
type Collector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	serviceInfo         *prometheus.GaugeVec

	// Collector-domain metrics (spec.md §4.5, §4.6, §7).
	SessionsActive     *prometheus.GaugeVec // labels: platform
	PollCycles         *prometheus.CounterVec // labels: platform, outcome
	EventsProcessed    *prometheus.CounterVec // labels: event_type
	WarehouseWrites    *prometheus.CounterVec // labels: table, outcome
	WarehouseReconnects prometheus.Counter
	ChatEventsDropped  *prometheus.CounterVec // labels: platform
	SelectorSize       *prometheus.GaugeVec   // labels: platform
}

// New creates and registers a Collector for the given service/version.
func New(serviceName, version string) *Collector {
	sanitized := strings.ReplaceAll(serviceName, "-", "_")

	c := &Collector{serviceName: sanitized}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: sanitized + "_http_requests_total",
			Help: "Total number of HTTP requests to the operational surface",
		},
		[]string{"method", "endpoint", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    sanitized + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	c.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: sanitized + "_service_info",
			Help: "Service version information",
		},
		[]string{"version"},
	)

	c.SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: sanitized + "_sessions_active", Help: "Currently connected chat sessions"},
		[]string{"platform"},
	)
	c.PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: sanitized + "_poll_cycles_total", Help: "API poll cycles run"},
		[]string{"platform", "outcome"},
	)
	c.EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: sanitized + "_events_processed_total", Help: "Decoded events processed by type"},
		[]string{"event_type"},
	)
	c.WarehouseWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: sanitized + "_warehouse_writes_total", Help: "Warehouse write outcomes"},
		[]string{"table", "outcome"},
	)
	c.WarehouseReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: sanitized + "_warehouse_reconnects_total", Help: "Warehouse reconnect attempts"},
	)
	c.ChatEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: sanitized + "_chat_events_dropped_total", Help: "Chat events dropped due to full outbound channel"},
		[]string{"platform"},
	)
	c.SelectorSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: sanitized + "_selector_targets", Help: "Broadcasts selected for a session this poll"},
		[]string{"platform"},
	)

	prometheus.MustRegister(
		c.httpRequestsTotal, c.httpRequestDuration, c.serviceInfo,
		c.SessionsActive, c.PollCycles, c.EventsProcessed,
		c.WarehouseWrites, c.WarehouseReconnects, c.ChatEventsDropped, c.SelectorSize,
	)
	c.serviceInfo.WithLabelValues(version).Set(1)

	return c
}

// Middleware records standard HTTP metrics for the health/metrics router.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		duration := time.Since(start).Seconds()
		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, endpoint, status).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, endpoint).Observe(duration)
	}
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(ctx *gin.Context) { h.ServeHTTP(ctx.Writer, ctx.Request) }
}
