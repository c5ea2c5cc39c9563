package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the messenger's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	busDuration *prometheus.HistogramVec
	busFailures *prometheus.CounterVec
	httpTotal   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		busDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "messenger",
			Name:      "bus_duration_seconds",
			Help:      "Time spent handling commands and queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "key"}),
		busFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "bus_failures_total",
			Help:      "Commands and queries that returned an error.",
		}, []string{"kind", "key"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "messenger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.busDuration, m.busFailures, m.httpTotal, m.httpLatency,
	)
	return m
}

// Observe satisfies the bus instrumentation hook.
func (m *Metrics) Observe(kind, key string, took time.Duration, err error) {
	m.busDuration.WithLabelValues(kind, key).Observe(took.Seconds())
	if err != nil {
		m.busFailures.WithLabelValues(kind, key).Inc()
	}
}

func (m *Metrics) HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		m.httpTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
