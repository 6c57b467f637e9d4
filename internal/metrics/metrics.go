package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the storefront collectors and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	logins       *prometheus.CounterVec
	checkouts    *prometheus.CounterVec
	purchases    prometheus.Counter
	cartSwept    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamestore",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamestore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gamestore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamestore",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by role and outcome.",
		}, []string{"role", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamestore",
			Subsystem: "cart",
			Name:      "checkouts_total",
			Help:      "Checkouts by outcome (converted, empty, failed).",
		}, []string{"result"}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamestore",
			Subsystem: "cart",
			Name:      "purchases_total",
			Help:      "Purchase rows created by checkouts.",
		}),
		cartSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamestore",
			Subsystem: "cart",
			Name:      "orphaned_entries_removed_total",
			Help:      "Cart rows removed because their game or user is gone.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.logins,
		m.checkouts,
		m.purchases,
		m.cartSwept,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordLogin(role string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(role, result).Inc()
}

func (m *Metrics) RecordCheckout(result string, purchases int) {
	m.checkouts.WithLabelValues(result).Inc()
	if purchases > 0 {
		m.purchases.Add(float64(purchases))
	}
}

func (m *Metrics) RecordCartSweep(removed int64) {
	if removed > 0 {
		m.cartSwept.Add(float64(removed))
	}
}
