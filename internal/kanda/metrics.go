package kanda

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records gateway traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	unauthorized prometheus.Counter
}

// NewMetrics creates the gateway collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanda_client",
			Name:      "requests_total",
			Help:      "Backend requests by method and status class.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kanda_client",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kanda_client",
			Name:      "unauthorized_events_total",
			Help:      "Sessions invalidated by a 401 outside the login endpoint.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.unauthorized} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeUnauthorized() {
	if m == nil {
		return
	}
	m.unauthorized.Inc()
}

// statusClass buckets statuses into "2xx", "4xx" etc; 0 means no response.
func statusClass(status int) string {
	if status == 0 {
		return "network_error"
	}
	return strconv.Itoa(status/100) + "xx"
}
