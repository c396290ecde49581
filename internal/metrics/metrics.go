// Package metrics holds the Prometheus collectors Warbler exposes on
// /metrics.
//
// Each Metrics value owns its own registry, so tests and multiple servers
// in one process never collide on the global default registerer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warbler"

// Business events counted by Record.
const (
	EventSignup      = "signup"
	EventLogin       = "login"
	EventLoginFailed = "login_failed"
	EventLogout      = "logout"
	EventMessage     = "message_created"
	EventMessageDel  = "message_deleted"
	EventFollow      = "follow"
	EventUnfollow    = "unfollow"
	EventLike        = "like"
	EventUnlike      = "unlike"
	EventAccountDel  = "account_deleted"
	EventRateLimited = "rate_limited"
)

// Recorder counts business events. Services depend on this interface so
// tests can pass Discard.
type Recorder interface {
	Record(event string)
}

type discard struct{}

func (discard) Record(string) {}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
			},
			[]string{"method", "path"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Successful business events: signups, follows, messages, likes.",
			},
			[]string{"event"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.events,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Record(event string) {
	m.events.WithLabelValues(event).Inc()
}

// ObserveRequest records one finished request. route is the router pattern
// ("/users/{id}"), not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
