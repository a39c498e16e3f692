// Package metrics exposes wager engine counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated  prometheus.Counter
	SessionsJoined   prometheus.Counter
	Commits          prometheus.Counter
	Reveals          *prometheus.CounterVec
	SessionsSettled  *prometheus.CounterVec
	SweepsTotal      *prometheus.CounterVec
	ValueCredited    prometheus.Counter
	ValueWithdrawn   prometheus.Counter
	ActiveStreams    prometheus.Gauge
	OperationLatency *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions opened by a creator",
		}),
		SessionsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_joined_total",
			Help:      "Sessions matched with an opponent",
		}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Accepted choice commitments",
		}),
		Reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveals_total",
			Help:      "Reveal attempts by outcome",
		}, []string{"outcome"}),
		SessionsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_settled_total",
			Help:      "Sessions that reached a terminal phase",
		}, []string{"phase", "result"}),
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Expired-session sweeps by caller type",
		}, []string{"caller"}),
		ValueCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "value_credited_total",
			Help:      "Value credited to withdrawal balances",
		}),
		ValueWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "value_withdrawn_total",
			Help:      "Value transferred out by withdrawals",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_streams_active",
			Help:      "Open SSE and websocket event streams",
		}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsCreated,
		m.SessionsJoined,
		m.Commits,
		m.Reveals,
		m.SessionsSettled,
		m.SweepsTotal,
		m.ValueCredited,
		m.ValueWithdrawn,
		m.ActiveStreams,
		m.OperationLatency,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSince records the time elapsed since start for operation.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
