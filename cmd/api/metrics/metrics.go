// Package metrics exposes the circulation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "circulation"

type Metrics struct {
	borrows  *prometheus.CounterVec
	returns  *prometheus.CounterVec
	retries  *prometheus.CounterVec
	fines    prometheus.Counter
	gatherer prometheus.Gatherer
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "borrows_total",
			Help:      "Borrow attempts by outcome.",
		}, []string{"outcome"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Return attempts by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_retries_total",
			Help:      "Transactions retried after a serialization or lock conflict.",
		}, []string{"operation"}),
		fines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fines_assessed_total",
			Help:      "Sum of the fines fixed on returned books.",
		}),
		gatherer: registry,
	}
	registry.MustRegister(m.borrows, m.returns, m.retries, m.fines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveBorrow(outcome string) {
	m.borrows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReturn(outcome string, fine decimal.Decimal) {
	m.returns.WithLabelValues(outcome).Inc()
	if outcome == "success" && fine.IsPositive() {
		f, _ := fine.Float64()
		m.fines.Add(f)
	}
}

func (m *Metrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
