// Package metrics holds the Prometheus collectors for loads and queries.
//
// All methods are safe on a nil *Metrics, so libraries can record
// unconditionally and callers that don't serve /metrics pass nil.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kemiz/fsgrid/internal/query"
)

const namespace = "fsgrid"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	loadSeconds   *prometheus.HistogramVec
	loadEntities  *prometheus.CounterVec
	storeSize     *prometheus.GaugeVec
	querySeconds  *prometheus.HistogramVec
	queryRows     *prometheus.CounterVec
	queryFailures *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loadSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of bulk loads.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"store"}),
		loadEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_entities_total",
			Help:      "Entities streamed into stores.",
		}, []string{"store"}),
		storeSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_entities",
			Help:      "Entities held by each store after its last load.",
		}, []string{"store"}),
		querySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency by request kind.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"kind"}),
		queryRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_rows_total",
			Help:      "Rows returned to callers by request kind.",
		}, []string{"kind"}),
		queryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_failures_total",
			Help:      "Failed queries by error code.",
		}, []string{"kind", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.loadSeconds, m.loadEntities, m.storeSize,
		m.querySeconds, m.queryRows, m.queryFailures,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLoad records a completed load of count entities.
func (m *Metrics) ObserveLoad(store string, count int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.loadSeconds.WithLabelValues(store).Observe(elapsed.Seconds())
	m.loadEntities.WithLabelValues(store).Add(float64(count))
}

// SetStoreSize records the entity count of a store.
func (m *Metrics) SetStoreSize(store string, n int) {
	if m == nil {
		return
	}
	m.storeSize.WithLabelValues(store).Set(float64(n))
}

// ObserveQuery records one query execution. A non-nil err counts as a
// failure labelled with its query error code, or "INTERNAL".
func (m *Metrics) ObserveQuery(kind query.Kind, rows int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.queryFailures.WithLabelValues(string(kind), ErrorCode(err)).Inc()
		return
	}
	m.querySeconds.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	m.queryRows.WithLabelValues(string(kind)).Add(float64(rows))
}

// ErrorCode returns the query error code carried by err, or "INTERNAL".
func ErrorCode(err error) string {
	var qe *query.Error
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	return "INTERNAL"
}
