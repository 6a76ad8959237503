// Package metrics exports Prometheus metrics fed by the event bus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	resolverErrors  *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	graphTypes      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typegraph_http_requests_total",
				Help: "Number of HTTP requests by method and status code.",
			},
			[]string{"method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "typegraph_http_request_duration_seconds",
				Help:    "Time taken to serve HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typegraph_graphql_operations_total",
				Help: "Number of executed GraphQL operations by type.",
			},
			[]string{"operation"},
		),
		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typegraph_graphql_operation_errors_total",
				Help: "Number of GraphQL operations that returned errors, by type.",
			},
			[]string{"operation"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "typegraph_graphql_operation_duration_seconds",
				Help:    "Time taken to execute GraphQL operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		resolverErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typegraph_resolver_errors_total",
				Help: "Number of resolver errors by object type and field.",
			},
			[]string{"object_type", "field"},
		),
		resolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "typegraph_resolver_duration_seconds",
				Help:    "Time taken by field resolvers.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"object_type"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "typegraph_resolve_batch_size",
				Help:    "Number of async fields resolved per batch.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		graphTypes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "typegraph_graph_types_built_total",
				Help: "Number of graph types built by kind.",
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.operations,
		m.operationErrors,
		m.opDuration,
		m.resolverErrors,
		m.resolveDuration,
		m.batchSize,
		m.graphTypes,
	)
	return m
}

// Attach subscribes m to the global event bus.
func (m *Metrics) Attach() (detach func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.httpDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			op := operationLabel(e.OperationType)
			m.operations.WithLabelValues(op).Inc()
			m.opDuration.WithLabelValues(op).Observe(e.Duration.Seconds())
			if len(e.Errors) > 0 {
				m.operationErrors.WithLabelValues(op).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ResolverFinish) {
			m.resolveDuration.WithLabelValues(e.ObjectType).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.resolverErrors.WithLabelValues(e.ObjectType, e.Field).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ResolveBatch) {
			m.batchSize.Observe(float64(e.Size))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphTypeBuilt) {
			m.graphTypes.WithLabelValues(graphTypeKind(e)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func operationLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}

func graphTypeKind(e events.GraphTypeBuilt) string {
	switch {
	case e.List:
		return "list"
	case e.Enum:
		return "enum"
	default:
		return "type"
	}
}
