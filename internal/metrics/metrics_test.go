package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func attach(t *testing.T) *Metrics {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	m := New(prometheus.NewRegistry())
	t.Cleanup(m.Attach())
	return m
}

func TestHTTPAndOperationMetrics(t *testing.T) {
	m := attach(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query"})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "mutation", Errors: []error{errors.New("x")}})
	eventbus.Publish(ctx, events.GraphQLFinish{})

	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("query")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operationErrors.WithLabelValues("mutation")))
}

func TestResolverMetrics(t *testing.T) {
	m := attach(t)
	ctx := context.Background()
	eventbus.Publish(ctx, events.ResolverFinish{ObjectType: "Query", Field: "books"})
	eventbus.Publish(ctx, events.ResolverFinish{ObjectType: "Query", Field: "fail", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.ResolveBatch{Size: 3})
	eventbus.Publish(ctx, events.GraphTypeBuilt{Name: "[Book!]", List: true})
	eventbus.Publish(ctx, events.GraphTypeBuilt{Name: "Genre", Enum: true})
	eventbus.Publish(ctx, events.GraphTypeBuilt{Name: "Book"})

	require.Equal(t, 1.0, testutil.ToFloat64(m.resolverErrors.WithLabelValues("Query", "fail")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.resolverErrors.WithLabelValues("Query", "books")))
	require.Equal(t, 1, testutil.CollectAndCount(m.batchSize))
	for _, kind := range []string{"list", "enum", "type"} {
		require.Equal(t, 1.0, testutil.ToFloat64(m.graphTypes.WithLabelValues(kind)), kind)
	}
}

func TestDetachStopsCounting(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	m := New(prometheus.NewRegistry())
	detach := m.Attach()
	eventbus.Publish(context.Background(), events.GraphQLFinish{OperationType: "query"})
	detach()
	eventbus.Publish(context.Background(), events.GraphQLFinish{OperationType: "query"})
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("query")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := attach(t)
	eventbus.Publish(context.Background(), events.GraphQLFinish{OperationType: "query"})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `typegraph_graphql_operations_total{operation="query"} 1`)
}
