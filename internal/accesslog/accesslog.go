// Package accesslog writes one line per HTTP request and per failed GraphQL
// operation, in key=value form.
package accesslog

import (
	"context"
	"log"
	"strings"

	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	reqid "github.com/hanpama/typegraph/internal/reqid"
)

// Attach subscribes l to the global event bus.
func Attach(l *log.Logger) (detach func()) {
	unsubHTTP := eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		l.Printf("http method=%s path=%s status=%d duration=%s rid=%s",
			e.Request.Method, e.Request.URL.Path, e.Status, e.Duration, rid)
	})
	unsubGQL := eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
		if len(e.Errors) == 0 {
			return
		}
		rid, _ := reqid.FromContext(ctx)
		msgs := make([]string, len(e.Errors))
		for i, err := range e.Errors {
			msgs[i] = err.Error()
		}
		l.Printf("graphql operation=%s name=%q errors=%d duration=%s rid=%s error=%q",
			opType(e.OperationType), e.OperationName, len(e.Errors), e.Duration, rid, strings.Join(msgs, "; "))
	})
	return func() {
		unsubHTTP()
		unsubGQL()
	}
}

func opType(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
