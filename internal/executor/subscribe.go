package executor

import (
	"context"
	"errors"
	"fmt"

	language "github.com/hanpama/typegraph/internal/language"
)

// SubscriptionRuntime is a Runtime that can open source event streams for
// root subscription fields.
type SubscriptionRuntime interface {
	Runtime
	// SubscribeField returns the source stream of a root subscription field.
	// The stream is closed when it ends or when ctx is done.
	SubscribeField(ctx context.Context, objectType string, field string, source any, args map[string]any) (<-chan any, error)
}

// ErrSubscriptionsUnsupported is returned by Subscribe when the runtime does
// not implement SubscriptionRuntime.
var ErrSubscriptionsUnsupported = errors.New("runtime does not support subscriptions")

// Subscribe executes a subscription operation. Every event of the source
// stream is executed against the operation's selection set with the event as
// the value of the root field; the results are sent on the returned channel,
// which is closed when the source stream ends or ctx is done.
func (e *Executor) Subscribe(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) (<-chan *ExecutionResult, error) {
	sr, ok := e.runtime.(SubscriptionRuntime)
	if !ok {
		return nil, ErrSubscriptionsUnsupported
	}
	operation := getOperation(document, operationName)
	if operation == nil {
		return nil, errors.New("operation not found")
	}
	if operation.Operation != language.Subscription {
		return nil, fmt.Errorf("operation %q is a %s, not a subscription", operation.Name, operation.Operation)
	}
	rootType := e.schema.GetSubscriptionType()
	if rootType == nil {
		return nil, errors.New("root type not found for subscription operation")
	}
	coerced, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return nil, err
	}

	state := &executionState{
		runtime:         e.runtime,
		schema:          e.schema,
		document:        document,
		variableValues:  coerced,
		context:         ctx,
		asyncTaskInfo:   make(map[NodeID]asyncTask),
		nullifiedPrefix: make(map[string]struct{}),
	}
	grouped := collectFields(state, rootType, operation.SelectionSet).orderedFields()
	if len(grouped) != 1 {
		return nil, fmt.Errorf("subscription must select exactly one root field, got %d", len(grouped))
	}
	field := grouped[0].Fields[0]
	fieldDef := getFieldDefinition(rootType, field.Name)
	if fieldDef == nil {
		return nil, fmt.Errorf("Cannot query field '%s' on type '%s'", field.Name, rootType.Name)
	}
	args := coerceArgumentValues(fieldDef, field.Arguments, coerced, state, Path{grouped[0].ResponseName})
	if len(state.errors) > 0 {
		return nil, state.errors[0]
	}

	stream, err := sr.SubscribeField(ctx, rootType.Name, fieldDef.Name, initialValue, args)
	if err != nil {
		return nil, err
	}

	out := make(chan *ExecutionResult)
	go func() {
		defer close(out)
		for {
			var event any
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-stream:
				if !ok {
					return
				}
				event = ev
			}
			rt := &eventRuntime{Runtime: e.runtime, objectType: rootType.Name, field: fieldDef.Name, event: event}
			res := NewExecutor(rt, e.schema).ExecuteRequest(ctx, document, operationName, variableValues, initialValue)
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// eventRuntime answers the subscribed root field with the current event and
// delegates everything else.
type eventRuntime struct {
	Runtime
	objectType string
	field      string
	event      any
}

func (r *eventRuntime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if objectType == r.objectType && field == r.field {
		return r.event, nil
	}
	return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
}

func (r *eventRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	results := make([]AsyncResolveResult, len(tasks))
	var rest []AsyncResolveTask
	var restIdx []int
	for i, t := range tasks {
		if t.ObjectType == r.objectType && t.Field == r.field {
			results[i] = AsyncResolveResult{Value: r.event}
			continue
		}
		rest = append(rest, t)
		restIdx = append(restIdx, i)
	}
	if len(rest) > 0 {
		for i, res := range r.Runtime.BatchResolveAsync(ctx, rest) {
			results[restIdx[i]] = res
		}
	}
	return results
}
