package introspection

import (
	"context"
	"errors"
	"testing"

	executor "github.com/hanpama/typegraph/internal/executor"
	language "github.com/hanpama/typegraph/internal/language"
	schema "github.com/hanpama/typegraph/internal/schema"
)

// noopRuntime implements executor.Runtime with no behaviour.
type noopRuntime struct{}

func (noopRuntime) ResolveSync(context.Context, string, string, any, map[string]any) (any, error) {
	return nil, nil
}

func (noopRuntime) BatchResolveAsync(context.Context, []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return nil
}

func (noopRuntime) ResolveType(context.Context, string, any) (string, error) {
	return "", nil
}

func (noopRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sdl := `type Query { hello: String }`
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	return sch
}

func TestIntrospectionEnabled(t *testing.T) {
	sch := buildSchema(t)
	// Wrap with introspection enabled
	wrapper := Wrap(noopRuntime{}, sch)
	exec := executor.NewExecutor(wrapper.Runtime, wrapper.Schema)
	doc, err := language.ParseQuery("{__schema{queryType{name}}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	data := res.Data.(map[string]any)
	schData := data["__schema"].(map[string]any)
	qt := schData["queryType"].(map[string]any)
	if qt["name"].(string) != "Query" {
		t.Fatalf("queryType.name = %v", qt["name"])
	}
}

func TestTypenameField(t *testing.T) {
	sch := buildSchema(t)
	// __typename should work without introspection wrapper
	rt := noopRuntime{}
	exec := executor.NewExecutor(rt, sch)
	doc, err := language.ParseQuery("{__typename}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	data := res.Data.(map[string]any)
	if data["__typename"] != "Query" {
		t.Fatalf("expected __typename to be Query, got %v", data["__typename"])
	}
}

func TestIntrospectionCustomQueryRoot(t *testing.T) {
	sch, err := schema.BuildFromSDL(`schema { query: Root } type Root { hello: String }`)
	if err != nil {
		t.Fatalf("build schema: %v", err)
	}
	wrapper := Wrap(noopRuntime{}, sch)
	exec := executor.NewExecutor(wrapper.Runtime, wrapper.Schema)
	doc, err := language.ParseQuery(`{__type(name: "Root"){name}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res := exec.ExecuteRequest(context.Background(), doc, "", nil, nil)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	typ := res.Data.(map[string]any)["__type"].(map[string]any)
	if typ["name"] != "Root" {
		t.Fatalf("__type.name = %v", typ["name"])
	}
}

func TestSubscribeFieldDelegates(t *testing.T) {
	wrapper := Wrap(noopRuntime{}, buildSchema(t))
	sr := wrapper.Runtime.(executor.SubscriptionRuntime)
	if _, err := sr.SubscribeField(context.Background(), "Subscription", "x", nil, nil); !errors.Is(err, executor.ErrSubscriptionsUnsupported) {
		t.Fatalf("expected ErrSubscriptionsUnsupported, got %v", err)
	}

	mock := executor.NewMockRuntime(nil)
	mock.SetStream("Subscription", "x", func(ctx context.Context, source any, args map[string]any) (<-chan any, error) {
		ch := make(chan any, 1)
		ch <- "event"
		close(ch)
		return ch, nil
	})
	sr = Wrap(mock, buildSchema(t)).Runtime.(executor.SubscriptionRuntime)
	stream, err := sr.SubscribeField(context.Background(), "Subscription", "x", nil, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ev := <-stream; ev != "event" {
		t.Fatalf("event = %v", ev)
	}
}
