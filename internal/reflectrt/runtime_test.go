package reflectrt

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hanpama/typegraph/internal/bridge"
	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	"github.com/hanpama/typegraph/internal/executor"
	"github.com/hanpama/typegraph/internal/graphtype"
	language "github.com/hanpama/typegraph/internal/language"
	"github.com/stretchr/testify/require"
)

type Genre string

func (Genre) EnumValues() []string { return []string{"FICTION", "SCIENCE"} }

type Level int

func (Level) EnumValues() []string { return []string{"LOW", "HIGH"} }

type Writer struct {
	Name string
}

type Book struct {
	ID        uuid.UUID
	Title     string
	Genre     Genre
	Pages     *int32
	Published time.Time
	Author    func() (*Writer, error)
}

type BooksArgs struct {
	First int32
	Genre *Genre
}

type BookArgs struct {
	ID uuid.UUID
}

type LevelArgs struct {
	Level Level
}

type Draft struct {
	Title string
	Tags  []string
	When  *time.Time
}

type EchoArgs struct {
	Draft Draft
}

type constFuture struct{ v int32 }

func (f constFuture) Await(ctx context.Context) (int32, error) { return f.v, nil }

type Query struct {
	books  []Book
	active *atomic.Int32
	peak   *atomic.Int32
}

func (q *Query) Books(args BooksArgs) ([]Book, error) {
	var out []Book
	for _, b := range q.books {
		if args.Genre != nil && b.Genre != *args.Genre {
			continue
		}
		if int32(len(out)) == args.First {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

func (q *Query) Book(ctx context.Context, args BookArgs) (*Book, error) {
	for i := range q.books {
		if q.books[i].ID == args.ID {
			return &q.books[i], nil
		}
	}
	return nil, nil
}

func (q *Query) Fail() (*string, error) { return nil, errors.New("nope") }

func (q *Query) Boom() *string { panic("kaboom") }

func (q *Query) Level(args LevelArgs) Level { return args.Level }

func (q *Query) Echo(args EchoArgs) string {
	when := "-"
	if args.Draft.When != nil {
		when = args.Draft.When.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s %v %s", args.Draft.Title, args.Draft.Tags, when)
}

func (q *Query) Later() <-chan string {
	ch := make(chan string, 1)
	ch <- "soon"
	return ch
}

func (q *Query) Eventually() graphtype.Future[int32] { return constFuture{42} }

func (q *Query) Slow(ctx context.Context) (int32, error) {
	n := q.active.Add(1)
	defer q.active.Add(-1)
	for {
		p := q.peak.Load()
		if n <= p || q.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return n, nil
}

type CounterArgs struct {
	To int32
}

type Subscription struct{}

func (Subscription) Counter(ctx context.Context, args CounterArgs) (<-chan int32, error) {
	ch := make(chan int32)
	go func() {
		defer close(ch)
		for i := int32(1); i <= args.To; i++ {
			select {
			case ch <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

var (
	duneID   = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	originID = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
)

func newQuery() *Query {
	pages := int32(250)
	return &Query{
		books: []Book{
			{
				ID:        duneID,
				Title:     "Dune",
				Genre:     "FICTION",
				Published: time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC),
				Author:    func() (*Writer, error) { return &Writer{Name: "Frank Herbert"}, nil },
			},
			{
				ID:        originID,
				Title:     "Origin of Species",
				Genre:     "SCIENCE",
				Pages:     &pages,
				Published: time.Date(1859, 11, 24, 0, 0, 0, 0, time.UTC),
				Author:    func() (*Writer, error) { return nil, errors.New("unknown author") },
			},
		},
		active: new(atomic.Int32),
		peak:   new(atomic.Int32),
	}
}

func newExecutable(t *testing.T) *bridge.Executable {
	t.Helper()
	reg := graphtype.NewRegistry(graphtype.NewReflectIntrospector())
	s, err := reg.BuildSchema(reflect.TypeOf(Query{}), nil, reflect.TypeOf(Subscription{}))
	require.NoError(t, err)
	exe, err := bridge.Convert(s, nil)
	require.NoError(t, err)
	return exe
}

func execute(t *testing.T, rt *Runtime, exe *bridge.Executable, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return executor.NewExecutor(rt, exe.Schema).ExecuteRequest(context.Background(), doc, "", vars, nil)
}

func TestResolveFieldsAndMethods(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))

	res := execute(t, rt, exe, `{ books(first: 1) { id title genre pages published author { name } } }`, nil)
	require.Empty(t, res.Errors)
	want := map[string]any{
		"books": []any{
			map[string]any{
				"id":        duneID.String(),
				"title":     "Dune",
				"genre":     "FICTION",
				"pages":     nil,
				"published": "1965-08-01T00:00:00Z",
				"author":    map[string]any{"name": "Frank Herbert"},
			},
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestArgumentDecoding(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))

	tests := []struct {
		name  string
		query string
		vars  map[string]any
		want  map[string]any
	}{
		{
			name:  "enum filter",
			query: `{ books(first: 10, genre: SCIENCE) { title pages } }`,
			want:  map[string]any{"books": []any{map[string]any{"title": "Origin of Species", "pages": int32(250)}}},
		},
		{
			name:  "uuid variable",
			query: `query($id: UUID!) { book(id: $id) { title } }`,
			vars:  map[string]any{"id": originID.String()},
			want:  map[string]any{"book": map[string]any{"title": "Origin of Species"}},
		},
		{
			name:  "integer enum",
			query: `{ level(level: HIGH) }`,
			want:  map[string]any{"level": "HIGH"},
		},
		{
			name:  "input object",
			query: `{ echo(draft: {title: "x", tags: ["a", "b"], when: "2024-01-02T03:04:05Z"}) }`,
			want:  map[string]any{"echo": "x [a b] 2024-01-02T03:04:05Z"},
		},
		{
			name:  "input object from variables",
			query: `query($d: DraftInput!) { echo(draft: $d) }`,
			vars:  map[string]any{"d": map[string]any{"title": "y", "tags": []any{"c"}}},
			want:  map[string]any{"echo": "y [c] -"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, rt, exe, tt.query, tt.vars)
			require.Empty(t, res.Errors)
			if diff := cmp.Diff(tt.want, res.Data); diff != "" {
				t.Fatalf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAsyncResultShapes(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))

	res := execute(t, rt, exe, `{ later eventually }`, nil)
	require.Empty(t, res.Errors)
	want := map[string]any{"later": "soon", "eventually": int32(42)}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverErrorsAndPanics(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))

	res := execute(t, rt, exe, `{ fail boom books(first: 2) { author { name } } }`, nil)
	require.Len(t, res.Errors, 3)
	var messages []string
	for _, e := range res.Errors {
		messages = append(messages, e.Message)
	}
	require.Contains(t, messages, "nope")
	require.Contains(t, messages, "Query.boom: resolver panic: kaboom")
	require.Contains(t, messages, "unknown author")

	want := map[string]any{
		"fail": nil,
		"boom": nil,
		"books": []any{
			map[string]any{"author": map[string]any{"name": "Frank Herbert"}},
			map[string]any{"author": nil},
		},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroRootWithoutValue(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe)

	res := execute(t, rt, exe, `{ books(first: 5) { title } }`, nil)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"books": nil}, res.Data)
}

func TestBatchConcurrencyLimit(t *testing.T) {
	exe := newExecutable(t)
	q := newQuery()
	tasks := make([]executor.AsyncResolveTask, 6)
	for i := range tasks {
		tasks[i] = executor.AsyncResolveTask{ObjectType: "Query", Field: "slow"}
	}

	results := New(exe, WithRoot("Query", q), WithConcurrency(1)).BatchResolveAsync(context.Background(), tasks)
	require.Len(t, results, len(tasks))
	for _, r := range results {
		require.NoError(t, r.Error)
		require.Equal(t, int32(1), r.Value)
	}
	require.Equal(t, int32(1), q.peak.Load())

	q.peak.Store(0)
	New(exe, WithRoot("Query", q)).BatchResolveAsync(context.Background(), tasks)
	require.Greater(t, q.peak.Load(), int32(1))
}

func TestBatchPublishesEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var batches atomic.Int32
	var finished atomic.Int32
	eventbus.Subscribe(func(ctx context.Context, e events.ResolveBatch) {
		batches.Add(int32(e.Size))
	})
	eventbus.Subscribe(func(ctx context.Context, e events.ResolverFinish) {
		if e.ObjectType == "Query" && e.Field == "later" && e.Err == nil {
			finished.Add(1)
		}
	})

	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))
	tasks := []executor.AsyncResolveTask{
		{ObjectType: "Query", Field: "later"},
		{ObjectType: "Query", Field: "eventually"},
	}
	rt.BatchResolveAsync(context.Background(), tasks)
	require.Equal(t, int32(2), batches.Load())
	require.Equal(t, int32(1), finished.Load())
}

func TestMissingBindingPanics(t *testing.T) {
	rt := New(newExecutable(t))
	require.Panics(t, func() {
		_, _ = rt.ResolveSync(context.Background(), "Query", "missing", nil, nil)
	})
}

func TestSubscriptionStreamsChannel(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe)
	doc, err := language.ParseQuery(`subscription { counter(to: 3) }`)
	require.NoError(t, err)

	stream, err := executor.NewExecutor(rt, exe.Schema).Subscribe(context.Background(), doc, "", nil, nil)
	require.NoError(t, err)
	var got []any
	for res := range stream {
		require.Empty(t, res.Errors)
		got = append(got, res.Data)
	}
	want := []any{
		map[string]any{"counter": int32(1)},
		map[string]any{"counter": int32(2)},
		map[string]any{"counter": int32(3)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeFieldSingleValue(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe, WithRoot("Query", newQuery()))

	stream, err := rt.SubscribeField(context.Background(), "Query", "eventually", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), <-stream)
	_, ok := <-stream
	require.False(t, ok)
}

func TestSubscribeFieldStopsOnCancel(t *testing.T) {
	exe := newExecutable(t)
	rt := New(exe)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := rt.SubscribeField(ctx, "Subscription", "counter", nil, map[string]any{"to": 100})
	require.NoError(t, err)
	require.Equal(t, int32(1), <-stream)
	cancel()
	for range stream {
	}
}

type kind string

func TestSerializeLeafValue(t *testing.T) {
	rt := New(newExecutable(t))
	ctx := context.Background()
	title := "Dune"
	id := uuid.New()

	tests := []struct {
		name     string
		typeName string
		value    any
		want     any
	}{
		{"nil pointer", "String", (*string)(nil), nil},
		{"string pointer", "String", &title, "Dune"},
		{"uuid", "UUID", id, id.String()},
		{"enum", "Genre", Genre("SCIENCE"), "SCIENCE"},
		{"id from int", "ID", 5, "5"},
		{"introspection enum", "__TypeKind", kind("OBJECT"), "OBJECT"},
		{"boolean", "Boolean", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.SerializeLeafValue(ctx, tt.typeName, tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := rt.SerializeLeafValue(ctx, "Genre", Genre("POETRY"))
	require.Error(t, err)
}
