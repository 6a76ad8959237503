// Package reflectrt resolves lowered schemas against native Go values.
//
// Each object field carries the binding recorded by the bridge: struct fields
// are read by index and methods are called with an optional context and a
// decoded argument struct. Async result shapes (channels, thunks and futures)
// are awaited before the value is handed back to the executor.
package reflectrt

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hanpama/typegraph/internal/bridge"
	eventbus "github.com/hanpama/typegraph/internal/eventbus"
	events "github.com/hanpama/typegraph/internal/events"
	"github.com/hanpama/typegraph/internal/executor"
	"github.com/hanpama/typegraph/internal/graphtype"
	"golang.org/x/sync/errgroup"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithConcurrency bounds the number of async resolvers running at once within
// one batch. n <= 0 means no bound.
func WithConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithRoot sets the value root fields of objectType are resolved against.
// Without a root value a zero value of the object's native type is used.
func WithRoot(objectType string, value any) Option {
	return func(r *Runtime) { r.roots[objectType] = value }
}

// Runtime implements executor.SubscriptionRuntime over native Go values.
// Invariants and boundaries:
//   - Binding trust: every field of the lowered schema has a binding. A missing
//     binding is a programming error and causes panic.
//   - Resolver panics are recovered and reported as field errors.
//   - Results of BatchResolveAsync keep task order; partial success is supported.
type Runtime struct {
	exe   *bridge.Executable
	roots map[string]any
	limit int
}

var _ executor.SubscriptionRuntime = (*Runtime)(nil)

// New returns a runtime executing exe.
func New(exe *bridge.Executable, opts ...Option) *Runtime {
	r := &Runtime{exe: exe, roots: make(map[string]any), limit: -1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSync reads a struct field or calls a sync method binding.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	f := r.binding(objectType, field)
	return r.resolve(ctx, objectType, f, source, args)
}

// BatchResolveAsync runs every task on its own goroutine, bounded by the
// configured concurrency, and writes results into their task slots.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	start := time.Now()
	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, t := range tasks {
		f := r.binding(t.ObjectType, t.Field)
		g.Go(func() error {
			v, err := r.resolve(ctx, t.ObjectType, f, t.Source, t.Args)
			results[i] = executor.AsyncResolveResult{Value: v, Error: err}
			return nil
		})
	}
	_ = g.Wait()
	eventbus.Publish(ctx, events.ResolveBatch{Size: len(tasks), Duration: time.Since(start)})
	return results
}

// ResolveType fails: lowered schemas hold no interfaces or unions.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return "", fmt.Errorf("ResolveType: abstract type %s has no native mapping (value %T)", abstractType, value)
}

// SerializeLeafValue serializes enums by name and scalars through the scalar
// registry. Pointers are dereferenced first unless a scalar of typeName is
// registered for the pointer type itself; nil serializes as null.
func (r *Runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		if sc, ok := r.exe.Scalars.Lookup(rv.Type()); ok && sc.Name == typeName {
			return sc.Serialize(value)
		}
	}
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}
	if gt, ok := r.exe.Enum(typeName); ok {
		return enumName(rv, gt)
	}
	if sc, ok := r.exe.Scalars.ByName(typeName); ok {
		return sc.Serialize(rv.Interface())
	}
	// built-in and introspection leaves
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	}
	if typeName == "ID" {
		return fmt.Sprint(rv.Interface()), nil
	}
	return rv.Interface(), nil
}

// SubscribeField opens the source stream of a root subscription field. A
// field producing a receive channel streams its values; any other value is
// awaited and emitted once.
func (r *Runtime) SubscribeField(ctx context.Context, objectType string, field string, source any, args map[string]any) (<-chan any, error) {
	f := r.binding(objectType, field)
	v, err := r.read(ctx, objectType, f, source, args)
	if err != nil {
		return nil, err
	}
	for v.IsValid() && v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	out := make(chan any)
	if v.IsValid() && v.Kind() == reflect.Chan && v.Type().ChanDir()&reflect.RecvDir != 0 {
		if v.IsNil() {
			close(out)
			return out, nil
		}
		go pump(ctx, v, out)
		return out, nil
	}
	v, err = await(ctx, v)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(out)
		select {
		case out <- unwrap(v):
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func pump(ctx context.Context, ch reflect.Value, out chan<- any) {
	defer close(out)
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: ch},
	}
	for {
		chosen, ev, ok := reflect.Select(cases)
		if chosen == 0 || !ok {
			return
		}
		select {
		case out <- unwrap(ev):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runtime) binding(objectType, field string) *graphtype.Field {
	f, ok := r.exe.Binding(objectType, field)
	if !ok {
		panic(fmt.Sprintf("reflectrt: missing binding for %s.%s", objectType, field))
	}
	return f
}

// resolve reads f from source and awaits the result.
func (r *Runtime) resolve(ctx context.Context, objectType string, f *graphtype.Field, source any, args map[string]any) (result any, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("%s.%s: resolver panic: %v", objectType, f.Name, p)
		}
		eventbus.Publish(ctx, events.ResolverFinish{
			ObjectType: objectType,
			Field:      f.Name,
			Start:      start,
			Duration:   time.Since(start),
			Err:        err,
		})
	}()
	v, err := r.read(ctx, objectType, f, source, args)
	if err != nil {
		return nil, err
	}
	v, err = await(ctx, v)
	if err != nil {
		return nil, err
	}
	return unwrap(v), nil
}

// read returns the raw value of f on source without awaiting it.
func (r *Runtime) read(ctx context.Context, objectType string, f *graphtype.Field, source any, args map[string]any) (reflect.Value, error) {
	recv, err := r.receiver(objectType, source)
	if err != nil {
		return reflect.Value{}, err
	}
	if f.Source.Method == "" {
		fv, err := recv.Elem().FieldByIndexErr(f.Source.Index)
		if err != nil {
			// nil embedded pointer
			return reflect.Value{}, nil
		}
		return fv, nil
	}
	return r.call(ctx, recv, f, args)
}

// receiver returns a non-nil pointer to the struct value behind source.
func (r *Runtime) receiver(objectType string, source any) (reflect.Value, error) {
	if source == nil {
		root, ok := r.roots[objectType]
		if !ok {
			t, ok := r.exe.ObjectType(objectType)
			if !ok {
				return reflect.Value{}, fmt.Errorf("no native type for object %s", objectType)
			}
			return reflect.New(t), nil
		}
		source = root
	}
	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s source for %s", rv.Type(), objectType)
		}
		return rv, nil
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("source for %s must be a struct, got %T", objectType, source)
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p, nil
}

func (r *Runtime) call(ctx context.Context, recv reflect.Value, f *graphtype.Field, args map[string]any) (reflect.Value, error) {
	m := recv.MethodByName(f.Source.Method)
	if !m.IsValid() {
		return reflect.Value{}, fmt.Errorf("%s has no method %s", recv.Type(), f.Source.Method)
	}
	in := make([]reflect.Value, 0, 2)
	if f.Source.Context {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if f.Source.Args != nil {
		av := reflect.New(f.Source.Args).Elem()
		if err := r.decodeArgs(av, f, args); err != nil {
			return reflect.Value{}, fmt.Errorf("arguments of %s: %w", f.Name, err)
		}
		in = append(in, av)
	}
	out := m.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	return out[0], nil
}

// unwrap converts v into the value handed to the executor. Nil references
// become an untyped nil.
func unwrap(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}
