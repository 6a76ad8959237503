package graphtype

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Registry caches GraphTypes by derived name. The first descriptor published
// under a name wins; later builds of the same name return the stored one.
//
// A Registry is safe for concurrent use. Create one per schema build session.
type Registry struct {
	in     Introspector
	types  sync.Map // string -> *GraphType
	owners sync.Map // TypeName -> reflect.Type
	hook   func(*GraphType)
}

// Option configures a Registry.
type Option func(*Registry)

// WithBuildHook registers fn to be called once for every GraphType the
// registry publishes.
func WithBuildHook(fn func(*GraphType)) Option {
	return func(r *Registry) { r.hook = fn }
}

// NewRegistry returns an empty registry describing types with in.
func NewRegistry(in Introspector, opts ...Option) *Registry {
	r := &Registry{in: in}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrBuild returns the GraphType for (t, required, enumerable), building
// and publishing it and everything it references when absent. Nothing is
// published when the build fails.
func (r *Registry) GetOrBuild(t reflect.Type, required, enumerable Hint) (*GraphType, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: type is nil", ErrInvalidArgument)
	}
	b := newBuilder(r)
	gt, err := b.build(t, required, enumerable)
	if err != nil {
		return nil, err
	}
	return b.commit(gt), nil
}

// TryGet looks up a GraphType by derived name without building anything.
func (r *Registry) TryGet(name string) (*GraphType, bool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, false, fmt.Errorf("%w: name is blank", ErrInvalidArgument)
	}
	v, ok := r.types.Load(name)
	if !ok {
		return nil, false, nil
	}
	return v.(*GraphType), true, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	var names []string
	r.types.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of registered GraphTypes.
func (r *Registry) Len() int {
	n := 0
	r.types.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// BuildSchema builds the operation roots and assembles them. mutation and
// subscription may be nil.
func (r *Registry) BuildSchema(query, mutation, subscription reflect.Type) (*Schema, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: query root type is nil", ErrInvalidArgument)
	}
	roots := make([]*GraphType, 3)
	for i, t := range []reflect.Type{query, mutation, subscription} {
		if t == nil {
			continue
		}
		gt, err := r.GetOrBuild(t, HintTrue, HintFalse)
		if err != nil {
			return nil, fmt.Errorf("build root %s: %w", t, err)
		}
		roots[i] = gt
	}
	if len(roots[0].Fields) == 0 {
		return nil, fmt.Errorf("%w: query root %s has no fields", ErrInvalidGraphType, query)
	}
	return Assemble(roots[0], roots[1], roots[2]), nil
}

// claim binds typeName to t, failing when another native type already owns it.
func (r *Registry) claim(typeName string, t reflect.Type) error {
	t = indirect(t)
	prev, loaded := r.owners.LoadOrStore(typeName, t)
	if loaded && prev.(reflect.Type) != t {
		return fmt.Errorf("%w: %s and %s both map to type %q", ErrInvalidGraphType, prev, t, typeName)
	}
	return nil
}

func (r *Registry) publish(gt *GraphType) *GraphType {
	v, loaded := r.types.LoadOrStore(gt.Name, gt)
	if !loaded && r.hook != nil {
		r.hook(gt)
	}
	return v.(*GraphType)
}
