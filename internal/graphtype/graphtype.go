// Package graphtype builds canonical GraphQL type descriptors from native Go types.
//
// A GraphType describes one position of the type graph: a named type together
// with its requiredness and whether the position holds a list. Descriptors are
// produced by a Registry, which resolves async result shapes, asks an
// Introspector for the structure of a type, and caches every descriptor under a
// name derived from (type, required, enumerable).
package graphtype

import (
	"reflect"
	"sort"
)

// Hint is a tri-state boolean. The zero value is HintUnset.
type Hint uint8

const (
	HintUnset Hint = iota
	HintTrue
	HintFalse
)

// HintOf converts b into HintTrue or HintFalse.
func HintOf(b bool) Hint {
	if b {
		return HintTrue
	}
	return HintFalse
}

// Bool reports whether h is HintTrue. Unset counts as false.
func (h Hint) Bool() bool { return h == HintTrue }

// IsSet reports whether h carries a value.
func (h Hint) IsSet() bool { return h != HintUnset }

func (h Hint) String() string {
	switch h {
	case HintTrue:
		return "true"
	case HintFalse:
		return "false"
	default:
		return "unset"
	}
}

// GraphType is the canonical descriptor for a position in the graph schema.
// It is immutable once published by a Registry.
type GraphType struct {
	// Name is derived from (Type, Required, Enumerable) and unique within a registry.
	Name string
	// TypeName is the named GraphQL type this position refers to. For lists it
	// is the element's TypeName.
	TypeName    string
	Description string
	Type        reflect.Type
	Required    Hint
	Enumerable  Hint
	IsEnum      bool
	EnumValues  []string
	Fields      map[string]*Field
	// Elem is the element descriptor of a list position.
	Elem *GraphType
}

// IsRequired reports whether the position is non-null.
func (g *GraphType) IsRequired() bool { return g.Required.Bool() }

// IsEnumerable reports whether the position is a list.
func (g *GraphType) IsEnumerable() bool { return g.Enumerable.Bool() }

// IsLeaf reports whether the descriptor is a scalar or enum.
func (g *GraphType) IsLeaf() bool { return !g.IsEnumerable() && len(g.Fields) == 0 }

// Ordered returns the fields sorted by declaration order.
func (g *GraphType) Ordered() []*Field {
	out := make([]*Field, 0, len(g.Fields))
	for _, f := range g.Fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Field is a named edge from a complex GraphType to another GraphType.
type Field struct {
	Name        string
	Description string
	Deprecation string
	Order       int
	GraphType   *GraphType
	Arguments   map[string]*Argument
	Source      Source
}

// OrderedArguments returns the arguments sorted by declaration order.
func (f *Field) OrderedArguments() []*Argument {
	out := make([]*Argument, 0, len(f.Arguments))
	for _, a := range f.Arguments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Argument is a named input parameter on a Field.
type Argument struct {
	Name        string
	Description string
	Order       int
	GraphType   *GraphType
	// Index locates the argument inside the field's argument struct.
	Index []int
}

// Source describes how a field value is read from its parent value.
type Source struct {
	// Index is the struct field path, used when Method is empty.
	Index []int
	// Method is the name of a method on the parent value.
	Method string
	// Context is set when the method takes a context.Context first.
	Context bool
	// Args is the argument struct type the method takes, if any.
	Args reflect.Type
	// Async marks fields resolved in the batched phase of execution.
	Async bool
}

// Schema is the root composition of the three operation roots.
type Schema struct {
	Query        *GraphType
	Mutation     *GraphType
	Subscription *GraphType
}

// Assemble composes the operation roots into a Schema. The query root is
// always included; callers must pass one with at least one field. Mutation and
// subscription roots without fields are left out.
func Assemble(query, mutation, subscription *GraphType) *Schema {
	s := &Schema{Query: query}
	if mutation != nil && len(mutation.Fields) > 0 {
		s.Mutation = mutation
	}
	if subscription != nil && len(subscription.Fields) > 0 {
		s.Subscription = subscription
	}
	return s
}

// DeriveName returns the registry name of a non-list position.
func DeriveName(typeName string, required Hint) string {
	if required.Bool() {
		return typeName + "!"
	}
	return typeName
}

// DeriveListName returns the registry name of a list position over elem.
func DeriveListName(elemName string, required Hint) string {
	return DeriveName("["+elemName+"]", required)
}
