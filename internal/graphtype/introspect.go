package graphtype

import "reflect"

// Introspector describes the structure of native types. Implementations must be
// deterministic for a given type and safe for concurrent use.
type Introspector interface {
	// Describe returns the name, enum-ness and fields of t.
	Describe(t reflect.Type) (*TypeInfo, error)
	// Element returns the element type of a collection type together with the
	// element's natural requiredness. A type that is not a collection is its own
	// element with unset requiredness.
	Element(t reflect.Type) (elem reflect.Type, required Hint)
}

// TypeInfo is the structural description of a native type.
type TypeInfo struct {
	Name        string
	Description string
	Enum        bool
	EnumValues  []string
	Fields      []FieldInfo
}

// FieldInfo describes one field of a complex type.
type FieldInfo struct {
	Name        string
	Description string
	Deprecation string
	Type        reflect.Type
	Required    Hint
	Enumerable  Hint
	Arguments   []ArgumentInfo
	Source      Source
}

// ArgumentInfo describes one argument of a field.
type ArgumentInfo struct {
	Name        string
	Description string
	Type        reflect.Type
	Required    Hint
	Enumerable  Hint
	Index       []int
}
