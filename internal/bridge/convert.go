// Package bridge lowers graphtype descriptors into the executable schema
// model and records how every lowered field reads its value.
package bridge

import (
	"fmt"
	"reflect"

	"github.com/hanpama/typegraph/internal/graphtype"
	schema "github.com/hanpama/typegraph/internal/schema"
)

// Root object names of a converted schema.
const (
	QueryTypeName        = "Query"
	MutationTypeName     = "Mutation"
	SubscriptionTypeName = "Subscription"
)

// FieldKey identifies a field of an object type in the target schema.
type FieldKey struct {
	Type  string
	Field string
}

// Executable is a lowered schema together with its field bindings.
type Executable struct {
	Schema   *schema.Schema
	Scalars  *ScalarRegistry
	bindings map[FieldKey]*graphtype.Field
	enums    map[string]*graphtype.GraphType
	objects  map[string]reflect.Type
}

// Binding returns the descriptor of field on objectType.
func (e *Executable) Binding(objectType, field string) (*graphtype.Field, bool) {
	f, ok := e.bindings[FieldKey{objectType, field}]
	return f, ok
}

// Enum returns the descriptor behind the enum type called name.
func (e *Executable) Enum(name string) (*graphtype.GraphType, bool) {
	g, ok := e.enums[name]
	return g, ok
}

// ObjectType returns the native struct type behind the object type called
// name.
func (e *Executable) ObjectType(name string) (reflect.Type, bool) {
	t, ok := e.objects[name]
	return t, ok
}

// Converter lowers GraphTypes into a single target schema. Named types are
// added to the target the first time they are lowered and reused afterwards.
// A Converter is not safe for concurrent use.
type Converter struct {
	scalars  *ScalarRegistry
	target   *schema.Schema
	bindings map[FieldKey]*graphtype.Field
	enums    map[string]*graphtype.GraphType
	objects  map[string]reflect.Type

	// names and keys added by the Lower call in progress
	added []string
	bound []FieldKey
}

// NewConverter returns a converter with a fresh target schema holding the
// built-in scalars and directives.
func NewConverter(scalars *ScalarRegistry) *Converter {
	if scalars == nil {
		scalars = NewScalarRegistry()
	}
	return &Converter{
		scalars:  scalars,
		target:   schema.NewSchema("").AddBuiltins(),
		bindings: make(map[FieldKey]*graphtype.Field),
		enums:    make(map[string]*graphtype.GraphType),
		objects:  make(map[string]reflect.Type),
	}
}

// Schema returns the target schema.
func (c *Converter) Schema() *schema.Schema { return c.target }

// Convert lowers an assembled schema. On error nothing is returned.
func Convert(s *graphtype.Schema, scalars *ScalarRegistry) (*Executable, error) {
	if s == nil || s.Query == nil {
		return nil, fmt.Errorf("%w: schema has no query root", graphtype.ErrInvalidArgument)
	}
	c := NewConverter(scalars)
	if err := c.lowerRoot(s.Query, QueryTypeName); err != nil {
		return nil, err
	}
	c.target.SetQueryType(QueryTypeName)
	if s.Mutation != nil {
		if err := c.lowerRoot(s.Mutation, MutationTypeName); err != nil {
			return nil, err
		}
		c.target.SetMutationType(MutationTypeName)
	}
	if s.Subscription != nil {
		if err := c.lowerRoot(s.Subscription, SubscriptionTypeName); err != nil {
			return nil, err
		}
		c.target.SetSubscriptionType(SubscriptionTypeName)
	}
	return &Executable{
		Schema:   c.target,
		Scalars:  c.scalars,
		bindings: c.bindings,
		enums:    c.enums,
		objects:  c.objects,
	}, nil
}

func (c *Converter) lowerRoot(gt *graphtype.GraphType, name string) error {
	err := c.atomically(func() error {
		_, err := c.lowerObject(gt, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("lower %s root: %w", name, err)
	}
	return nil
}

// Lower returns the type reference for gt in output position, adding the
// named types it needs to the target schema. When lowering fails the target
// is left as it was.
func (c *Converter) Lower(gt *graphtype.GraphType) (*schema.TypeRef, error) {
	var ref *schema.TypeRef
	err := c.atomically(func() error {
		var err error
		ref, err = c.lower(gt, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// atomically runs fn and removes every type and binding it added when it
// fails.
func (c *Converter) atomically(fn func() error) error {
	c.added, c.bound = c.added[:0], c.bound[:0]
	err := fn()
	if err != nil {
		for _, name := range c.added {
			delete(c.target.Types, name)
			delete(c.objects, name)
			delete(c.enums, name)
		}
		for _, k := range c.bound {
			delete(c.bindings, k)
		}
	}
	c.added, c.bound = c.added[:0], c.bound[:0]
	return err
}

func (c *Converter) addType(t *schema.Type) {
	c.target.AddType(t)
	c.added = append(c.added, t.Name)
}

func (c *Converter) bind(key FieldKey, f *graphtype.Field) {
	c.bindings[key] = f
	c.bound = append(c.bound, key)
}

func (c *Converter) lower(gt *graphtype.GraphType, input bool) (*schema.TypeRef, error) {
	if gt == nil {
		return nil, fmt.Errorf("%w: graph type is nil", graphtype.ErrInvalidArgument)
	}
	var ref *schema.TypeRef
	switch {
	case gt.IsEnumerable():
		elem, err := c.lower(gt.Elem, input)
		if err != nil {
			return nil, err
		}
		ref = schema.ListType(elem)
	case len(gt.Fields) == 0:
		name, err := c.lowerLeaf(gt)
		if err != nil {
			return nil, err
		}
		ref = schema.NamedType(name)
	case input:
		name, err := c.lowerInputObject(gt)
		if err != nil {
			return nil, err
		}
		ref = schema.NamedType(name)
	default:
		name, err := c.lowerObject(gt, gt.TypeName)
		if err != nil {
			return nil, err
		}
		ref = schema.NamedType(name)
	}
	if gt.IsRequired() {
		ref = schema.NonNullType(ref)
	}
	return ref, nil
}

func (c *Converter) lowerLeaf(gt *graphtype.GraphType) (string, error) {
	if gt.IsEnum {
		return c.lowerEnum(gt)
	}
	t := gt.Type
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == reflect.TypeOf("") {
		return "String", nil
	}
	sc, ok := c.scalars.Lookup(t)
	if !ok {
		return "", &UnknownGraphTypeError{Name: gt.Name, Type: gt.Type}
	}
	if existing, ok := c.target.Types[sc.Name]; ok {
		if existing.Kind != schema.TypeKindScalar {
			return "", fmt.Errorf("%w: scalar %s collides with %s type", graphtype.ErrInvalidGraphType, sc.Name, existing.Kind)
		}
		return sc.Name, nil
	}
	c.addType(sc.Definition())
	return sc.Name, nil
}

func (c *Converter) lowerEnum(gt *graphtype.GraphType) (string, error) {
	name := gt.TypeName
	if existing, ok := c.target.Types[name]; ok {
		if existing.Kind != schema.TypeKindEnum {
			return "", fmt.Errorf("%w: enum %s collides with %s type", graphtype.ErrInvalidGraphType, name, existing.Kind)
		}
		return name, nil
	}
	if len(gt.EnumValues) == 0 {
		return "", fmt.Errorf("%w: enum %s has no values", graphtype.ErrInvalidGraphType, name)
	}
	t := schema.NewType(name, schema.TypeKindEnum, gt.Description)
	for _, v := range gt.EnumValues {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	c.addType(t)
	c.enums[name] = gt
	return name, nil
}

func (c *Converter) lowerObject(gt *graphtype.GraphType, name string) (string, error) {
	if existing, ok := c.target.Types[name]; ok {
		if existing.Kind != schema.TypeKindObject {
			return "", fmt.Errorf("%w: object %s collides with %s type", graphtype.ErrInvalidGraphType, name, existing.Kind)
		}
		return name, nil
	}
	t := schema.NewType(name, schema.TypeKindObject, gt.Description)
	nt := gt.Type
	for nt.Kind() == reflect.Ptr {
		nt = nt.Elem()
	}
	c.objects[name] = nt
	// registered before the fields so that cycles end here
	c.addType(t)

	for _, f := range gt.Ordered() {
		ref, err := c.lower(f.GraphType, false)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		field := schema.NewField(f.Name, f.Description, ref).SetAsync(f.Source.Async)
		if f.Deprecation != "" {
			field.Deprecate(f.Deprecation)
		}
		for _, a := range f.OrderedArguments() {
			aref, err := c.lower(a.GraphType, true)
			if err != nil {
				return "", fmt.Errorf("%s.%s(%s): %w", name, f.Name, a.Name, err)
			}
			field.AddArgument(schema.NewInputValue(a.Name, a.Description, aref))
		}
		t.AddField(field)
		c.bind(FieldKey{name, f.Name}, f)
	}
	return name, nil
}

func (c *Converter) lowerInputObject(gt *graphtype.GraphType) (string, error) {
	name := gt.TypeName + "Input"
	if existing, ok := c.target.Types[name]; ok {
		if existing.Kind != schema.TypeKindInputObject {
			return "", fmt.Errorf("%w: input %s collides with %s type", graphtype.ErrInvalidGraphType, name, existing.Kind)
		}
		return name, nil
	}
	t := schema.NewType(name, schema.TypeKindInputObject, gt.Description)
	c.addType(t)

	for _, f := range gt.Ordered() {
		if f.Source.Method != "" {
			continue
		}
		ref, err := c.lower(f.GraphType, true)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		t.AddInputField(schema.NewInputValue(f.Name, f.Description, ref))
	}
	if len(t.InputFields) == 0 {
		return "", fmt.Errorf("%w: input %s has no fields", graphtype.ErrInvalidGraphType, name)
	}
	return name, nil
}
