package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// BuildFromSDL parses and validates an SDL document and returns the
// corresponding Schema. Fields of the operation root types are async; all
// other fields resolve synchronously from their parent value.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	s := NewSchema("").AddBuiltins()
	roots := map[string]bool{}
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
		roots[doc.Query.Name] = true
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
		roots[doc.Mutation.Name] = true
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
		roots[doc.Subscription.Name] = true
	}

	for name, def := range doc.Types {
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		t, err := buildDefinition(def, roots[name])
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, dir := range doc.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, arg := range dir.Arguments {
			v, err := buildArgument(arg)
			if err != nil {
				return nil, err
			}
			d.AddArgument(v)
		}
		s.AddDirective(d)
	}
	return s, nil
}

func buildDefinition(def *ast.Definition, root bool) (*Type, error) {
	var t *Type
	switch def.Kind {
	case ast.Object:
		t = NewType(def.Name, TypeKindObject, def.Description)
	case ast.Interface:
		t = NewType(def.Name, TypeKindInterface, def.Description)
	case ast.Union:
		t = NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t, nil
	case ast.Scalar:
		return NewType(def.Name, TypeKindScalar, def.Description), nil
	case ast.Enum:
		t = NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t, nil
	case ast.InputObject:
		t = NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, f := range def.Fields {
			v := NewInputValue(f.Name, f.Description, buildTypeRef(f.Type))
			if f.DefaultValue != nil {
				dv, err := f.DefaultValue.Value(nil)
				if err != nil {
					return nil, fmt.Errorf("%s.%s default: %w", def.Name, f.Name, err)
				}
				v.SetDefault(dv)
			}
			t.AddInputField(v)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported definition kind %s for %s", def.Kind, def.Name)
	}

	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		field := NewField(f.Name, f.Description, buildTypeRef(f.Type)).SetAsync(root)
		if reason, ok := deprecation(f.Directives); ok {
			field.Deprecate(reason)
		}
		for _, arg := range f.Arguments {
			v, err := buildArgument(arg)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
			}
			field.AddArgument(v)
		}
		t.AddField(field)
	}
	return t, nil
}

func buildArgument(arg *ast.ArgumentDefinition) (*InputValue, error) {
	v := NewInputValue(arg.Name, arg.Description, buildTypeRef(arg.Type))
	if arg.DefaultValue != nil {
		dv, err := arg.DefaultValue.Value(nil)
		if err != nil {
			return nil, fmt.Errorf("argument %s default: %w", arg.Name, err)
		}
		v.SetDefault(dv)
	}
	return v, nil
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}
