package reflectrt

import (
	"encoding"
	"fmt"
	"reflect"
	"slices"

	"github.com/hanpama/typegraph/internal/graphtype"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// decodeArgs fills the argument struct av from the coerced argument map.
// Arguments absent from args keep their zero value.
func (r *Runtime) decodeArgs(av reflect.Value, f *graphtype.Field, args map[string]any) error {
	for _, a := range f.OrderedArguments() {
		raw, ok := args[a.Name]
		if !ok {
			continue
		}
		if err := r.decodeValue(raw, fieldByIndexAlloc(av, a.Index), a.GraphType); err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}
	}
	return nil
}

// decodeValue stores raw into dst following the shape of gt.
func (r *Runtime) decodeValue(raw any, dst reflect.Value, gt *graphtype.GraphType) error {
	if raw == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	for dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	switch {
	case gt.IsEnumerable():
		items, ok := raw.([]any)
		if !ok {
			items = []any{raw}
		}
		switch dst.Kind() {
		case reflect.Slice:
			s := reflect.MakeSlice(dst.Type(), len(items), len(items))
			for i, item := range items {
				if err := r.decodeValue(item, s.Index(i), gt.Elem); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
			}
			dst.Set(s)
		case reflect.Array:
			if len(items) > dst.Len() {
				return fmt.Errorf("%d values do not fit in %s", len(items), dst.Type())
			}
			for i, item := range items {
				if err := r.decodeValue(item, dst.Index(i), gt.Elem); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
			}
		default:
			return fmt.Errorf("cannot decode a list into %s", dst.Type())
		}
		return nil

	case len(gt.Fields) > 0:
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("expected an input object for %s, got %T", gt.TypeName, raw)
		}
		if dst.Kind() != reflect.Struct {
			return fmt.Errorf("cannot decode input %s into %s", gt.TypeName, dst.Type())
		}
		for _, f := range gt.Ordered() {
			if f.Source.Method != "" {
				continue
			}
			v, ok := obj[f.Name]
			if !ok {
				continue
			}
			if err := r.decodeValue(v, fieldByIndexAlloc(dst, f.Source.Index), f.GraphType); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
		return nil
	}
	return r.decodeLeaf(raw, dst, gt)
}

func (r *Runtime) decodeLeaf(raw any, dst reflect.Value, gt *graphtype.GraphType) error {
	if gt.IsEnum {
		return decodeEnum(raw, dst, gt)
	}
	if sc, ok := r.exe.Scalars.Lookup(dst.Type()); ok && sc.Parse != nil {
		v, err := sc.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		return assign(dst, reflect.ValueOf(v))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst.Addr().Interface())
}

// decodeEnum stores the enum value called raw into dst. Integer enums that do
// not unmarshal text are numbered by their position in the enum values.
func decodeEnum(raw any, dst reflect.Value, gt *graphtype.GraphType) error {
	name, ok := raw.(string)
	if !ok {
		return fmt.Errorf("enum %s expects a name, got %T", gt.TypeName, raw)
	}
	pos := slices.Index(gt.EnumValues, name)
	if pos < 0 {
		return fmt.Errorf("%q is not a value of enum %s", name, gt.TypeName)
	}
	if pe, ok := dst.Interface().(protoreflect.Enum); ok {
		ev := pe.Descriptor().Values().ByName(protoreflect.Name(name))
		if ev == nil {
			return fmt.Errorf("%q is not a value of %s", name, pe.Descriptor().FullName())
		}
		dst.SetInt(int64(ev.Number()))
		return nil
	}
	if dst.Addr().Type().Implements(textUnmarshalerType) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(name))
	}
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(name)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(int64(pos))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetUint(uint64(pos))
	default:
		return fmt.Errorf("cannot decode enum %s into %s", gt.TypeName, dst.Type())
	}
	return nil
}

// enumName returns the GraphQL name of the enum value v.
func enumName(v reflect.Value, gt *graphtype.GraphType) (any, error) {
	var name string
	switch x := v.Interface().(type) {
	case protoreflect.Enum:
		ev := x.Descriptor().Values().ByNumber(x.Number())
		if ev == nil {
			return nil, fmt.Errorf("%d is not a value of %s", x.Number(), x.Descriptor().FullName())
		}
		name = string(ev.Name())
	case fmt.Stringer:
		name = x.String()
	default:
		switch v.Kind() {
		case reflect.String:
			name = v.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if n := v.Int(); n >= 0 && n < int64(len(gt.EnumValues)) {
				name = gt.EnumValues[n]
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if n := v.Uint(); n < uint64(len(gt.EnumValues)) {
				name = gt.EnumValues[n]
			}
		}
	}
	if !slices.Contains(gt.EnumValues, name) {
		return nil, fmt.Errorf("enum %s cannot represent value %v", gt.TypeName, v.Interface())
	}
	return name, nil
}

func assign(dst, v reflect.Value) error {
	switch {
	case v.Type().AssignableTo(dst.Type()):
		dst.Set(v)
	case v.Type().ConvertibleTo(dst.Type()):
		dst.Set(v.Convert(dst.Type()))
	case v.Kind() == reflect.Ptr && v.Type().Elem() == dst.Type():
		if v.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
		} else {
			dst.Set(v.Elem())
		}
	default:
		return fmt.Errorf("cannot assign %s to %s", v.Type(), dst.Type())
	}
	return nil
}

// fieldByIndexAlloc is FieldByIndex that allocates nil embedded pointers.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
