// Package protomodel describes generated protobuf Go types for the graph type
// registry.
//
// Messages become object types whose fields follow the message descriptor:
// JSON names, declaration order, repeated fields as lists of non-null
// elements and presence as nullability. Map fields and members of real oneofs
// are left out. Proto enums become GraphQL enums named after their
// descriptor. google.protobuf.Timestamp is a Timestamp scalar. Any other type
// is handed to a fallback introspector.
package protomodel

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/hanpama/typegraph/internal/bridge"
	"github.com/hanpama/typegraph/internal/graphtype"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var (
	messageType   = reflect.TypeOf((*proto.Message)(nil)).Elem()
	enumType      = reflect.TypeOf((*protoreflect.Enum)(nil)).Elem()
	timestampType = reflect.TypeOf((*timestamppb.Timestamp)(nil)).Elem()
)

// Introspector describes protobuf messages and enums and delegates other
// types to a fallback.
type Introspector struct {
	fallback graphtype.Introspector
	cache    sync.Map // reflect.Type -> *graphtype.TypeInfo
}

var _ graphtype.Introspector = (*Introspector)(nil)

// New returns an Introspector delegating non-protobuf types to fallback.
func New(fallback graphtype.Introspector) *Introspector {
	return &Introspector{fallback: fallback}
}

func (in *Introspector) Describe(t reflect.Type) (*graphtype.TypeInfo, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: type is nil", graphtype.ErrInvalidArgument)
	}
	d := indirect(t)
	if v, ok := in.cache.Load(d); ok {
		return v.(*graphtype.TypeInfo), nil
	}
	var info *graphtype.TypeInfo
	switch {
	case d == timestampType:
		info = &graphtype.TypeInfo{Name: timestampScalar.Name, Description: timestampScalar.Description}
	case d.Implements(enumType):
		info = describeEnum(reflect.Zero(d).Interface().(protoreflect.Enum).Descriptor())
	case isMessage(d):
		var err error
		info, err = describeMessage(d)
		if err != nil {
			return nil, err
		}
	default:
		return in.fallback.Describe(t)
	}
	v, _ := in.cache.LoadOrStore(d, info)
	return v.(*graphtype.TypeInfo), nil
}

// Element reports repeated protobuf elements as required. Other collections
// are described by the fallback.
func (in *Introspector) Element(t reflect.Type) (reflect.Type, graphtype.Hint) {
	d := indirect(t)
	if d.Kind() == reflect.Slice && d.Elem().Kind() != reflect.Uint8 {
		if e := indirect(d.Elem()); isMessage(e) || e.Implements(enumType) {
			return d.Elem(), graphtype.HintTrue
		}
	}
	return in.fallback.Element(t)
}

// RegisterScalars adds the scalars of protobuf well-known types to r.
func RegisterScalars(r *bridge.ScalarRegistry) {
	bridge.RegisterScalar[timestamppb.Timestamp](r, timestampScalar)
	bridge.RegisterScalar[*timestamppb.Timestamp](r, timestampScalar)
}

var timestampScalar = bridge.Scalar{
	Name:           "Timestamp",
	Description:    "A google.protobuf.Timestamp in RFC 3339 form.",
	SpecifiedByURL: "https://www.rfc-editor.org/rfc/rfc3339",
	Serialize: func(v any) (any, error) {
		ts, ok := v.(*timestamppb.Timestamp)
		if !ok {
			return nil, fmt.Errorf("cannot serialize %T as Timestamp", v)
		}
		if err := ts.CheckValid(); err != nil {
			return nil, err
		}
		return ts.AsTime().Format(time.RFC3339Nano), nil
	},
	Parse: func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("Timestamp must be a string, got %T", v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return timestamppb.New(t), nil
	},
}

func describeEnum(ed protoreflect.EnumDescriptor) *graphtype.TypeInfo {
	info := &graphtype.TypeInfo{Name: TypeName(ed), Enum: true}
	values := ed.Values()
	for i := 0; i < values.Len(); i++ {
		info.EnumValues = append(info.EnumValues, string(values.Get(i).Name()))
	}
	return info
}

func describeMessage(t reflect.Type) (*graphtype.TypeInfo, error) {
	md := reflect.New(t).Interface().(proto.Message).ProtoReflect().Descriptor()
	info := &graphtype.TypeInfo{Name: TypeName(md)}

	index := make(map[string][]int, t.NumField())
	for _, sf := range reflect.VisibleFields(t) {
		if name := tagName(sf.Tag.Get("protobuf")); name != "" {
			index[name] = sf.Index
		}
	}

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.IsMap() {
			continue
		}
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			continue
		}
		idx, ok := index[string(fd.Name())]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no Go field for %s", graphtype.ErrInvalidGraphType, md.FullName(), fd.Name())
		}
		sf := t.FieldByIndex(idx)
		fi := graphtype.FieldInfo{
			Name:       fd.JSONName(),
			Type:       sf.Type,
			Required:   graphtype.HintOf(!fd.IsList() && !fd.HasPresence()),
			Enumerable: graphtype.HintOf(fd.IsList()),
			Source:     graphtype.Source{Index: idx},
		}
		if opts, ok := fd.Options().(*descriptorpb.FieldOptions); ok && opts.GetDeprecated() {
			fi.Deprecation = "deprecated"
		}
		info.Fields = append(info.Fields, fi)
	}
	return info, nil
}

// TypeName returns the GraphQL name of a message or enum: its name prefixed
// with the names of the messages it is nested in.
func TypeName(d protoreflect.Descriptor) string {
	parts := []string{string(d.Name())}
	for p := d.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(protoreflect.MessageDescriptor); !ok {
			break
		}
		parts = append(parts, string(p.Name()))
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return b.String()
}

func isMessage(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(messageType)
}

// tagName extracts name= from a protobuf struct tag.
func tagName(tag string) string {
	for _, part := range strings.Split(tag, ",") {
		if name, ok := strings.CutPrefix(part, "name="); ok {
			return name
		}
	}
	return ""
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
