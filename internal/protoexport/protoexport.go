// Package protoexport renders a graph schema as a proto3 file.
//
// Object and input types become messages holding their data fields. Enums
// become proto enums with an <ENUM>_UNSPECIFIED zero value. Every resolver
// field (root fields and method-backed fields) becomes an RPC on one service
// taking the parent message and arguments; subscription root fields stream
// their responses. Field and enum value numbers are derived from names, so
// adding a field never renumbers the others.
package protoexport

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hanpama/typegraph/internal/bridge"
	"github.com/hanpama/typegraph/internal/graphtype"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrUnsupported reports a graph shape protobuf cannot express.
var ErrUnsupported = errors.New("unsupported by protobuf")

// Options configures the generated file.
type Options struct {
	// Package is the proto package name.
	Package string
	// Path is the file path. Defaults to the package name with dots as
	// directories and a .proto suffix.
	Path string
	// Service names the resolver service; "Service" is appended.
	Service string
}

type Option func(*Options)

func WithPackage(name string) Option {
	return func(o *Options) { o.Package = name }
}

func WithPath(p string) Option {
	return func(o *Options) { o.Path = p }
}

func WithService(name string) Option {
	return func(o *Options) { o.Service = name }
}

// scalarKinds maps scalar names to proto kinds. Other scalars travel as
// strings in their serialized form.
var scalarKinds = map[string]protoreflect.Kind{
	"String":  protoreflect.StringKind,
	"Boolean": protoreflect.BoolKind,
	"Int":     protoreflect.Int32Kind,
	"Int64":   protoreflect.Int64Kind,
	"Float":   protoreflect.DoubleKind,
	"Bytes":   protoreflect.BytesKind,
}

var stringType = reflect.TypeOf("")

type root struct {
	name   string
	gt     *graphtype.GraphType
	stream bool
}

type builder struct {
	opts     Options
	scalars  *bridge.ScalarRegistry
	file     *protobuilder.FileBuilder
	service  *protobuilder.ServiceBuilder
	messages map[string]*protobuilder.MessageBuilder
	enums    map[string]*protobuilder.EnumBuilder
	objects  []*graphtype.GraphType
	seen     map[string]bool
}

type resolvedType struct {
	fieldType  *protobuilder.FieldType
	isRepeated bool
	isOptional bool
}

// Build converts s into a proto3 file descriptor. Leaf types are mapped
// through scalars.
func Build(s *graphtype.Schema, scalars *bridge.ScalarRegistry, opts ...Option) (protoreflect.FileDescriptor, error) {
	if s == nil || s.Query == nil {
		return nil, fmt.Errorf("%w: schema has no query root", graphtype.ErrInvalidArgument)
	}
	if scalars == nil {
		scalars = bridge.NewScalarRegistry()
	}
	o := Options{Package: "typegraph", Service: "Graph"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Path == "" {
		o.Path = strings.ReplaceAll(o.Package, ".", "/") + ".proto"
	}

	b := &builder{
		opts:     o,
		scalars:  scalars,
		file:     protobuilder.NewFile(o.Path),
		messages: make(map[string]*protobuilder.MessageBuilder),
		enums:    make(map[string]*protobuilder.EnumBuilder),
		seen:     make(map[string]bool),
	}
	b.file.SetPackageName(protoreflect.FullName(o.Package))
	b.file.SetSyntax(protoreflect.Proto3)

	roots := []root{{name: bridge.QueryTypeName, gt: s.Query}}
	if s.Mutation != nil {
		roots = append(roots, root{name: bridge.MutationTypeName, gt: s.Mutation})
	}
	if s.Subscription != nil {
		roots = append(roots, root{name: bridge.SubscriptionTypeName, gt: s.Subscription, stream: true})
	}

	// Pass 1: declare messages and enums for every reachable named type
	for _, r := range roots {
		b.collectFields(r.gt)
	}

	// Pass 2: data fields of messages
	for _, gt := range b.objects {
		if err := b.addMessageFields(gt); err != nil {
			return nil, err
		}
	}

	// Pass 3: resolver methods
	for _, r := range roots {
		for _, f := range r.gt.Ordered() {
			if err := b.addResolver(r.name, nil, f, r.stream); err != nil {
				return nil, err
			}
		}
	}
	for _, gt := range b.objects {
		for _, f := range gt.Ordered() {
			if f.Source.Method == "" {
				continue
			}
			if err := b.addResolver(gt.TypeName, b.messages[gt.TypeName], f, false); err != nil {
				return nil, err
			}
		}
	}

	fd, err := b.file.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", o.Path, err)
	}
	return fd, nil
}

func (b *builder) collectFields(gt *graphtype.GraphType) {
	for _, f := range gt.Ordered() {
		b.collect(f.GraphType)
		for _, a := range f.OrderedArguments() {
			b.collect(a.GraphType)
		}
	}
}

func (b *builder) collect(gt *graphtype.GraphType) {
	if gt == nil {
		return
	}
	if gt.IsEnumerable() {
		b.collect(gt.Elem)
		return
	}
	if b.seen[gt.TypeName] {
		return
	}
	switch {
	case gt.IsEnum:
		b.seen[gt.TypeName] = true
		b.addEnum(gt)
	case len(gt.Fields) > 0:
		b.seen[gt.TypeName] = true
		mb := protobuilder.NewMessage(nameMessage(gt.TypeName))
		mb.SetComments(comment(gt.Description))
		b.messages[gt.TypeName] = mb
		b.objects = append(b.objects, gt)
		b.file.AddMessage(mb)
		b.collectFields(gt)
	}
}

func (b *builder) addEnum(gt *graphtype.GraphType) {
	eb := protobuilder.NewEnum(protoreflect.Name(gt.TypeName))
	eb.SetComments(comment(gt.Description))

	zero := protobuilder.NewEnumValue(nameEnumValue(gt.TypeName, "UNSPECIFIED"))
	zero.SetNumber(0)
	eb.AddValue(zero)

	evbs := make([]*protobuilder.EnumValueBuilder, 0, len(gt.EnumValues))
	for _, v := range gt.EnumValues {
		if strings.ToUpper(v) == "UNSPECIFIED" {
			continue
		}
		evb := protobuilder.NewEnumValue(nameEnumValue(gt.TypeName, v))
		eb.AddValue(evb)
		evbs = append(evbs, evb)
	}
	// numbering cannot fail for the handful of values an enum carries
	_ = allocateEnumValueNumbers(evbs)

	b.enums[gt.TypeName] = eb
	b.file.AddEnum(eb)
}

func (b *builder) addMessageFields(gt *graphtype.GraphType) error {
	mb := b.messages[gt.TypeName]
	fieldBuilders := make([]*protobuilder.FieldBuilder, 0, len(gt.Fields))
	for _, f := range gt.Ordered() {
		if f.Source.Method != "" {
			continue
		}
		fb, err := b.newField(nameField(f.Name), f.GraphType, fieldComment(f))
		if err != nil {
			return fmt.Errorf("%s.%s: %w", gt.TypeName, f.Name, err)
		}
		mb.AddField(fb)
		fieldBuilders = append(fieldBuilders, fb)
	}
	return allocateFieldNumbers(fieldBuilders)
}

func (b *builder) addResolver(parent string, source *protobuilder.MessageBuilder, f *graphtype.Field, stream bool) error {
	if b.service == nil {
		b.service = protobuilder.NewService(nameService(b.opts.Service))
		b.file.AddService(b.service)
	}

	requestMB := protobuilder.NewMessage(nameResolverRequest(parent, f.Name))
	requestFields := make([]*protobuilder.FieldBuilder, 0, len(f.Arguments)+1)
	if source != nil {
		fb := protobuilder.NewField("source", protobuilder.FieldTypeMessage(source))
		requestMB.AddField(fb)
		requestFields = append(requestFields, fb)
	}
	for _, a := range f.OrderedArguments() {
		name := nameField(a.Name)
		if source != nil && name == "source" {
			return fmt.Errorf("%w: %s.%s argument %q shadows the source field", ErrUnsupported, parent, f.Name, a.Name)
		}
		fb, err := b.newField(name, a.GraphType, a.Description)
		if err != nil {
			return fmt.Errorf("%s.%s(%s): %w", parent, f.Name, a.Name, err)
		}
		requestMB.AddField(fb)
		requestFields = append(requestFields, fb)
	}
	if err := allocateFieldNumbers(requestFields); err != nil {
		return err
	}

	responseMB := protobuilder.NewMessage(nameResolverResponse(parent, f.Name))
	data, err := b.newField("data", f.GraphType, "")
	if err != nil {
		return fmt.Errorf("%s.%s: %w", parent, f.Name, err)
	}
	data.SetNumber(1)
	responseMB.AddField(data)

	method := protobuilder.NewMethod(
		nameResolverMethod(parent, f.Name),
		protobuilder.RpcTypeMessage(requestMB, false),
		protobuilder.RpcTypeMessage(responseMB, stream),
	)
	method.SetComments(comment(fieldComment(f)))
	b.file.AddMessage(requestMB)
	b.file.AddMessage(responseMB)
	b.service.AddMethod(method)
	return nil
}

func (b *builder) newField(name protoreflect.Name, gt *graphtype.GraphType, desc string) (*protobuilder.FieldBuilder, error) {
	rt, err := b.resolveType(gt)
	if err != nil {
		return nil, err
	}
	fb := protobuilder.NewField(name, rt.fieldType)
	fb.SetComments(comment(desc))
	if rt.isOptional {
		fb.SetOptional().SetProto3Optional(true)
	}
	if rt.isRepeated {
		fb.SetRepeated()
	}
	return fb, nil
}

func (b *builder) resolveType(gt *graphtype.GraphType) (resolvedType, error) {
	if gt == nil {
		return resolvedType{}, fmt.Errorf("%w: graph type is nil", graphtype.ErrInvalidArgument)
	}
	if gt.IsEnumerable() {
		if gt.Elem == nil {
			return resolvedType{}, fmt.Errorf("%w: list %s has no element type", graphtype.ErrInvalidGraphType, gt.Name)
		}
		if gt.Elem.IsEnumerable() {
			return resolvedType{}, fmt.Errorf("%w: nested list %s", ErrUnsupported, gt.Name)
		}
		ft, err := b.mapNamedType(gt.Elem)
		if err != nil {
			return resolvedType{}, err
		}
		return resolvedType{fieldType: ft, isRepeated: true}, nil
	}
	ft, err := b.mapNamedType(gt)
	if err != nil {
		return resolvedType{}, err
	}
	return resolvedType{fieldType: ft, isOptional: !gt.IsRequired()}, nil
}

func (b *builder) mapNamedType(gt *graphtype.GraphType) (*protobuilder.FieldType, error) {
	if eb, ok := b.enums[gt.TypeName]; ok && gt.IsEnum {
		return protobuilder.FieldTypeEnum(eb), nil
	}
	if mb, ok := b.messages[gt.TypeName]; ok && len(gt.Fields) > 0 {
		return protobuilder.FieldTypeMessage(mb), nil
	}
	if !gt.IsLeaf() || gt.IsEnum {
		return nil, fmt.Errorf("%w: %s was not collected", graphtype.ErrInvalidGraphType, gt.Name)
	}
	kind, err := b.scalarKind(gt)
	if err != nil {
		return nil, err
	}
	return protobuilder.FieldTypeScalar(kind), nil
}

func (b *builder) scalarKind(gt *graphtype.GraphType) (protoreflect.Kind, error) {
	t := gt.Type
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == stringType {
		return protoreflect.StringKind, nil
	}
	sc, ok := b.scalars.Lookup(t)
	if !ok {
		return 0, &bridge.UnknownGraphTypeError{Name: gt.Name, Type: gt.Type}
	}
	if k, ok := scalarKinds[sc.Name]; ok {
		return k, nil
	}
	return protoreflect.StringKind, nil
}

func fieldComment(f *graphtype.Field) string {
	if f.Deprecation == "" {
		return f.Description
	}
	if f.Description == "" {
		return "Deprecated: " + f.Deprecation
	}
	return f.Description + "\n\nDeprecated: " + f.Deprecation
}
