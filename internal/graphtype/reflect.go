package graphtype

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// Enum is implemented by named Go types exposed as GraphQL enums. The String
// method of an enum value, or its underlying string, must be one of EnumValues.
type Enum interface {
	EnumValues() []string
}

// Namer overrides the GraphQL name of a type.
type Namer interface {
	GraphQLName() string
}

// Describer supplies the GraphQL description of a type.
type Describer interface {
	GraphQLDescription() string
}

var (
	enumType          = reflect.TypeOf((*Enum)(nil)).Elem()
	namerType         = reflect.TypeOf((*Namer)(nil)).Elem()
	describerType     = reflect.TypeOf((*Describer)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// methods that never become resolvers
var ignoredMethods = map[string]struct{}{
	"String":             {},
	"GoString":           {},
	"Error":              {},
	"GraphQLName":        {},
	"GraphQLDescription": {},
	"EnumValues":         {},
	"MarshalText":        {},
	"MarshalJSON":        {},
	"UnmarshalText":      {},
	"UnmarshalJSON":      {},
}

// ReflectIntrospector describes Go types through reflection.
//
// Exported struct fields become fields and exported methods shaped like
// resolvers become async fields:
//
//	func (T) Name([ctx context.Context], [args ArgsStruct]) (R[, error])
//
// Struct tags tune the mapping: `graphql:"name,required|nullable"` or
// `graphql:"-"`, `description:"..."` and `deprecated:"reason"`. Types that
// implement encoding.TextMarshaler, []byte and any explicitly registered leaf
// types are described as leaves.
type ReflectIntrospector struct {
	leaves map[reflect.Type]struct{}
	cache  sync.Map // reflect.Type -> *TypeInfo
}

var _ Introspector = (*ReflectIntrospector)(nil)

// NewReflectIntrospector returns an introspector that also treats leaves as
// scalar types.
func NewReflectIntrospector(leaves ...reflect.Type) *ReflectIntrospector {
	r := &ReflectIntrospector{leaves: make(map[reflect.Type]struct{}, len(leaves))}
	for _, t := range leaves {
		r.leaves[indirect(t)] = struct{}{}
	}
	return r
}

func (r *ReflectIntrospector) Describe(t reflect.Type) (*TypeInfo, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: type is nil", ErrInvalidArgument)
	}
	t = indirect(t)
	if v, ok := r.cache.Load(t); ok {
		return v.(*TypeInfo), nil
	}
	info, err := r.describe(t)
	if err != nil {
		return nil, err
	}
	v, _ := r.cache.LoadOrStore(t, info)
	return v.(*TypeInfo), nil
}

func (r *ReflectIntrospector) Element(t reflect.Type) (reflect.Type, Hint) {
	d := indirect(t)
	if r.isList(d) {
		elem := d.Elem()
		return elem, defaultRequired(elem)
	}
	return t, HintUnset
}

func (r *ReflectIntrospector) describe(t reflect.Type) (*TypeInfo, error) {
	info := &TypeInfo{Name: typeName(t)}
	if d, ok := instance(t, describerType); ok {
		info.Description = d.(Describer).GraphQLDescription()
	}
	if e, ok := instance(t, enumType); ok {
		info.Enum = true
		info.EnumValues = append([]string(nil), e.(Enum).EnumValues()...)
		return info, nil
	}
	if t.Kind() != reflect.Struct || r.isLeaf(t) {
		return info, nil
	}
	if t.Name() == "" && t.NumField() > 0 {
		return nil, fmt.Errorf("%w: anonymous struct %s has no name", ErrInvalidGraphType, t)
	}

	seen := map[string]string{}
	add := func(fi FieldInfo, goName string) error {
		if prev, dup := seen[fi.Name]; dup {
			return fmt.Errorf("%w: %s.%s and %s.%s both map to field %q", ErrInvalidGraphType, t.Name(), prev, t.Name(), goName, fi.Name)
		}
		seen[fi.Name] = goName
		info.Fields = append(info.Fields, fi)
		return nil
	}

	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		tag := parseTag(sf.Tag.Get("graphql"))
		if tag.skip {
			continue
		}
		ft, err := Resolve(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), sf.Name, err)
		}
		fi := FieldInfo{
			Name:        tag.nameOr(lowerCamel(sf.Name)),
			Description: sf.Tag.Get("description"),
			Deprecation: sf.Tag.Get("deprecated"),
			Type:        ft,
			Required:    tag.requiredOr(defaultRequired(ft)),
			Enumerable:  HintOf(r.isList(indirect(ft))),
			Source:      Source{Index: sf.Index, Async: IsAsync(sf.Type)},
		}
		if err := add(fi, sf.Name); err != nil {
			return nil, err
		}
	}

	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if _, skip := ignoredMethods[m.Name]; skip {
			continue
		}
		fi, ok, err := r.describeMethod(t, m)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := add(fi, m.Name); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// describeMethod maps a resolver-shaped method. ok is false for methods that
// do not fit the shape.
func (r *ReflectIntrospector) describeMethod(t reflect.Type, m reflect.Method) (FieldInfo, bool, error) {
	mt := m.Type
	if mt.IsVariadic() {
		return FieldInfo{}, false, nil
	}
	src := Source{Method: m.Name, Async: true}
	in := 1
	if mt.NumIn() > in && mt.In(in) == contextType {
		src.Context = true
		in++
	}
	if mt.NumIn() > in {
		if mt.In(in).Kind() != reflect.Struct {
			return FieldInfo{}, false, nil
		}
		src.Args = mt.In(in)
		in++
	}
	if mt.NumIn() != in {
		return FieldInfo{}, false, nil
	}
	switch mt.NumOut() {
	case 1:
		if mt.Out(0) == errorType {
			return FieldInfo{}, false, nil
		}
	case 2:
		if mt.Out(1) != errorType {
			return FieldInfo{}, false, nil
		}
	default:
		return FieldInfo{}, false, nil
	}

	ft, err := Resolve(mt.Out(0))
	if err != nil {
		return FieldInfo{}, false, fmt.Errorf("method %s.%s: %w", t.Name(), m.Name, err)
	}
	fi := FieldInfo{
		Name:       lowerCamel(m.Name),
		Type:       ft,
		Required:   defaultRequired(ft),
		Enumerable: HintOf(r.isList(indirect(ft))),
		Source:     src,
	}
	if src.Args != nil {
		for _, sf := range reflect.VisibleFields(src.Args) {
			if sf.Anonymous || !sf.IsExported() {
				continue
			}
			tag := parseTag(sf.Tag.Get("graphql"))
			if tag.skip {
				continue
			}
			fi.Arguments = append(fi.Arguments, ArgumentInfo{
				Name:        tag.nameOr(lowerCamel(sf.Name)),
				Description: sf.Tag.Get("description"),
				Type:        sf.Type,
				Required:    tag.requiredOr(defaultRequired(sf.Type)),
				Enumerable:  HintOf(r.isList(indirect(sf.Type))),
				Index:       sf.Index,
			})
		}
	}
	return fi, true, nil
}

func (r *ReflectIntrospector) isLeaf(t reflect.Type) bool {
	if _, ok := r.leaves[t]; ok {
		return true
	}
	if t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType) {
		return true
	}
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func (r *ReflectIntrospector) isList(t reflect.Type) bool {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	return !r.isLeaf(t)
}

// defaultRequired follows Go's zero values: kinds that can hold nil are nullable.
func defaultRequired(t reflect.Type) Hint {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return HintFalse
	default:
		return HintTrue
	}
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// instance returns a value of t (or *t) implementing iface.
func instance(t, iface reflect.Type) (any, bool) {
	if t.Implements(iface) {
		return reflect.Zero(t).Interface(), true
	}
	if reflect.PointerTo(t).Implements(iface) {
		return reflect.New(t).Interface(), true
	}
	return nil, false
}

func typeName(t reflect.Type) string {
	if n, ok := instance(t, namerType); ok {
		return n.(Namer).GraphQLName()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return capitalize(t.Name())
	}
	return genericName(t.Name())
}

// genericName flattens instantiated generic names: Page[pkg.User] -> PageUser.
func genericName(name string) string {
	base, args, ok := strings.Cut(name, "[")
	if !ok {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	for _, a := range strings.Split(strings.TrimSuffix(args, "]"), ",") {
		a = strings.TrimSpace(a)
		if i := strings.LastIndexAny(a, "./*"); i >= 0 {
			a = a[i+1:]
		}
		b.WriteString(capitalize(a))
	}
	return b.String()
}

type fieldTag struct {
	name     string
	skip     bool
	required Hint
}

func parseTag(tag string) fieldTag {
	if tag == "-" {
		return fieldTag{skip: true}
	}
	parts := strings.Split(tag, ",")
	ft := fieldTag{name: strings.TrimSpace(parts[0])}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "required":
			ft.required = HintTrue
		case "nullable":
			ft.required = HintFalse
		}
	}
	return ft
}

func (t fieldTag) nameOr(def string) string {
	if t.name != "" {
		return t.name
	}
	return def
}

func (t fieldTag) requiredOr(def Hint) Hint {
	if t.required.IsSet() {
		return t.required
	}
	return def
}

// lowerCamel lowers the leading initialism of an exported Go name:
// ID -> id, UserID -> userID, HTTPServer -> httpServer.
func lowerCamel(s string) string {
	rs := []rune(s)
	n := 0
	for n < len(rs) && unicode.IsUpper(rs[n]) {
		n++
	}
	if n > 1 && n < len(rs) {
		n--
	}
	for i := 0; i < n; i++ {
		rs[i] = unicode.ToLower(rs[i])
	}
	return string(rs)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	rs := []rune(s)
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}
