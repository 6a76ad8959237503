package graphtype

import (
	"fmt"
	"reflect"
)

// builder is a single GetOrBuild call. Every descriptor it creates is staged
// here and only reaches the registry through commit, after the root build
// succeeded. A staged complex type may still have nil Fields while its own
// fields are being built; that is how back references terminate.
type builder struct {
	reg    *Registry
	staged map[string]*GraphType
	order  []*GraphType
}

func newBuilder(r *Registry) *builder {
	return &builder{reg: r, staged: make(map[string]*GraphType)}
}

func (b *builder) stage(gt *GraphType) *GraphType {
	b.staged[gt.Name] = gt
	b.order = append(b.order, gt)
	return gt
}

// commit publishes the staged descriptors in build order and returns the
// registry's instance for root.
func (b *builder) commit(root *GraphType) *GraphType {
	out := root
	for _, gt := range b.order {
		stored := b.reg.publish(gt)
		if gt == root {
			out = stored
		}
	}
	return out
}

func (b *builder) build(t reflect.Type, required, enumerable Hint) (*GraphType, error) {
	rt, err := Resolve(t)
	if err != nil {
		return nil, err
	}
	if enumerable.Bool() {
		return b.buildList(rt, required)
	}

	info, err := b.reg.in.Describe(rt)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", rt, err)
	}
	if err := b.reg.claim(info.Name, rt); err != nil {
		return nil, err
	}
	name := DeriveName(info.Name, required)
	if gt, ok := b.lookup(name); ok {
		return gt, nil
	}

	gt := &GraphType{
		Name:        name,
		TypeName:    info.Name,
		Description: info.Description,
		Type:        rt,
		Required:    required,
		Enumerable:  enumerable,
		IsEnum:      info.Enum,
		EnumValues:  info.EnumValues,
	}
	b.stage(gt)
	if info.Enum || len(info.Fields) == 0 {
		return gt, nil
	}

	fields := make(map[string]*Field, len(info.Fields))
	for i, fi := range info.Fields {
		f, err := b.buildField(i, fi)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", info.Name, fi.Name, err)
		}
		fields[f.Name] = f
	}
	gt.Fields = fields
	return gt, nil
}

func (b *builder) buildList(t reflect.Type, required Hint) (*GraphType, error) {
	et, ereq := b.reg.in.Element(t)
	if et == nil {
		return nil, fmt.Errorf("%w: %s has no element type", ErrInvalidGraphType, t)
	}
	elem, err := b.build(et, ereq, HintFalse)
	if err != nil {
		return nil, err
	}
	name := DeriveListName(elem.Name, required)
	if gt, ok := b.lookup(name); ok {
		return gt, nil
	}
	return b.stage(&GraphType{
		Name:        name,
		TypeName:    elem.TypeName,
		Description: elem.Description,
		Type:        t,
		Required:    required,
		Enumerable:  HintTrue,
		Elem:        elem,
	}), nil
}

func (b *builder) buildField(order int, fi FieldInfo) (*Field, error) {
	ft, err := b.build(fi.Type, fi.Required, fi.Enumerable)
	if err != nil {
		return nil, err
	}
	f := &Field{
		Name:        fi.Name,
		Description: fi.Description,
		Deprecation: fi.Deprecation,
		Order:       order,
		GraphType:   ft,
		Source:      fi.Source,
	}
	if len(fi.Arguments) == 0 {
		return f, nil
	}
	f.Arguments = make(map[string]*Argument, len(fi.Arguments))
	for j, ai := range fi.Arguments {
		at, err := b.build(ai.Type, ai.Required, ai.Enumerable)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", ai.Name, err)
		}
		f.Arguments[ai.Name] = &Argument{
			Name:        ai.Name,
			Description: ai.Description,
			Order:       j,
			GraphType:   at,
			Index:       ai.Index,
		}
	}
	return f, nil
}

func (b *builder) lookup(name string) (*GraphType, bool) {
	if gt, ok := b.staged[name]; ok {
		return gt, true
	}
	if v, ok := b.reg.types.Load(name); ok {
		return v.(*GraphType), true
	}
	return nil, false
}
