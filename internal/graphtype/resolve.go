package graphtype

import (
	"context"
	"fmt"
	"reflect"
)

// Future is an asynchronous result that resolves to a T.
type Future[T any] interface {
	Await(ctx context.Context) (T, error)
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Resolve returns the canonical type behind t.
//
// Channels, thunks (func() T, func() (T, error), func(context.Context) (T, error))
// and Future-shaped types are async wrappers; Resolve returns the value type
// they produce. Wrappers that carry no value (chan struct{}, func() error, a
// bare error or struct{}) are rejected with ErrInvalidGraphType.
func Resolve(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: type is nil", ErrInvalidArgument)
	}
	if isVoid(t) {
		return nil, fmt.Errorf("%w: cannot build a graph type from void type %s", ErrInvalidGraphType, t)
	}
	inner, ok, err := awaitedType(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t, nil
	}
	if isVoid(inner) {
		return nil, fmt.Errorf("%w: cannot build a graph type from bare completion type %s", ErrInvalidGraphType, t)
	}
	return inner, nil
}

// IsAsync reports whether t is an async wrapper Resolve would strip.
func IsAsync(t reflect.Type) bool {
	if t == nil {
		return false
	}
	_, ok, err := awaitedType(t)
	return ok || err != nil
}

func isVoid(t reflect.Type) bool {
	if t == errorType {
		return true
	}
	return t.Kind() == reflect.Struct && t.Name() == "" && t.NumField() == 0
}

// awaitedType reports the value type produced by an async wrapper. ok is false
// for types that are not wrappers. A wrapper producing no value yields an error.
func awaitedType(t reflect.Type) (reflect.Type, bool, error) {
	switch t.Kind() {
	case reflect.Chan:
		if t.ChanDir() == reflect.SendDir {
			return nil, false, nil
		}
		return t.Elem(), true, nil
	case reflect.Func:
		return thunkType(t)
	}
	if m, ok := t.MethodByName("Await"); ok {
		recv := 0
		if t.Kind() != reflect.Interface {
			recv = 1
		}
		mt := m.Type
		if mt.NumIn() == recv+1 && mt.In(recv) == contextType && mt.NumOut() == 2 && mt.Out(1) == errorType {
			return mt.Out(0), true, nil
		}
	}
	return nil, false, nil
}

func thunkType(t reflect.Type) (reflect.Type, bool, error) {
	switch t.NumIn() {
	case 0:
	case 1:
		if t.In(0) != contextType {
			return nil, false, nil
		}
	default:
		return nil, false, nil
	}
	if t.IsVariadic() {
		return nil, false, nil
	}
	switch t.NumOut() {
	case 0:
		return nil, false, fmt.Errorf("%w: cannot build a graph type from bare completion type %s", ErrInvalidGraphType, t)
	case 1:
		if t.Out(0) == errorType {
			return nil, false, fmt.Errorf("%w: cannot build a graph type from bare completion type %s", ErrInvalidGraphType, t)
		}
		return t.Out(0), true, nil
	case 2:
		if t.Out(1) != errorType {
			return nil, false, nil
		}
		return t.Out(0), true, nil
	}
	return nil, false, nil
}
