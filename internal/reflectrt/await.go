package reflectrt

import (
	"context"
	"reflect"

	"github.com/hanpama/typegraph/internal/graphtype"
)

// await unwraps async result shapes until a plain value remains. A channel
// yields its first value; a closed channel yields null.
func await(ctx context.Context, v reflect.Value) (reflect.Value, error) {
	for v.IsValid() {
		if v.Kind() == reflect.Interface {
			if v.IsNil() {
				return reflect.Value{}, nil
			}
			v = v.Elem()
			continue
		}
		if !graphtype.IsAsync(v.Type()) {
			return v, nil
		}
		switch v.Kind() {
		case reflect.Chan:
			if v.IsNil() {
				return reflect.Value{}, nil
			}
			chosen, recv, ok := reflect.Select([]reflect.SelectCase{
				{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
				{Dir: reflect.SelectRecv, Chan: v},
			})
			if chosen == 0 {
				return reflect.Value{}, ctx.Err()
			}
			if !ok {
				return reflect.Value{}, nil
			}
			v = recv
		case reflect.Func:
			if v.IsNil() {
				return reflect.Value{}, nil
			}
			var in []reflect.Value
			if v.Type().NumIn() == 1 {
				in = append(in, reflect.ValueOf(&ctx).Elem())
			}
			out, err := results(v.Call(in))
			if err != nil {
				return reflect.Value{}, err
			}
			v = out
		default:
			if v.Kind() == reflect.Ptr && v.IsNil() {
				return reflect.Value{}, nil
			}
			out, err := results(v.MethodByName("Await").Call([]reflect.Value{reflect.ValueOf(&ctx).Elem()}))
			if err != nil {
				return reflect.Value{}, err
			}
			v = out
		}
	}
	return v, nil
}

// results splits the (T[, error]) outputs of a call.
func results(out []reflect.Value) (reflect.Value, error) {
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	return out[0], nil
}
