package bridge

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownGraphType reports a leaf GraphType with no registered scalar.
var ErrUnknownGraphType = errors.New("unknown graph type")

// UnknownGraphTypeError names the GraphType whose native type has no scalar
// mapping.
type UnknownGraphTypeError struct {
	Name string
	Type reflect.Type
}

func (e *UnknownGraphTypeError) Error() string {
	return fmt.Sprintf("unknown graph type %q: no scalar registered for %s", e.Name, e.Type)
}

func (e *UnknownGraphTypeError) Is(target error) bool { return target == ErrUnknownGraphType }
