package graphtype

import "errors"

var (
	// ErrInvalidArgument reports a missing or blank required input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidGraphType reports a native type that cannot back a graph type,
	// such as a bare completion signal.
	ErrInvalidGraphType = errors.New("invalid graph type")
)
