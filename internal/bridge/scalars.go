package bridge

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	schema "github.com/hanpama/typegraph/internal/schema"
)

// Scalar maps a native Go type onto a GraphQL scalar.
type Scalar struct {
	Name           string
	Description    string
	SpecifiedByURL string
	// Serialize converts a native value into a JSON-safe value.
	Serialize func(v any) (any, error)
	// Parse converts a coerced input value into the native type. A nil Parse
	// leaves decoding to the argument decoder.
	Parse func(v any) (any, error)
}

// Definition returns the schema type declaring s.
func (s Scalar) Definition() *schema.Type {
	t := schema.NewType(s.Name, schema.TypeKindScalar, s.Description)
	if s.SpecifiedByURL != "" {
		url := s.SpecifiedByURL
		t.SpecifiedByURL = &url
	}
	return t
}

// ScalarRegistry maps native types to scalars. It is safe for concurrent use.
type ScalarRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Scalar
	byName map[string]Scalar
}

// NewScalarRegistry returns a registry holding the default mappings.
func NewScalarRegistry() *ScalarRegistry {
	r := &ScalarRegistry{
		byType: make(map[reflect.Type]Scalar),
		byName: make(map[string]Scalar),
	}
	for _, k := range []reflect.Kind{reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16} {
		r.Register(kindTypes[k], intScalar)
	}
	for _, k := range []reflect.Kind{reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64} {
		r.Register(kindTypes[k], int64Scalar)
	}
	r.Register(kindTypes[reflect.Float32], floatScalar)
	r.Register(kindTypes[reflect.Float64], floatScalar)
	r.Register(kindTypes[reflect.Bool], booleanScalar)
	r.Register(kindTypes[reflect.String], stringScalar)
	RegisterScalar[uuid.UUID](r, uuidScalar)
	RegisterScalar[time.Time](r, dateTimeScalar)
	RegisterScalar[time.Duration](r, durationScalar)
	RegisterScalar[[]byte](r, bytesScalar)
	return r
}

// Register maps t to s, replacing any previous mapping for t.
func (r *ScalarRegistry) Register(t reflect.Type, s Scalar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = s
	if _, ok := r.byName[s.Name]; !ok {
		r.byName[s.Name] = s
	}
}

// RegisterScalar maps T to s.
func RegisterScalar[T any](r *ScalarRegistry, s Scalar) {
	r.Register(reflect.TypeOf((*T)(nil)).Elem(), s)
}

// Lookup returns the scalar for t. Named types with a basic underlying kind
// fall back to the mapping of the predeclared type of that kind.
func (r *ScalarRegistry) Lookup(t reflect.Type) (Scalar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byType[t]; ok {
		return s, true
	}
	if base, ok := kindTypes[t.Kind()]; ok && base != t {
		s, ok := r.byType[base]
		return s, ok
	}
	return Scalar{}, false
}

// ByName returns the first scalar registered under name.
func (r *ScalarRegistry) ByName(name string) (Scalar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeOf(false),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
	reflect.String:  reflect.TypeOf(""),
}

var (
	stringScalar = Scalar{
		Name: "String",
		Serialize: func(v any) (any, error) {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.String {
				return nil, fmt.Errorf("cannot serialize %T as String", v)
			}
			return rv.String(), nil
		},
	}
	booleanScalar = Scalar{
		Name: "Boolean",
		Serialize: func(v any) (any, error) {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Bool {
				return nil, fmt.Errorf("cannot serialize %T as Boolean", v)
			}
			return rv.Bool(), nil
		},
	}
	intScalar = Scalar{
		Name: "Int",
		Serialize: func(v any) (any, error) {
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, fmt.Errorf("Int cannot represent %d", n)
			}
			return int32(n), nil
		},
	}
	int64Scalar = Scalar{
		Name:        "Int64",
		Description: "A 64-bit integer encoded as a decimal string.",
		Serialize: func(v any) (any, error) {
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Uint, reflect.Uint32, reflect.Uint64:
				return strconv.FormatUint(rv.Uint(), 10), nil
			}
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return strconv.FormatInt(n, 10), nil
		},
		Parse: func(v any) (any, error) {
			switch x := v.(type) {
			case string:
				return strconv.ParseInt(x, 10, 64)
			default:
				return toInt64(v)
			}
		},
	}
	floatScalar = Scalar{
		Name: "Float",
		Serialize: func(v any) (any, error) {
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Float32, reflect.Float64:
				return rv.Float(), nil
			}
			return nil, fmt.Errorf("cannot serialize %T as Float", v)
		},
	}
	uuidScalar = Scalar{
		Name:           "UUID",
		Description:    "An RFC 9562 universally unique identifier.",
		SpecifiedByURL: "https://www.rfc-editor.org/rfc/rfc9562",
		Serialize: func(v any) (any, error) {
			id, ok := v.(uuid.UUID)
			if !ok {
				return nil, fmt.Errorf("cannot serialize %T as UUID", v)
			}
			return id.String(), nil
		},
		Parse: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("UUID must be a string, got %T", v)
			}
			return uuid.Parse(s)
		},
	}
	dateTimeScalar = Scalar{
		Name:           "DateTime",
		Description:    "An RFC 3339 timestamp.",
		SpecifiedByURL: "https://www.rfc-editor.org/rfc/rfc3339",
		Serialize: func(v any) (any, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("cannot serialize %T as DateTime", v)
			}
			return t.Format(time.RFC3339Nano), nil
		},
		Parse: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("DateTime must be a string, got %T", v)
			}
			return time.Parse(time.RFC3339Nano, s)
		},
	}
	durationScalar = Scalar{
		Name:        "Duration",
		Description: "A duration in Go notation, for example 1h30m.",
		Serialize: func(v any) (any, error) {
			d, ok := v.(time.Duration)
			if !ok {
				return nil, fmt.Errorf("cannot serialize %T as Duration", v)
			}
			return d.String(), nil
		},
		Parse: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("Duration must be a string, got %T", v)
			}
			return time.ParseDuration(s)
		},
	}
	bytesScalar = Scalar{
		Name:        "Bytes",
		Description: "Binary data encoded as standard base64.",
		Serialize: func(v any) (any, error) {
			b, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("cannot serialize %T as Bytes", v)
			}
			return base64.StdEncoding.EncodeToString(b), nil
		},
		Parse: func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("Bytes must be a string, got %T", v)
			}
			return base64.StdEncoding.DecodeString(s)
		},
	}
)

func toInt64(v any) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", v)
}
