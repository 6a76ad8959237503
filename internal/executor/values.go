package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/typegraph/internal/language"
	schema "github.com/hanpama/typegraph/internal/schema"
)

// coerceVariableValues coerces the provided variables against the variable
// definitions of op. Defaults apply to variables that were not provided.
func coerceVariableValues(
	sch *schema.Schema,
	op *language.OperationDefinition,
	provided map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		name := def.Variable
		val, ok := lookupVariable(provided, name)
		if !ok {
			switch {
			case def.DefaultValue != nil:
				val = astValueToGo(def.DefaultValue)
			case def.Type.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, def.Type.String())
			default:
				continue
			}
		}
		if val == nil && def.Type.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, def.Type.String())
		}
		cv, err := coerceValue(sch, val, typeRefFromAST(def.Type))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %w", name, def.Type.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces the arguments of one field instance. Problems
// are recorded at path; the offending argument is left out.
func coerceArgumentValues(
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
	state *executionState,
	path Path,
) map[string]any {
	coerced := make(map[string]any)
	for _, arg := range arguments {
		def := argumentDefinition(fieldDef, arg.Name)
		if def == nil {
			continue
		}
		cv, err := coerceValue(state.schema, valueFromASTWithVars(arg.Value, variableValues), def.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", arg.Name, err), path)
			continue
		}
		coerced[arg.Name] = cv
	}
	for _, def := range fieldDef.Arguments {
		if _, ok := coerced[def.Name]; ok {
			continue
		}
		if def.DefaultValue != nil {
			coerced[def.Name] = def.DefaultValue
		} else if schema.IsNonNull(def.Type) {
			state.addError(fmt.Sprintf("argument '%s' of required type was not provided", def.Name), path)
		}
	}
	return coerced
}

func argumentDefinition(fieldDef *schema.Field, name string) *schema.InputValue {
	for _, a := range fieldDef.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func lookupVariable(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	v, ok := vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// valueFromASTWithVars converts an AST value to a runtime value, substituting
// variables. An unknown variable is null.
func valueFromASTWithVars(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	if value.Kind == language.Variable {
		v, _ := lookupVariable(variableValues, value.Raw)
		return v
	}
	if value.Kind == language.ListValue {
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromASTWithVars(c.Value, variableValues)
		}
		return out
	}
	if value.Kind == language.ObjectValue {
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = valueFromASTWithVars(f.Value, variableValues)
		}
		return m
	}
	return astValueToGo(value)
}

// astValueToGo converts a constant AST value to a Go value.
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		iv, _ := strconv.Atoi(value.Raw)
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = astValueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = astValueToGo(f.Value)
		}
		return m
	default:
		return nil
	}
}

// coerceValue coerces an input value to typ. Built-in scalars are checked,
// input objects are coerced field by field and enum values must be members of
// their enum. Custom scalars pass through unchanged; the runtime parses them.
func coerceValue(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if schema.IsNonNull(typ) {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, schema.Unwrap(typ))
	}
	if value == nil {
		return nil, nil
	}
	if schema.IsList(typ) {
		inner := schema.Unwrap(typ)
		items, ok := value.([]any)
		if !ok {
			// A single value is a list of one.
			item, err := coerceValue(sch, value, inner)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := coerceValue(sch, item, inner)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}

	name := schema.GetNamedType(typ)
	switch name {
	case "Int":
		return coerceToInt(value)
	case "Float":
		return coerceToFloat(value)
	case "String":
		return coerceToString(value)
	case "Boolean":
		return coerceToBoolean(value)
	case "ID":
		return coerceToID(value)
	}

	var def *schema.Type
	if sch != nil {
		def = sch.Types[name]
	}
	if def == nil {
		return value, nil
	}
	switch def.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, def, value)
	case schema.TypeKindEnum:
		return coerceEnum(def, value)
	default:
		return value, nil
	}
}

func coerceInputObject(sch *schema.Schema, def *schema.Type, value any) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for %s, got %T", def.Name, value)
	}
	out := make(map[string]any, len(in))
	for _, f := range def.InputFields {
		v, ok := in[f.Name]
		if !ok {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if schema.IsNonNull(f.Type) {
				return nil, fmt.Errorf("required field '%s' of %s was not provided", f.Name, def.Name)
			}
			continue
		}
		cv, err := coerceValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s' of %s: %w", f.Name, def.Name, err)
		}
		out[f.Name] = cv
	}
	for k := range in {
		if _, ok := out[k]; ok {
			continue
		}
		if inputField(def, k) == nil {
			return nil, fmt.Errorf("field '%s' is not defined by %s", k, def.Name)
		}
	}
	return out, nil
}

func inputField(def *schema.Type, name string) *schema.InputValue {
	for _, f := range def.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func coerceEnum(def *schema.Type, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %v (%T) to enum %s", value, value, def.Name)
	}
	for _, v := range def.EnumValues {
		if v.Name == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %q is not a member of enum %s", s, def.Name)
}

func coerceToInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		n = int64(v)
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("cannot coerce %v to int: out of 32-bit range", value)
	}
	return int(n), nil
}

func coerceToFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceToString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to string", value, value)
}

func coerceToBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceToID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
