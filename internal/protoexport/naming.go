package protoexport

import (
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

func nameMessage(typeName string) protoreflect.Name {
	return protoreflect.Name(typeName)
}

func nameField(graphQLName string) protoreflect.Name {
	return protoreflect.Name(snakeCase(graphQLName))
}

func nameEnumValue(enumName string, valueName string) protoreflect.Name {
	return protoreflect.Name(strings.ToUpper(snakeCase(enumName)) + "_" + strings.ToUpper(valueName))
}

func nameService(serviceName string) protoreflect.Name {
	return protoreflect.Name(capitalize(serviceName) + "Service")
}

func nameResolverMethod(objectType string, fieldName string) protoreflect.Name {
	return protoreflect.Name("Resolve" + capitalize(objectType) + capitalize(fieldName))
}

func nameResolverRequest(objectType string, fieldName string) protoreflect.Name {
	return protoreflect.Name(string(nameResolverMethod(objectType, fieldName)) + "Request")
}

func nameResolverResponse(objectType string, fieldName string) protoreflect.Name {
	return protoreflect.Name(string(nameResolverMethod(objectType, fieldName)) + "Response")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// snakeCase converts a string from CamelCase or PascalCase to snake_case.
// Runs of capitals stay together: "ISBNCode" becomes "isbn_code".
func snakeCase(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := rs[i-1] < 'A' || rs[i-1] > 'Z'
			nextLower := i+1 < len(rs) && rs[i+1] >= 'a' && rs[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
