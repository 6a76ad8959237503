package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const librarySDL = `"""
A catalog entry
"""
type Book {
  id: ID!
  title: String!
  tags: [String!]
  legacyCode: String @deprecated(reason: "use id")
}

enum Genre {
  FICTION
  HISTORY
}

input BookFilter {
  genre: Genre
  first: Int = 10
}

type Mutation {
  addBook(title: String!): Book!
}

type Query {
  books(filter: BookFilter): [Book!]!
  genre: Genre
}

scalar Timestamp
`

func TestBuildFromSDL(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	require.Equal(t, "Query", s.QueryType)
	require.Equal(t, "Mutation", s.MutationType)
	require.Empty(t, s.SubscriptionType)
	require.NotNil(t, s.Types["String"])
	require.NotNil(t, s.Directives["include"])

	book := s.Types["Book"]
	require.Equal(t, TypeKindObject, book.Kind)
	require.Equal(t, "A catalog entry", book.Description)
	require.False(t, book.Field("title").Async)
	require.True(t, book.Field("legacyCode").IsDeprecated)
	require.Equal(t, "use id", book.Field("legacyCode").DeprecationReason)

	books := s.GetQueryType().Field("books")
	require.True(t, books.Async)
	require.Equal(t, "[Book!]!", renderTypeRef(books.Type))
	require.Len(t, books.Arguments, 1)

	filter := s.Types["BookFilter"]
	require.Equal(t, TypeKindInputObject, filter.Kind)
	require.Equal(t, int64(10), filter.InputFields[1].DefaultValue)

	genre := s.Types["Genre"]
	require.Len(t, genre.EnumValues, 2)
	require.Equal(t, "FICTION", genre.EnumValues[0].Name)
}

func TestBuildFromSDLInvalid(t *testing.T) {
	_, err := BuildFromSDL(`type Query { a: Missing }`)
	require.Error(t, err)
}

func TestRenderRoundTrip(t *testing.T) {
	s, err := BuildFromSDL(librarySDL)
	require.NoError(t, err)

	rendered := Render(s)
	again, err := BuildFromSDL(rendered)
	require.NoError(t, err)

	if diff := cmp.Diff(rendered, Render(again)); diff != "" {
		t.Errorf("render mismatch (-first +second):\n%s", diff)
	}
}

func TestRenderSkipsBuiltins(t *testing.T) {
	s := NewSchema("").AddBuiltins().SetQueryType("Query")
	s.AddType(NewType("Query", TypeKindObject, "").
		AddField(NewField("now", "", NonNullType(NamedType("DateTime")))))
	s.AddType(NewType("DateTime", TypeKindScalar, "RFC 3339 timestamp"))

	want := `"""
RFC 3339 timestamp
"""
scalar DateTime

type Query {
  now: DateTime!
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderCustomRootsAndIntrospection(t *testing.T) {
	s := NewSchema("").AddBuiltins().SetQueryType("Root")
	s.AddType(NewType("Root", TypeKindObject, "").
		AddField(NewField("hello", "", NamedType("String"))).
		AddField(NewField("__schema", "", NonNullType(NamedType("__Schema")))))
	s.AddType(NewType("__Schema", TypeKindObject, ""))

	want := `schema {
  query: Root
}

type Root {
  hello: String
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
	_, err := BuildFromSDL(Render(s))
	require.NoError(t, err)
}

func TestRenderWithIntrospectionKeepsDunderTypes(t *testing.T) {
	s := NewSchema("").AddBuiltins().SetQueryType("Query")
	s.AddType(NewType("Query", TypeKindObject, "").
		AddField(NewField("hello", "", NamedType("String"))).
		AddField(NewField("__schema", "", NonNullType(NamedType("__Schema")))))
	s.AddType(NewType("__Schema", TypeKindObject, "").
		AddField(NewField("description", "", NamedType("String"))))

	sdl := RenderWithIntrospection(s)
	require.Contains(t, sdl, "type __Schema {")
	require.Contains(t, sdl, "  __schema: __Schema!")
	require.NotContains(t, Render(s), "__Schema")
}

func TestFieldOrderedArguments(t *testing.T) {
	f := NewField("books", "", NamedType("String")).
		AddArgument(NewInputValue("first", "", NamedType("Int"))).
		AddArgument(NewInputValue("after", "", NamedType("String")))

	var names []string
	for _, a := range f.GetOrderedArguments() {
		names = append(names, a.Name)
	}
	require.Equal(t, []string{"first", "after"}, names)
}

func TestTypeRefHelpers(t *testing.T) {
	ref := NonNullType(ListType(NonNullType(NamedType("Int"))))
	require.True(t, IsNonNull(ref))
	require.True(t, IsList(ref))
	require.Equal(t, "Int", GetNamedType(ref))
	require.Equal(t, TypeRefKindList, Unwrap(ref).Kind)
}
