package protoexport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hanpama/typegraph/internal/bridge"
	"github.com/hanpama/typegraph/internal/graphtype"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type Genre string

func (Genre) EnumValues() []string { return []string{"FICTION", "HISTORY"} }

type Author struct {
	ID   string `graphql:"id"`
	Name string `description:"Display name"`
}

type Book struct {
	ID        string `graphql:"id"`
	Title     string
	Subtitle  *string
	Tags      []string
	Genre     Genre
	PageCount int32
	Author    *Author
	Legacy    string `deprecated:"use title"`
}

type RelatedArgs struct {
	Limit int32
}

func (b *Book) Related(args RelatedArgs) []*Book { return nil }

type BooksArgs struct {
	Genre *Genre
}

type Query struct{}

func (Query) Books(args BooksArgs) []Book { return nil }

type Subscription struct{}

func (Subscription) BookAdded() <-chan Book { return nil }

type MatrixQuery struct{}

func (MatrixQuery) Matrix() [][]string { return nil }

func buildSchema(t *testing.T, query, subscription reflect.Type) *graphtype.Schema {
	t.Helper()
	reg := graphtype.NewRegistry(graphtype.NewReflectIntrospector())
	s, err := reg.BuildSchema(query, nil, subscription)
	require.NoError(t, err)
	return s
}

func buildBookstore(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()
	s := buildSchema(t, reflect.TypeOf(Query{}), reflect.TypeOf(Subscription{}))
	fd, err := Build(s, bridge.NewScalarRegistry(), WithPackage("bookstore"))
	require.NoError(t, err)
	return fd
}

func TestBuildFile(t *testing.T) {
	fd := buildBookstore(t)
	require.Equal(t, protoreflect.FullName("bookstore"), fd.Package())
	require.Equal(t, "bookstore.proto", fd.Path())
	require.Equal(t, protoreflect.Proto3, fd.Syntax())
}

func TestBuildMessages(t *testing.T) {
	fd := buildBookstore(t)
	book := fd.Messages().ByName("Book")
	require.NotNil(t, book)

	title := book.Fields().ByName("title")
	require.NotNil(t, title)
	require.Equal(t, protoreflect.StringKind, title.Kind())
	require.False(t, title.HasOptionalKeyword())

	subtitle := book.Fields().ByName("subtitle")
	require.NotNil(t, subtitle)
	require.True(t, subtitle.HasOptionalKeyword())

	tags := book.Fields().ByName("tags")
	require.NotNil(t, tags)
	require.True(t, tags.IsList())
	require.Equal(t, protoreflect.StringKind, tags.Kind())

	pages := book.Fields().ByName("page_count")
	require.NotNil(t, pages)
	require.Equal(t, protoreflect.Int32Kind, pages.Kind())

	genre := book.Fields().ByName("genre")
	require.NotNil(t, genre)
	require.Equal(t, protoreflect.EnumKind, genre.Kind())
	require.Equal(t, protoreflect.Name("Genre"), genre.Enum().Name())

	author := book.Fields().ByName("author")
	require.NotNil(t, author)
	require.Equal(t, protoreflect.MessageKind, author.Kind())
	require.Equal(t, protoreflect.Name("Author"), author.Message().Name())

	// resolver fields are methods, not message fields
	require.Nil(t, book.Fields().ByName("related"))

	require.NotNil(t, fd.Messages().ByName("Author").Fields().ByName("name"))
	require.Nil(t, fd.Messages().ByName("Query"))
}

func TestBuildComments(t *testing.T) {
	fd := buildBookstore(t)
	name := fd.Messages().ByName("Author").Fields().ByName("name")
	loc := fd.SourceLocations().ByDescriptor(name)
	require.Equal(t, " Display name\n", loc.LeadingComments)

	legacy := fd.Messages().ByName("Book").Fields().ByName("legacy")
	loc = fd.SourceLocations().ByDescriptor(legacy)
	require.Equal(t, " Deprecated: use title\n", loc.LeadingComments)
}

func TestBuildEnum(t *testing.T) {
	fd := buildBookstore(t)
	genre := fd.Enums().ByName("Genre")
	require.NotNil(t, genre)
	require.Equal(t, 3, genre.Values().Len())
	require.Equal(t, protoreflect.Name("GENRE_UNSPECIFIED"), genre.Values().ByNumber(0).Name())
	require.NotNil(t, genre.Values().ByName("GENRE_FICTION"))
	require.NotNil(t, genre.Values().ByName("GENRE_HISTORY"))
}

func TestBuildService(t *testing.T) {
	fd := buildBookstore(t)
	svc := fd.Services().ByName("GraphService")
	require.NotNil(t, svc)
	require.Equal(t, 3, svc.Methods().Len())

	books := svc.Methods().ByName("ResolveQueryBooks")
	require.NotNil(t, books)
	require.False(t, books.IsStreamingServer())
	arg := books.Input().Fields().ByName("genre")
	require.NotNil(t, arg)
	require.True(t, arg.HasOptionalKeyword())
	require.Nil(t, books.Input().Fields().ByName("source"))
	data := books.Output().Fields().ByName("data")
	require.NotNil(t, data)
	require.True(t, data.IsList())
	require.Equal(t, protoreflect.Name("Book"), data.Message().Name())

	related := svc.Methods().ByName("ResolveBookRelated")
	require.NotNil(t, related)
	source := related.Input().Fields().ByName("source")
	require.NotNil(t, source)
	require.Equal(t, protoreflect.Name("Book"), source.Message().Name())
	require.NotNil(t, related.Input().Fields().ByName("limit"))

	added := svc.Methods().ByName("ResolveSubscriptionBookAdded")
	require.NotNil(t, added)
	require.True(t, added.IsStreamingServer())
	require.False(t, added.IsStreamingClient())
}

func TestBuildIsDeterministic(t *testing.T) {
	a := buildBookstore(t)
	b := buildBookstore(t)
	for _, name := range []protoreflect.Name{"id", "title", "tags", "author"} {
		require.Equal(t,
			a.Messages().ByName("Book").Fields().ByName(name).Number(),
			b.Messages().ByName("Book").Fields().ByName(name).Number(),
			"field %s", name)
	}
}

func TestBuildOptions(t *testing.T) {
	s := buildSchema(t, reflect.TypeOf(Query{}), nil)
	fd, err := Build(s, nil, WithPackage("acme.books.v1"), WithService("Books"))
	require.NoError(t, err)
	require.Equal(t, "acme/books/v1.proto", fd.Path())
	require.NotNil(t, fd.Services().ByName("BooksService"))

	fd, err = Build(s, nil, WithPath("custom/file.proto"))
	require.NoError(t, err)
	require.Equal(t, "custom/file.proto", fd.Path())
	require.Equal(t, protoreflect.FullName("typegraph"), fd.Package())
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(nil, nil)
	require.ErrorIs(t, err, graphtype.ErrInvalidArgument)

	// [][]string has no element list type; the inner slice is an unknown leaf
	s := buildSchema(t, reflect.TypeOf(MatrixQuery{}), nil)
	_, err = Build(s, nil)
	require.ErrorIs(t, err, bridge.ErrUnknownGraphType)

	str := &graphtype.GraphType{Name: "String!", TypeName: "String", Type: reflect.TypeOf(""), Required: graphtype.HintTrue}
	inner := &graphtype.GraphType{Name: "[String!]", TypeName: "String", Enumerable: graphtype.HintTrue, Elem: str}
	outer := &graphtype.GraphType{Name: "[[String!]]", TypeName: "String", Enumerable: graphtype.HintTrue, Elem: inner}
	query := &graphtype.GraphType{
		Name:     "Query!",
		TypeName: "Query",
		Required: graphtype.HintTrue,
		Fields: map[string]*graphtype.Field{
			"matrix": {Name: "matrix", GraphType: outer, Source: graphtype.Source{Method: "Matrix"}},
		},
	}
	_, err = Build(graphtype.Assemble(query, nil, nil), nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestPrintAndRender(t *testing.T) {
	fd := buildBookstore(t)
	var buf bytes.Buffer
	require.NoError(t, Print(fd, &buf))
	out := buf.String()
	require.Contains(t, out, `syntax = "proto3";`)
	require.Contains(t, out, "package bookstore;")
	require.Contains(t, out, "message Book {")
	require.Contains(t, out, "enum Genre {")
	require.Contains(t, out, "service GraphService {")
	require.Contains(t, out, "rpc ResolveSubscriptionBookAdded")

	dir := t.TempDir()
	fp, err := Render(fd, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "bookstore.proto"), fp)
	written, err := os.ReadFile(fp)
	require.NoError(t, err)
	require.Equal(t, out, string(written))
}

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"id", "id"},
		{"pageCount", "page_count"},
		{"PageCount", "page_count"},
		{"isbnCode", "isbn_code"},
		{"ISBNCode", "isbn_code"},
		{"authorID", "author_id"},
		{"page2Count", "page2_count"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, snakeCase(tt.in))
		})
	}
}

func TestHashNumbers(t *testing.T) {
	before, err := hashNumbers([]string{"title", "author"})
	require.NoError(t, err)
	after, err := hashNumbers([]string{"subtitle", "author", "title"})
	require.NoError(t, err)
	require.Equal(t, before[0], after[2])
	require.Equal(t, before[1], after[1])

	names := make([]string, 2000)
	for i := range names {
		names[i] = fmt.Sprintf("field_%d", i)
	}
	numbers, err := hashNumbers(names)
	require.NoError(t, err)
	used := map[int]bool{}
	for _, n := range numbers {
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, maxNumber)
		require.False(t, n >= reservedStart && n <= reservedEnd, "number %d is reserved", n)
		require.False(t, used[n], "number %d assigned twice", n)
		used[n] = true
	}
}
