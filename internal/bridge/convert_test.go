package bridge

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hanpama/typegraph/internal/graphtype"
	schema "github.com/hanpama/typegraph/internal/schema"
	"github.com/stretchr/testify/require"
)

type Status string

func (Status) EnumValues() []string { return []string{"DRAFT", "PUBLISHED"} }

type Post struct {
	ID        uuid.UUID
	Title     string
	Status    Status
	Published *time.Time
	Author    *Author
}

type Author struct {
	Name  string
	Posts []Post
}

type PostsArgs struct {
	Status *Status
}

type Query struct{}

func (Query) Posts(ctx context.Context, args PostsArgs) ([]Post, error) { return nil, nil }
func (Query) Version() string { return "1" }

type Mutation struct{}

type PostDraft struct {
	Title string
	Tags  []string
}

type CreateArgs struct {
	Draft PostDraft
}

type Mutations struct{}

func (Mutations) CreatePost(args CreateArgs) (*Post, error) { return nil, nil }

type Opaque struct{}

func build(t *testing.T, typ reflect.Type, required, enumerable graphtype.Hint) *graphtype.GraphType {
	t.Helper()
	r := graphtype.NewRegistry(graphtype.NewReflectIntrospector())
	gt, err := r.GetOrBuild(typ, required, enumerable)
	require.NoError(t, err)
	return gt
}

func TestLowerRequiredListOfInt32(t *testing.T) {
	gt := build(t, reflect.TypeOf(int32(0)), graphtype.HintTrue, graphtype.HintTrue)
	ref, err := NewConverter(nil).Lower(gt)
	require.NoError(t, err)

	want := schema.NonNullType(schema.ListType(schema.NamedType("Int")))
	if diff := cmp.Diff(want, ref); diff != "" {
		t.Errorf("Lower mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerObjectWithArguments(t *testing.T) {
	gt := build(t, reflect.TypeOf(Query{}), graphtype.HintTrue, graphtype.HintFalse)
	c := NewConverter(nil)
	ref, err := c.Lower(gt)
	require.NoError(t, err)
	require.Equal(t, schema.NonNullType(schema.NamedType("Query")), ref)

	q := c.Schema().Types["Query"]
	require.Equal(t, schema.TypeKindObject, q.Kind)
	require.Len(t, q.Fields, 2)

	posts := q.Field("posts")
	require.Len(t, posts.Arguments, 1)
	require.Equal(t, "status", posts.Arguments[0].Name)
	require.Equal(t, schema.NamedType("Status"), posts.Arguments[0].Type)
	require.True(t, posts.Async)
	require.Empty(t, q.Field("version").Arguments)
}

func TestLowerScalarsAndEnums(t *testing.T) {
	gt := build(t, reflect.TypeOf(Post{}), graphtype.HintFalse, graphtype.HintFalse)
	c := NewConverter(nil)
	_, err := c.Lower(gt)
	require.NoError(t, err)

	types := c.Schema().Types
	post := types["Post"]
	require.Equal(t, schema.NonNullType(schema.NamedType("UUID")), post.Field("id").Type)
	require.Equal(t, schema.NamedType("DateTime"), post.Field("published").Type)
	require.Equal(t, schema.TypeKindScalar, types["UUID"].Kind)
	require.Equal(t, schema.TypeKindEnum, types["Status"].Kind)
	require.Len(t, types["Status"].EnumValues, 2)
	require.False(t, post.Field("title").Async)

	// Author.posts points back at Post and reuses it
	author := types["Author"]
	require.Equal(t, "[Post!]", typeString(author.Field("posts").Type))
}

func typeString(ref *schema.TypeRef) string {
	switch ref.Kind {
	case schema.TypeRefKindNonNull:
		return typeString(ref.OfType) + "!"
	case schema.TypeRefKindList:
		return "[" + typeString(ref.OfType) + "]"
	}
	return ref.Named
}

func TestLowerUnknownScalar(t *testing.T) {
	gt := build(t, reflect.TypeOf(Opaque{}), graphtype.HintTrue, graphtype.HintFalse)
	_, err := NewConverter(nil).Lower(gt)
	require.ErrorIs(t, err, ErrUnknownGraphType)

	var unknown *UnknownGraphTypeError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "Opaque!", unknown.Name)
}

type Attachment struct {
	Title  string
	Status Status
	Blob   Opaque
}

func TestLowerFailureLeavesTargetUnchanged(t *testing.T) {
	gt := build(t, reflect.TypeOf(Attachment{}), graphtype.HintTrue, graphtype.HintFalse)
	c := NewConverter(nil)
	before := len(c.Schema().Types)

	for i := 0; i < 2; i++ {
		ref, err := c.Lower(gt)
		require.ErrorIs(t, err, ErrUnknownGraphType)
		require.Nil(t, ref)
		require.NotContains(t, c.Schema().Types, "Attachment")
		require.NotContains(t, c.Schema().Types, "Status")
		require.Len(t, c.Schema().Types, before)
		require.Empty(t, c.bindings)
		require.Empty(t, c.objects)
	}
}

func TestRegisteredScalarResolvesUnknown(t *testing.T) {
	scalars := NewScalarRegistry()
	RegisterScalar[Opaque](scalars, Scalar{
		Name:      "Opaque",
		Serialize: func(any) (any, error) { return "opaque", nil },
	})
	gt := build(t, reflect.TypeOf(Opaque{}), graphtype.HintTrue, graphtype.HintFalse)
	ref, err := NewConverter(scalars).Lower(gt)
	require.NoError(t, err)
	require.Equal(t, schema.NonNullType(schema.NamedType("Opaque")), ref)
}

func TestConvertOmitsEmptyRoots(t *testing.T) {
	r := graphtype.NewRegistry(graphtype.NewReflectIntrospector())
	s, err := r.BuildSchema(reflect.TypeOf(Query{}), reflect.TypeOf(Mutation{}), nil)
	require.NoError(t, err)

	exe, err := Convert(s, nil)
	require.NoError(t, err)
	require.Equal(t, "Query", exe.Schema.QueryType)
	require.Empty(t, exe.Schema.MutationType)
	require.Empty(t, exe.Schema.SubscriptionType)
	require.Nil(t, exe.Schema.Types["Mutation"])

	f, ok := exe.Binding("Query", "posts")
	require.True(t, ok)
	require.Equal(t, "Posts", f.Source.Method)
	_, ok = exe.Binding("Query", "missing")
	require.False(t, ok)

	qt, ok := exe.ObjectType("Query")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(Query{}), qt)
	pt, ok := exe.ObjectType("Post")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(Post{}), pt)
}

func TestConvertInputObjects(t *testing.T) {
	r := graphtype.NewRegistry(graphtype.NewReflectIntrospector())
	s, err := r.BuildSchema(reflect.TypeOf(Query{}), reflect.TypeOf(Mutations{}), nil)
	require.NoError(t, err)

	exe, err := Convert(s, nil)
	require.NoError(t, err)
	require.Equal(t, "Mutation", exe.Schema.MutationType)

	create := exe.Schema.Types["Mutation"].Field("createPost")
	require.Equal(t, schema.NonNullType(schema.NamedType("PostDraftInput")), create.Arguments[0].Type)
	input := exe.Schema.Types["PostDraftInput"]
	require.Equal(t, schema.TypeKindInputObject, input.Kind)
	require.Len(t, input.InputFields, 2)

	// the rendered schema is accepted by the SDL loader
	_, err = schema.BuildFromSDL(schema.Render(exe.Schema))
	require.NoError(t, err)
}

func TestConvertFailsWithoutQuery(t *testing.T) {
	_, err := Convert(&graphtype.Schema{}, nil)
	require.ErrorIs(t, err, graphtype.ErrInvalidArgument)
}
