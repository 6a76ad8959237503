package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hanpama/typegraph/internal/config"
	"github.com/hanpama/typegraph/internal/eventbus"
	"github.com/hanpama/typegraph/internal/sample"
	"github.com/stretchr/testify/require"
)

func useBus(t *testing.T) {
	t.Helper()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, &out, io.Discard))
	require.Contains(t, out.String(), "COMMANDS:")

	out.Reset()
	require.NoError(t, run([]string{"help", "serve"}, &out, io.Discard))
	require.Contains(t, out.String(), "serve FLAGS")
	require.Contains(t, out.String(), "-server.addr")

	out.Reset()
	require.NoError(t, run([]string{"help", "compile-proto"}, &out, io.Discard))
	require.Contains(t, out.String(), "compile-proto FLAGS")

	require.Error(t, run([]string{"help", "nope"}, &out, io.Discard))
}

func TestCommandErrors(t *testing.T) {
	var stderr bytes.Buffer
	err := run(nil, io.Discard, &stderr)
	require.EqualError(t, err, "missing command")
	require.Contains(t, stderr.String(), "USAGE:")

	stderr.Reset()
	err = run([]string{"frobnicate"}, io.Discard, &stderr)
	require.EqualError(t, err, `unknown command "frobnicate"`)
	require.Contains(t, stderr.String(), "USAGE:")

	stderr.Reset()
	err = run([]string{"serve", "-server.addr", ":0", "extra"}, io.Discard, &stderr)
	require.ErrorContains(t, err, "unexpected arguments")
	require.Contains(t, stderr.String(), "serve FLAGS")
}

func TestPrintSDL(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"print-sdl"}, &out, io.Discard))
	sdl := out.String()
	for _, want := range []string{
		"type Query {",
		"type Mutation {",
		"type Subscription {",
		"type Book {",
		"enum Genre {",
		"input NewBookInput {",
		"scalar UUID",
		"scalar DateTime",
		"scalar Timestamp",
		"addBook(",
	} {
		require.Contains(t, sdl, want)
	}
	require.NotContains(t, sdl, "__Schema")

	out.Reset()
	require.NoError(t, run([]string{"print-sdl", "-introspection"}, &out, io.Discard))
	require.Contains(t, out.String(), "__Schema")
}

func TestPrintSDLToFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "schema.graphql")
	var out bytes.Buffer
	require.NoError(t, run([]string{"print-sdl", "-out", fp}, &out, io.Discard))
	require.Empty(t, out.String())
	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	require.Contains(t, string(data), "type Query {")
}

func TestCompileProto(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, run([]string{"compile-proto", "-out", dir}, &out, io.Discard))
	fp := filepath.Join(dir, "typegraph", "bookstore.proto")
	require.Equal(t, fp, strings.TrimSpace(out.String()))

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	proto := string(data)
	require.Contains(t, proto, "package typegraph.bookstore;")
	require.Contains(t, proto, "message Book {")
	require.Contains(t, proto, "service BookstoreService {")
	require.Contains(t, proto, "rpc ResolveMutationAddBook")

	var stderr bytes.Buffer
	err = run([]string{"compile-proto"}, io.Discard, &stderr)
	require.EqualError(t, err, "-out is required")
	require.Contains(t, stderr.String(), "compile-proto FLAGS")
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	useBus(t)
	mux, cleanup, err := newMux(cfg, sample.NewStore())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postQuery(t *testing.T, url, query string) string {
	t.Helper()
	body := `{"query":` + jsonString(query) + `}`
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func jsonString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func TestServeMux(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AccessLog = false
	srv := newTestServer(t, cfg)

	got := postQuery(t, srv.URL+"/graphql", `{ books(first: 1) { title author { name } } }`)
	require.JSONEq(t, `{"data":{"books":[{"title":"Dune","author":{"name":"Frank Herbert"}}]}}`, got)

	got = postQuery(t, srv.URL+"/graphql", `{ __type(name: "Genre") { name kind } }`)
	require.JSONEq(t, `{"data":{"__type":{"name":"Genre","kind":"ENUM"}}}`, got)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "typegraph_graph_types_built_total")
}

func TestServeMuxWithoutIntrospectionOrMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AccessLog = false
	cfg.GraphQL.Introspection = false
	cfg.Metrics.Path = ""
	srv := newTestServer(t, cfg)

	got := postQuery(t, srv.URL+"/graphql", `{ __type(name: "Genre") { name } }`)
	require.Contains(t, got, `"errors"`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
