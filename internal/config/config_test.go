package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, rest, err := load(nil, noEnv)
	require.NoError(t, err)
	require.Empty(t, rest)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLayering(t *testing.T) {
	t.Chdir(t.TempDir())
	file := writeFile(t, "typegraph.yaml", `
server:
  addr: ":7000"
  timeout: 5s
  cors_origins: ["https://a.example"]
  metadata_headers: [x-tenant]
graphql:
  concurrency: 4
otel:
  service: from-yaml
`)
	dotenv := writeFile(t, "test.env", "TYPEGRAPH_OTEL_ENDPOINT=collector:4317\nTYPEGRAPH_SERVER_ADDR=:7500\n")
	env := envMap(map[string]string{
		"TYPEGRAPH_SERVER_ADDR":        ":7700",
		"TYPEGRAPH_SERVER_CORS_ORIGIN": "https://b.example, https://c.example",
		"TYPEGRAPH_SERVER_PRETTY":      "true",
	})

	cfg, rest, err := load([]string{
		"-config", file,
		"-env-file=" + dotenv,
		"-server.timeout", "2s",
		"-server.metadata-header", "x-a",
		"-server.metadata-header", "x-b",
		"extra",
	}, env)
	require.NoError(t, err)
	require.Equal(t, []string{"extra"}, rest)

	// env over .env over yaml, flags over everything; lists are replaced
	want := Default()
	want.Server.Addr = ":7700"
	want.Server.Timeout = 2 * time.Second
	want.Server.Pretty = true
	want.Server.CORSOrigins = []string{"https://b.example", "https://c.example"}
	want.Server.MetadataHeaders = []string{"x-a", "x-b"}
	want.GraphQL.Concurrency = 4
	want.Otel = OtelConfig{Endpoint: "collector:4317", Service: "from-yaml"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDotEnvInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TYPEGRAPH_METRICS_PATH=/prom\n"), 0o644))
	t.Chdir(dir)
	cfg, _, err := load(nil, noEnv)
	require.NoError(t, err)
	require.Equal(t, "/prom", cfg.Metrics.Path)
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name string
		args []string
		env  map[string]string
		msg  string
	}{
		{name: "missing config file", args: []string{"-config", "nope.yaml"}, msg: "read config file nope.yaml"},
		{name: "missing env file", args: []string{"-env-file", "nope.env"}, msg: "read env file nope.env"},
		{name: "bad env value", env: map[string]string{"TYPEGRAPH_SERVER_TIMEOUT": "soon"}, msg: "TYPEGRAPH_SERVER_TIMEOUT"},
		{name: "unknown flag", args: []string{"-nope"}, msg: "flag provided but not defined"},
		{name: "zero concurrency", args: []string{"-graphql.concurrency", "0"}, msg: "graphql.concurrency"},
		{name: "negative cache", args: []string{"-server.document-cache=-1"}, msg: "server.document-cache"},
		{name: "relative metrics path", args: []string{"-metrics.path", "metrics"}, msg: "metrics.path"},
		{name: "empty addr", args: []string{"-server.addr", ""}, msg: "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := load(tt.args, envMap(tt.env))
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  graphiql: false\n"))
	require.NoError(t, err)
	require.False(t, cfg.Server.GraphiQL)
	require.Equal(t, ":8080", cfg.Server.Addr)

	_, err = Parse([]byte("server: ["))
	require.Error(t, err)
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "TYPEGRAPH_SERVER_MAX_BODY_BYTES", EnvVar("server.max-body-bytes"))
	require.Contains(t, Usage(), "-server.addr")
}
