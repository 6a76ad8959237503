// Package config loads the settings of the typegraph server.
//
// Values are layered, later layers winning: built-in defaults, the YAML file
// named by -config, variables from the .env file, the process environment
// and command-line flags. Every flag has an environment variable named after
// it: -server.max-body-bytes is TYPEGRAPH_SERVER_MAX_BODY_BYTES. Repeatable
// flags take a comma-separated list from the environment.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variable of every flag.
const EnvPrefix = "TYPEGRAPH_"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	GraphQL GraphQLConfig `yaml:"graphql"`
	Otel    OtelConfig    `yaml:"otel"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Pretty          bool          `yaml:"pretty"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MetadataHeaders []string      `yaml:"metadata_headers"`
	GraphiQL        bool          `yaml:"graphiql"`
	DocumentCache   int           `yaml:"document_cache"`
	AccessLog       bool          `yaml:"access_log"`
}

type GraphQLConfig struct {
	Introspection bool `yaml:"introspection"`
	Concurrency   int  `yaml:"concurrency"` // async resolvers per batch, -1 is unbounded
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

type MetricsConfig struct {
	// Path serves Prometheus metrics when non-empty.
	Path string `yaml:"path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			Timeout:       10 * time.Second,
			GraphiQL:      true,
			DocumentCache: 256,
			AccessLog:     true,
		},
		GraphQL: GraphQLConfig{
			Introspection: true,
			Concurrency:   -1,
		},
		Otel: OtelConfig{
			Service: "typegraph",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load builds a Config from the process environment and args. Arguments
// after the flags are returned.
func Load(args []string) (*Config, []string, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookupEnv func(string) (string, bool)) (*Config, []string, error) {
	cfg := Default()

	path := scanFlag(args, "config")
	if path == "" {
		path, _ = lookupEnv(EnvVar("config"))
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, nil, err
		}
	}

	envFile := scanFlag(args, "env-file")
	required := envFile != ""
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && (required || !errors.Is(err, fs.ErrNotExist)) {
		return nil, nil, fmt.Errorf("read env file %s: %w", envFile, err)
	}
	env := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	fset, lists := cfg.flagSet()
	var envErr error
	fset.VisitAll(func(f *flag.Flag) {
		v, ok := env(EnvVar(f.Name))
		if !ok || envErr != nil {
			return
		}
		if l, isList := lists[f.Name]; isList {
			l.setAll(splitList(v))
			return
		}
		if err := fset.Set(f.Name, v); err != nil {
			envErr = fmt.Errorf("%s: %w", EnvVar(f.Name), err)
		}
	})
	if envErr != nil {
		return nil, nil, envErr
	}

	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fset.Args(), nil
}

// Parse decodes YAML data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports settings that cannot be served.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("server.addr must not be empty")
	case c.Server.Timeout < 0:
		return fmt.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout)
	case c.Server.MaxBodyBytes < 0:
		return fmt.Errorf("server.max-body-bytes must not be negative, got %d", c.Server.MaxBodyBytes)
	case c.Server.DocumentCache < 0:
		return fmt.Errorf("server.document-cache must not be negative, got %d", c.Server.DocumentCache)
	case c.GraphQL.Concurrency == 0 || c.GraphQL.Concurrency < -1:
		return fmt.Errorf("graphql.concurrency must be positive or -1, got %d", c.GraphQL.Concurrency)
	case c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/"):
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// Usage returns the flag defaults in the form printed by the flag package.
func Usage() string {
	var b bytes.Buffer
	fset, _ := Default().flagSet()
	fset.SetOutput(&b)
	fset.PrintDefaults()
	return b.String()
}

// EnvVar returns the environment variable for the flag called name.
func EnvVar(name string) string {
	return EnvPrefix + strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(name))
}

func (c *Config) flagSet() (*flag.FlagSet, map[string]*listFlag) {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	fset.SetOutput(new(bytes.Buffer))
	fset.String("config", "", "YAML configuration file")
	fset.String("env-file", "", "Environment file (default: .env when present)")

	fset.StringVar(&c.Server.Addr, "server.addr", c.Server.Addr, "HTTP listen address")
	fset.BoolVar(&c.Server.Pretty, "server.pretty", c.Server.Pretty, "Pretty-print JSON responses")
	fset.DurationVar(&c.Server.Timeout, "server.timeout", c.Server.Timeout, "Per-request timeout")
	fset.Int64Var(&c.Server.MaxBodyBytes, "server.max-body-bytes", c.Server.MaxBodyBytes, "Request body limit, 0 for none")
	fset.BoolVar(&c.Server.GraphiQL, "server.graphiql", c.Server.GraphiQL, "Serve the GraphiQL IDE")
	fset.IntVar(&c.Server.DocumentCache, "server.document-cache", c.Server.DocumentCache, "Parsed documents to cache, 0 disables")
	fset.BoolVar(&c.Server.AccessLog, "server.access-log", c.Server.AccessLog, "Log every request")
	fset.BoolVar(&c.GraphQL.Introspection, "graphql.introspection", c.GraphQL.Introspection, "Enable GraphQL introspection")
	fset.IntVar(&c.GraphQL.Concurrency, "graphql.concurrency", c.GraphQL.Concurrency, "Parallel async resolvers per batch, -1 for unbounded")
	fset.StringVar(&c.Otel.Endpoint, "otel.endpoint", c.Otel.Endpoint, "OTLP collector endpoint")
	fset.StringVar(&c.Otel.Service, "otel.service", c.Otel.Service, "OpenTelemetry service name")
	fset.StringVar(&c.Metrics.Path, "metrics.path", c.Metrics.Path, "Prometheus metrics path, empty disables")

	lists := map[string]*listFlag{
		"server.cors-origin":     {p: &c.Server.CORSOrigins},
		"server.metadata-header": {p: &c.Server.MetadataHeaders},
	}
	fset.Var(lists["server.cors-origin"], "server.cors-origin", "Allowed CORS origin. Repeatable")
	fset.Var(lists["server.metadata-header"], "server.metadata-header", "Forward HTTP header to gRPC metadata. Repeatable")
	return fset, lists
}

// listFlag is a repeatable flag. The first value set on the command line
// replaces values from earlier layers.
type listFlag struct {
	p   *[]string
	set bool
}

func (l *listFlag) String() string {
	if l.p == nil {
		return ""
	}
	return strings.Join(*l.p, ",")
}

func (l *listFlag) Set(v string) error {
	if !l.set {
		*l.p = nil
		l.set = true
	}
	*l.p = append(*l.p, v)
	return nil
}

func (l *listFlag) setAll(vs []string) {
	*l.p = vs
	l.set = false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// scanFlag finds the value of flag name in args without parsing the rest.
func scanFlag(args []string, name string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return ""
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		a = strings.TrimPrefix(strings.TrimPrefix(a, "-"), "-")
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
