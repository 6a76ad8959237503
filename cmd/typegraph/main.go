package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanpama/typegraph/internal/accesslog"
	"github.com/hanpama/typegraph/internal/bridge"
	"github.com/hanpama/typegraph/internal/config"
	"github.com/hanpama/typegraph/internal/eventbus"
	"github.com/hanpama/typegraph/internal/events"
	"github.com/hanpama/typegraph/internal/executor"
	"github.com/hanpama/typegraph/internal/graphtype"
	"github.com/hanpama/typegraph/internal/introspection"
	"github.com/hanpama/typegraph/internal/metrics"
	"github.com/hanpama/typegraph/internal/otel"
	"github.com/hanpama/typegraph/internal/protoexport"
	"github.com/hanpama/typegraph/internal/protomodel"
	"github.com/hanpama/typegraph/internal/reflectrt"
	"github.com/hanpama/typegraph/internal/sample"
	"github.com/hanpama/typegraph/internal/schema"
	"github.com/hanpama/typegraph/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

const rootUsage = `typegraph: GraphQL schemas from Go types

USAGE:
  typegraph <command> [flags]

COMMANDS:
  serve            Serve the sample bookstore over HTTP and WebSocket
  print-sdl        Print the SDL of the sample bookstore schema
  compile-proto    Generate a .proto file from the sample bookstore graph
  help             Show help for any command
`

const serveUsageHeader = `serve FLAGS:
  Every flag can also be set with the environment variable shown in
  brackets, from a .env file, or from the YAML file named by -config.

`

const printSDLUsage = `print-sdl FLAGS:
  -out <file>          Write SDL to file (default: stdout)
  -introspection       Include introspection types and fields
`

const compileProtoUsage = `compile-proto FLAGS:
  -out <dir>           Output directory for the generated .proto file (required)
  -package <name>      Proto package (default: typegraph.bookstore)
  -service <name>      Resolver service name, Service is appended (default: Bookstore)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("typegraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "print-sdl":
		return cmdPrintSDL(cmdArgs, stdout, stderr)
	case "compile-proto":
		return cmdCompileProto(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage())
	case "print-sdl":
		fmt.Fprint(stdout, printSDLUsage)
	case "compile-proto":
		fmt.Fprint(stdout, compileProtoUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func serveUsage() string {
	return serveUsageHeader + config.Usage()
}

// buildGraph builds the graph of the sample roots. Every published graph
// type is announced on the event bus.
func buildGraph() (*graphtype.Schema, *bridge.ScalarRegistry, error) {
	reg := graphtype.NewRegistry(
		protomodel.New(graphtype.NewReflectIntrospector()),
		graphtype.WithBuildHook(func(gt *graphtype.GraphType) {
			eventbus.Publish(context.Background(), events.GraphTypeBuilt{
				Name:     gt.Name,
				TypeName: gt.TypeName,
				List:     gt.IsEnumerable(),
				Enum:     gt.IsEnum,
			})
		}),
	)
	s, err := reg.BuildSchema(sample.Types())
	if err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}
	scalars := bridge.NewScalarRegistry()
	protomodel.RegisterScalars(scalars)
	return s, scalars, nil
}

func buildExecutable() (*bridge.Executable, error) {
	s, scalars, err := buildGraph()
	if err != nil {
		return nil, err
	}
	exe, err := bridge.Convert(s, scalars)
	if err != nil {
		return nil, fmt.Errorf("convert graph: %w", err)
	}
	return exe, nil
}

// newMux wires the sample store behind the GraphQL handler. The caller owns
// the event bus; metrics are registered when cfg.Metrics.Path is set.
func newMux(cfg *config.Config, store *sample.Store) (*http.ServeMux, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Path != "" {
		m := metrics.New(prometheus.NewRegistry())
		cleanups = append(cleanups, m.Attach())
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}
	if cfg.Server.AccessLog {
		cleanups = append(cleanups, accesslog.Attach(log.Default()))
	}

	exe, err := buildExecutable()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	rtOpts := []reflectrt.Option{reflectrt.WithConcurrency(cfg.GraphQL.Concurrency)}
	for name, root := range sample.Roots(store) {
		rtOpts = append(rtOpts, reflectrt.WithRoot(name, root))
	}
	var runtime executor.Runtime = reflectrt.New(exe, rtOpts...)
	sch := exe.Schema

	if cfg.GraphQL.Introspection {
		wrapper := introspection.Wrap(runtime, sch)
		runtime = wrapper.Runtime
		sch = wrapper.Schema
	}

	sopts := []server.Option{
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithDocumentCache(cfg.Server.DocumentCache),
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if cfg.Server.Timeout > 0 {
		sopts = append(sopts, server.WithTimeout(cfg.Server.Timeout))
	}
	if cfg.Server.MaxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}
	h, err := server.New(runtime, sch, sopts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("server init: %w", err)
	}
	mux.Handle("/graphql", h)
	return mux, cleanup, nil
}

func cmdServe(args []string, stderr io.Writer) error {
	cfg, rest, err := config.Load(args)
	if err != nil {
		fmt.Fprint(stderr, serveUsage())
		return err
	}
	if len(rest) > 0 {
		fmt.Fprint(stderr, serveUsage())
		return fmt.Errorf("unexpected arguments %q", rest)
	}

	eventbus.Use(eventbus.New())
	shutdownOtel, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	mux, cleanup, err := newMux(cfg, sample.NewStore())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("GraphQL server listening on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdPrintSDL(args []string, stdout, stderr io.Writer) error {
	outFile := ""
	withIntrospection := false
	fs := flag.NewFlagSet("print-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	fs.BoolVar(&withIntrospection, "introspection", withIntrospection, "Include introspection types")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printSDLUsage)
		return err
	}

	exe, err := buildExecutable()
	if err != nil {
		return err
	}
	sdl := schema.Render(exe.Schema)
	if withIntrospection {
		sdl = schema.RenderWithIntrospection(introspection.Wrap(nil, exe.Schema).Schema)
	}
	if outFile == "" {
		fmt.Fprint(stdout, sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}

func cmdCompileProto(args []string, stdout, stderr io.Writer) error {
	outDir := ""
	pkg := "typegraph.bookstore"
	service := "Bookstore"
	fs := flag.NewFlagSet("compile-proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outDir, "out", outDir, "Output directory for the generated .proto file")
	fs.StringVar(&pkg, "package", pkg, "Proto package")
	fs.StringVar(&service, "service", service, "Resolver service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, compileProtoUsage)
		return err
	}
	if outDir == "" {
		fmt.Fprint(stderr, compileProtoUsage)
		return fmt.Errorf("-out is required")
	}

	s, scalars, err := buildGraph()
	if err != nil {
		return err
	}
	fd, err := protoexport.Build(s, scalars, protoexport.WithPackage(pkg), protoexport.WithService(service))
	if err != nil {
		return fmt.Errorf("build proto: %w", err)
	}
	fp, err := protoexport.Render(fd, outDir)
	if err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	fmt.Fprintln(stdout, fp)
	return nil
}
