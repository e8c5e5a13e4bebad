package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	adminhttp "github.com/chain-gate/chaingate/internal/adapter/inbound/http"
	"github.com/chain-gate/chaingate/internal/adapter/inbound/stdio"
	celfactory "github.com/chain-gate/chaingate/internal/adapter/outbound/cel"
	"github.com/chain-gate/chaingate/internal/adapter/outbound/sidechannel"
	"github.com/chain-gate/chaingate/internal/config"
	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/chain"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/domain/invoke"
	"github.com/chain-gate/chaingate/internal/port/outbound"
	"github.com/chain-gate/chaingate/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stdio server",
	Long: `Start the chain-gate server.

The server speaks newline-delimited JSON-RPC 2.0 on stdin/stdout; logs and
the optional trace exporter go to stderr. A separate admin HTTP listener
exposes /metrics and /health.

Examples:
  # Start with config file settings
  chain-gate serve

  # Start with a definitions file and development logging
  chain-gate serve --dev --interceptors ./interceptors.yaml`,
	RunE: runServe,
}

var (
	devMode          bool
	interceptorsFile string
)

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, tracing)")
	serveCmd.Flags().StringVar(&interceptorsFile, "interceptors", "", "Path to an interceptor definitions YAML file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	if interceptorsFile != "" {
		cfg.Interceptors = interceptorsFile
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logger goes to stderr; stdout carries the JSON-RPC stream.
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("chain-gate stopped")
	return nil
}

// run wires all components together and serves until the context is
// cancelled or stdin reaches EOF.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Server.Tracing {
		shutdown, err := initTracing(cfg.Server.Name)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	// Observability metadata sink.
	sink, closeSink, err := createSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create side channel sink: %w", err)
	}
	defer func() { _ = closeSink() }()
	logger.Info("side channel configured", "output", cfg.SideChannel.Output)

	// Engine core.
	registry := interceptor.NewRegistry()
	resolver := binding.NewStaticResolver()
	resolver.Provide(logger)
	resolver.ProvideAs(reflect.TypeOf((*outbound.MetadataSink)(nil)).Elem(), sink)

	binder := binding.NewBinder(logger)
	session := &interceptor.SessionHandle{ServerName: cfg.Server.Name}
	engine := invoke.NewEngine(binder, resolver, session, logger)

	// Admin listener metrics are created before the executor so side
	// channel drops can feed the counter.
	promReg := prometheus.NewRegistry()
	metrics := adminhttp.NewMetrics(promReg)

	tracker := chain.NewTracker(logger)
	executor := chain.NewExecutor(registry, engine, tracker, sink, logger,
		chain.WithValidationConcurrency(cfg.Engine.ValidationConcurrency),
		chain.WithDropHook(metrics.SideChannelDrops.Inc),
	)

	svc := service.NewInterceptorService(registry, executor, cfg.Engine.ListPageSize, logger)

	adminhttp.RegisterGauges(promReg, registry.Size, tracker.InFlight)
	health := adminhttp.NewHealthChecker(registry, tracker, sink, Version)
	admin := adminhttp.NewAdminServer(cfg.Server.AdminAddr, promReg, health, logger)
	go func() {
		if err := admin.Start(ctx); err != nil {
			logger.Error("admin server failed", "error", err)
		}
	}()

	transport := stdio.NewTransport(svc, metrics, cfg.Server.Name, Version, logger)
	registry.OnChange(transport.NotifyListChanged)

	if cfg.Interceptors != "" {
		count, err := loadDefinitions(cfg.Interceptors, registry)
		if err != nil {
			return fmt.Errorf("failed to load interceptor definitions: %w", err)
		}
		logger.Info("loaded interceptor definitions", "file", cfg.Interceptors, "count", count)
	}

	logger.Info("chain-gate started",
		"name", cfg.Server.Name,
		"admin_addr", cfg.Server.AdminAddr,
		"interceptors", registry.Size(),
	)

	runErr := transport.Run(ctx, os.Stdin, os.Stdout)

	// Give detached observability tasks a bounded chance to finish.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := tracker.Drain(drainCtx); err != nil {
		logger.Warn("observability tasks abandoned at shutdown",
			"error", err, "grace", cfg.ShutdownGrace().String())
	}

	return runErr
}

// initTracing installs a stdout trace exporter writing to stderr and
// returns its shutdown function.
func initTracing(serviceName string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// createSink builds the configured metadata sink. The returned close
// function is a no-op for the memory sink.
func createSink(cfg *config.Config, logger *slog.Logger) (outbound.MetadataSink, func() error, error) {
	switch {
	case cfg.SideChannel.Output == "memory":
		return sidechannel.NewMemorySink(cfg.SideChannel.MemoryCapacity), func() error { return nil }, nil
	case strings.HasPrefix(cfg.SideChannel.Output, "file://"):
		dir := strings.TrimPrefix(cfg.SideChannel.Output, "file://")
		sink, err := sidechannel.NewFileSink(sidechannel.FileSinkConfig{
			Dir:           dir,
			RetentionDays: cfg.SideChannel.RetentionDays,
			MaxFileSizeMB: cfg.SideChannel.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid side channel output: %s (must be 'memory' or 'file://path')", cfg.SideChannel.Output)
	}
}

// loadDefinitions compiles a definitions file and registers every entry.
func loadDefinitions(path string, registry *interceptor.Registry) (int, error) {
	evaluator, err := celfactory.NewEvaluator()
	if err != nil {
		return 0, err
	}
	factory := celfactory.NewFactory(evaluator)

	defs, err := celfactory.LoadDefinitions(path)
	if err != nil {
		return 0, err
	}

	for _, def := range defs {
		reg, err := factory.Registration(def)
		if err != nil {
			return 0, err
		}
		if err := registry.Register(reg); err != nil {
			return 0, fmt.Errorf("definition %q: %w", def.ID, err)
		}
	}
	return len(defs), nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
