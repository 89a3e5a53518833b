// Package observability builds the logger, tracer provider and Prometheus
// registry shared by every module. Modules receive an Observability value
// and pull what they need from Provider and Registry.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls how observability is initialised.
type Config struct {
	ServiceName    string
	Environment    string
	Version        string
	LogLevel       string
	MetricsAddress string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// Provider owns the logging and tracing backends.
type Provider struct {
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	shutdown       []func(context.Context) error
}

// Registry holds the instruments handed to modules.
type Registry struct {
	Tracer     trace.Tracer
	Prometheus *prometheus.Registry
}

// Observability bundles Provider and Registry.
type Observability struct {
	Provider *Provider
	Registry *Registry
	config   Config
}

// Init wires logging, tracing and metrics from cfg. Tracing is exported over
// OTLP/gRPC only when an endpoint is configured; otherwise a noop provider
// is installed.
func Init(ctx context.Context, cfg Config) (Observability, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "quiscore"
	}

	logger := NewLogger(os.Stdout, cfg.Environment, cfg.LogLevel).
		With(slog.String("service", cfg.ServiceName))
	slog.SetDefault(logger)

	provider := &Provider{Logger: logger}

	if cfg.OTLPEndpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return Observability{}, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

		rate := cfg.SampleRate
		if rate <= 0 {
			rate = 0.1
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
			sdktrace.WithResource(resource.NewSchemaless(
				attribute.String("service.name", cfg.ServiceName),
				attribute.String("service.version", cfg.Version),
				attribute.String("deployment.environment", cfg.Environment),
			)),
		)
		otel.SetTracerProvider(tp)
		provider.TracerProvider = tp
		provider.shutdown = append(provider.shutdown, tp.Shutdown)
		logger.InfoContext(ctx, "OTLP tracing enabled", slog.String("endpoint", cfg.OTLPEndpoint))
	} else {
		provider.TracerProvider = noop.NewTracerProvider()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return Observability{
		Provider: provider,
		Registry: &Registry{
			Tracer:     provider.TracerProvider.Tracer(cfg.ServiceName),
			Prometheus: reg,
		},
		config: cfg,
	}, nil
}

// NewTest returns an Observability that discards logs, records no spans and
// uses a private registry.
func NewTest() Observability {
	tp := noop.NewTracerProvider()
	return Observability{
		Provider: &Provider{
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			TracerProvider: tp,
		},
		Registry: &Registry{
			Tracer:     tp.Tracer("test"),
			Prometheus: prometheus.NewRegistry(),
		},
	}
}

// NewLogger builds the process logger: JSON in production, text elsewhere.
func NewLogger(w io.Writer, environment, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(environment, "production") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
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

// MetricsHandler exposes the Prometheus registry.
func (o Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.Registry.Prometheus, promhttp.HandlerOpts{Registry: o.Registry.Prometheus})
}

// StartMetricsServer serves /metrics on the configured address until ctx is
// cancelled. It returns false when no dedicated address is configured.
func (o Observability) StartMetricsServer(ctx context.Context) bool {
	if o.config.MetricsAddress == "" {
		return false
	}
	logger := o.Provider.Logger

	mux := http.NewServeMux()
	mux.Handle("/metrics", o.MetricsHandler())
	srv := &http.Server{
		Addr:              o.config.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", slog.String("address", o.config.MetricsAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return true
}

// Shutdown flushes exporters.
func (o Observability) Shutdown(ctx context.Context) error {
	if o.Provider == nil {
		return nil
	}
	var errs []error
	for _, fn := range o.Provider.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
