// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles the Yggdrasil service: HTTP routing, the query
// pipeline, the knowledge ledger, the watcher daemon, authentication, and
// observability infrastructure.
//
// # Usage
//
//	cfg, err := gateway.LoadConfig()
//	svc, err := gateway.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yggdrasillabs/yggdrasil/pkg/extensions"
	"github.com/yggdrasillabs/yggdrasil/services/branches"
	"github.com/yggdrasillabs/yggdrasil/services/council"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/middleware"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/observability"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/routes"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
	"github.com/yggdrasillabs/yggdrasil/services/pipeline"
	"github.com/yggdrasillabs/yggdrasil/services/similarity"
	"github.com/yggdrasillabs/yggdrasil/services/watcher"
	"github.com/yggdrasillabs/yggdrasil/services/websearch"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the gateway configuration, populated from environment
// variables by LoadConfig.
type Config struct {
	// Port is the HTTP server port.
	Port int `envconfig:"PORT" default:"12310"`

	// JWTSecret signs and validates tokens. When empty the gateway runs
	// with the no-op auth provider (local single-user mode).
	JWTSecret string `envconfig:"JWT_SECRET"`

	// JWTExpires is the issued-token lifetime.
	JWTExpires time.Duration `envconfig:"JWT_EXPIRES_IN" default:"15m"`

	// DatabaseURL is the SQLite path backing the ledger.
	DatabaseURL string `envconfig:"DATABASE_URL" default:"./yggdrasil.db"`

	// WeaviateURL enables the optional similarity collaborator.
	WeaviateURL string `envconfig:"WEAVIATE_URL"`

	// OTelEndpoint is the OTLP gRPC collector. Empty disables tracing
	// export.
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`

	// EnableMetrics registers the Prometheus endpoint.
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`

	// RateLimitRPS is the per-client request budget.
	RateLimitRPS float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`

	// WatcherEnabled starts the background rescan daemon.
	WatcherEnabled bool `envconfig:"WATCHER_ENABLED" default:"true"`

	// GinMode sets the Gin framework mode (debug, release, test).
	GinMode string `envconfig:"GIN_MODE"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("yggdrasil", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// Service
// =============================================================================

// Service is the gateway lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should be
// called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases all resources (watcher, ledger, tracer).
	Close()
}

type service struct {
	config        Config
	router        *gin.Engine
	ledger        *ledger.Ledger
	watcher       *watcher.Watcher
	registry      *llm.Registry
	similarity    *similarity.Index
	tracerCleanup func(context.Context)
	watcherCancel context.CancelFunc
}

// New initializes all gateway components: tracing, metrics, the ledger, the
// disinformation filter, adapters, branch handlers, the council, the
// pipeline, the watcher daemon, and the HTTP router.
func New(cfg Config) (Service, error) {
	s := &service{config: cfg}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	if cfg.OTelEndpoint != "" {
		cleanup, err := initTracer(cfg.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if cfg.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	var err error
	s.ledger, err = ledger.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	filter, err := disinfo.NewFilter()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize disinformation filter: %w", err)
	}

	// Similarity is optional; a failure degrades to disabled.
	s.similarity, err = similarity.New(cfg.WeaviateURL)
	if err != nil {
		slog.Warn("similarity index unavailable, continuing without it", "error", err)
		s.similarity = nil
	}

	search := websearch.NewClient()
	s.registry = llm.NewDefaultRegistry()

	handlers := []branches.Handler{
		branches.NewMimirHandler(s.ledger),
		branches.NewVolvaHandler(s.ledger),
		branches.NewHuginHandler(huginSearcher{search}, filter),
	}

	p := pipeline.New(handlers, council.New(s.registry), s.ledger, nil)
	if s.similarity != nil {
		p.SetIndexer(s.similarity)
	}

	s.watcher = watcher.New(s.ledger, watcherSearcher{search}, filter, watcher.Config{})
	if cfg.WatcherEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.watcherCancel = cancel
		if err := s.watcher.Start(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	auth, issuer, err := buildAuth(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.router = gin.Default()
	if cfg.OTelEndpoint != "" {
		s.router.Use(otelgin.Middleware("yggdrasil-gateway"))
	}
	routes.SetupRoutes(s.router, routes.Deps{
		Pipeline:   p,
		Ledger:     s.ledger,
		Watcher:    s.watcher,
		Registry:   s.registry,
		Similarity: s.similarity,
		Auth:       auth,
		Issuer:     issuer,
		Limiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2),
	})

	return s, nil
}

// Run starts the HTTP server and blocks. Resources are released on return.
func (s *service) Run() error {
	defer s.Close()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting Yggdrasil gateway", "port", s.config.Port)
	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine { return s.router }

// Close releases watcher, ledger, and tracer resources. Safe to call more
// than once.
func (s *service) Close() {
	if s.watcherCancel != nil {
		s.watcherCancel()
		s.watcherCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.ledger != nil {
		_ = s.ledger.Close()
		s.ledger = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Wiring Helpers
// =============================================================================

// buildAuth picks the JWT provider when a secret is configured, the no-op
// provider otherwise.
func buildAuth(cfg Config) (extensions.AuthProvider, extensions.TokenIssuer, error) {
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, running with no-op authentication")
		return extensions.NopAuthProvider{}, nil, nil
	}
	provider, err := extensions.NewJWTAuthProvider(cfg.JWTSecret, cfg.JWTExpires)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build auth provider: %w", err)
	}
	return provider, provider, nil
}

// huginSearcher adapts the websearch client to the HUGIN contract.
type huginSearcher struct{ client *websearch.Client }

func (h huginSearcher) Search(ctx context.Context, query string, limit int) ([]branches.WebSnippet, error) {
	results, err := h.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]branches.WebSnippet, 0, len(results))
	for _, r := range results {
		out = append(out, branches.WebSnippet{
			URL: r.URL, Title: r.Title, Content: r.Content, PublishedAt: r.PublishedAt,
		})
	}
	return out, nil
}

// watcherSearcher adapts the websearch client to the watcher contract.
type watcherSearcher struct{ client *websearch.Client }

func (w watcherSearcher) Search(ctx context.Context, query string, limit int) ([]watcher.SearchResult, error) {
	results, err := w.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]watcher.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, watcher.SearchResult{
			URL: r.URL, Content: r.Content, PublishedAt: r.PublishedAt,
		})
	}
	return out, nil
}

// initTracer sets up the OTLP trace exporter.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("yggdrasil-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var (
	_ Service                    = (*service)(nil)
	_ branches.WebSearcher       = huginSearcher{}
	_ watcher.UnverifiedSearcher = watcherSearcher{}
)
