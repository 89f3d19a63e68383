// Copyright (C) 2025 Speedboat Agent Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/afoxnyc3/speedboat-agent/services/llm"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/breaker"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/handlers"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/memory"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/observability"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/ratelimit"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/routes"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/search"
	"github.com/afoxnyc3/speedboat-agent/services/orchestrator/services"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "speedboat-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildSearchService wires the Weaviate backend when configured,
// otherwise returns a client-less service whose failures route the
// pipeline onto the offline fallback documents.
func buildSearchService() *search.WeaviateService {
	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Sanitize: trim quotes and whitespace in case the container runtime
	// passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Search runs in offline mode.")
		return search.NewWeaviateService(nil, nil)
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Search runs in offline mode.",
			"url", weaviateURL, "error", err)
		return search.NewWeaviateService(nil, nil)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client. Search runs in offline mode.", "error", err)
		return search.NewWeaviateService(nil, nil)
	}

	if err := search.EnsureSchema(context.Background(), client); err != nil {
		log.Fatalf("Failed to ensure Weaviate schema: %v", err)
	}
	return search.NewWeaviateService(client, nil)
}

// buildRateLimitStore opens the persistent Badger store when a path is
// configured, falling back to the in-process store otherwise. The
// returned close function is a no-op for the in-process store.
func buildRateLimitStore() (ratelimit.Store, string, func()) {
	dbPath := os.Getenv("RATE_LIMIT_DB_PATH")
	if dbPath == "" {
		slog.Warn("RATE_LIMIT_DB_PATH not set, rate limit counters will not survive restarts")
		return ratelimit.NewMemoryStore(), "memory", func() {}
	}

	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open rate limit store at %s: %v", dbPath, err)
	}
	return ratelimit.NewBadgerStore(db), "badger", func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close rate limit store", "error", err)
		}
	}
}

func main() {
	port := os.Getenv("ORCHESTRATOR_PORT")
	if port == "" {
		port = "12210"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	searchService := buildSearchService()

	memoryURL := os.Getenv("MEMORY_SERVICE_URL")
	if memoryURL == "" {
		memoryURL = "http://speedboat-memory:12211"
		slog.Warn("MEMORY_SERVICE_URL not set, using default", "url", memoryURL)
	}
	memoryStore := memory.NewHTTPStore(memoryURL)

	rateStore, rateStoreName, closeRateStore := buildRateLimitStore()
	defer closeRateStore()
	limiter := ratelimit.NewLimiter(rateStore, ratelimit.DefaultPolicies(), logger)

	breakerConfig := breaker.DefaultConfig()
	breakerConfig.OnStateChange = func(_, to breaker.State) {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordBreakerTransition(to.String())
		}
	}
	memoryBreaker := breaker.New(breakerConfig)

	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	orchestrator := services.NewChatOrchestrator(
		memoryStore,
		searchService,
		memoryBreaker,
		services.NewGenerator(llmClient, logger),
		logger,
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))

	routes.SetupRoutes(router, routes.Deps{
		Orchestrator: orchestrator,
		Limiter:      limiter,
		Breaker:      memoryBreaker,
		RateStore:    rateStoreName,
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting the orchestrator server on port ", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	// Scrub any secure buffers still holding response text.
	handlers.PurgeAllSecureMemory()
}
