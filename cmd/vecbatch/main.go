// Package main is the entry point for vecbatch: a batch vectorization
// and search-indexing pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vecbatch/internal/bulkindexer"
	"vecbatch/internal/config"
	"vecbatch/internal/domain"
	"vecbatch/internal/embedclient"
	"vecbatch/internal/gate"
	"vecbatch/internal/modeladapter"
	"vecbatch/internal/searchclient"
	"vecbatch/internal/telemetry"
	"vecbatch/internal/vectorizer"
)

func main() {
	configPath := flag.String("config", "vecbatch.toml", "path to configuration file")
	demo := flag.Bool("demo", false, "run one vectorize-then-index pass over an in-memory sample table and exit")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)
	runID := domain.NewRunID()

	logger.Info("starting vecbatch", "run_id", runID, "config_path", *configPath)

	metrics := telemetry.NewMetrics(nil)

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("serving metrics and health endpoints", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	if *demo {
		if err := runDemo(ctx, cfg, metrics, logger, runID); err != nil {
			logger.Error("demo run failed", "error", err)
			shutdown(httpServer, logger)
			os.Exit(1)
		}
	} else {
		<-ctx.Done()
	}

	shutdown(httpServer, logger)
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// resolveModelID maps a service-facing model name to the adapter
// registry key; extend this switch when a new model family is added,
// never branch on the name anywhere else.
func resolveModelID(modelName string) modeladapter.ModelID {
	if strings.Contains(strings.ToLower(modelName), "cohere") {
		return modeladapter.Cohere
	}
	return modeladapter.Titan
}

// runDemo wires every component together end to end over a small
// in-memory table: vectorize two text columns, then bulk-index the
// augmented rows into the configured search cluster.
func runDemo(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger, runID string) error {
	g := gate.New("embedder", cfg.Gate.Initial, cfg.Gate.MinValue, cfg.Gate.DecreaseFactor, cfg.Gate.IncreaseThreshold, metrics)

	embedCfg := embedclient.Config{
		Backend: cfg.Embedder.Backend,
		Bedrock: embedclient.BedrockCredentials{
			Region:          cfg.Embedder.Region,
			AccessKeyID:     cfg.Embedder.AccessKeyID,
			SecretAccessKey: cfg.Embedder.SecretAccessKey,
			APIKey:          cfg.Embedder.APIKey,
			Endpoint:        cfg.Embedder.Endpoint,
		},
		RESTBaseURL: cfg.Embedder.Endpoint,
		RESTAPIKey:  cfg.Embedder.APIKey,
		ModelID:     resolveModelID(cfg.Embedder.Model),
		ModelName:   cfg.Embedder.Model,
	}

	if embedCfg.Backend == "bedrock" {
		modelIDs, err := embedclient.ListBedrockModelIDs(ctx, cfg.Embedder.Region, cfg.Embedder.AccessKeyID, cfg.Embedder.SecretAccessKey)
		if err != nil {
			logger.Warn("bedrock control-plane preflight failed; continuing anyway", "run_id", runID, "error", err)
		} else {
			logger.Info("bedrock foundation models available in region",
				"run_id", runID, "region", cfg.Embedder.Region, "count", len(modelIDs))
		}
	}

	client, err := embedclient.New(ctx, embedCfg, g, logger, metrics)
	if err != nil {
		return fmt.Errorf("constructing embedding client: %w", err)
	}
	defer client.Close()

	v := vectorizer.New(client, cfg.Embedder.Dimension, domain.EmbeddingFloat, metrics, logger)

	table := vectorizer.Table{
		Columns: []string{"title", "body"},
		Rows: []map[string]any{
			{"title": "first document", "body": "a short description of the first document"},
			{"title": "second document", "body": "a short description of the second document"},
		},
	}

	procCfg := domain.ProcessorConfig{
		MaxAttempts:      cfg.Scheduler.MaxAttempts,
		NumWorkers:       cfg.Scheduler.NumWorkers,
		RetryStrategy:    domain.ParseRetryStrategy(cfg.Scheduler.RetryStrategy),
		HandleThrottling: true,
		RetryableKinds:   nil, // scheduler fills in the default retryable set
		IsThrottling:     nil,
	}

	augmented, err := v.Vectorize(ctx, table, []string{"title", "body"}, vectorizer.Combined, "_embedding", procCfg, runID)
	if err != nil {
		return fmt.Errorf("vectorizing demo table: %w", err)
	}
	logger.Info("vectorized demo table", "run_id", runID, "rows", len(augmented.Rows))

	searchHTTP := embedclient.BuildHTTPClient(embedclient.DefaultConnectionSettings())
	sc := searchclient.New(cfg.Search.BaseURL, searchHTTP)

	if err := sc.CreateIndex(ctx, cfg.Search.Index, searchclient.IndexMapping{
		VectorField: "title_body_embedding",
		Dimension:   cfg.Embedder.Dimension,
		Method: searchclient.KNNMethod{
			Name:      cfg.Search.KNNMethodName,
			SpaceType: cfg.Search.KNNSpaceType,
			Engine:    cfg.Search.KNNEngine,
			Parameters: map[string]int{
				"ef_construction": cfg.Search.EFConstruction,
				"m":               cfg.Search.M,
			},
		},
		EFSearch: cfg.Search.EFSearch,
	}); err != nil {
		logger.Warn("create-index failed (index may already exist)", "error", err)
	}

	var rowValidator bulkindexer.RowValidator
	if cfg.Search.DocumentSchema != "" {
		schemaJSON, err := os.ReadFile(cfg.Search.DocumentSchema)
		if err != nil {
			return fmt.Errorf("reading document schema %q: %w", cfg.Search.DocumentSchema, err)
		}
		rowValidator, err = bulkindexer.SchemaValidator(string(schemaJSON))
		if err != nil {
			return fmt.Errorf("compiling document schema %q: %w", cfg.Search.DocumentSchema, err)
		}
	}

	indexer := bulkindexer.New(sc, cfg.Search.Index, rowValidator, metrics, logger)
	result, err := indexer.Index(ctx, augmented.Rows, false, runID)
	if err != nil {
		return fmt.Errorf("bulk indexing demo table: %w", err)
	}

	logger.Info("demo run complete",
		"run_id", runID,
		"total_processed", result.TotalProcessed,
		"total_failed", result.TotalFailed,
		"total_retried", result.TotalRetried,
	)
	return nil
}
