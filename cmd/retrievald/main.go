package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/config"
	"github.com/stashkit/retrieval/internal/db"
	dbRedis "github.com/stashkit/retrieval/internal/db/redis"
	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/job"
	logpkg "github.com/stashkit/retrieval/internal/logger"
	"github.com/stashkit/retrieval/internal/metrics"
	"github.com/stashkit/retrieval/internal/repository/embcache"
	"github.com/stashkit/retrieval/internal/repository/itemstore"
	"github.com/stashkit/retrieval/internal/repository/vectorindex"
	"github.com/stashkit/retrieval/internal/schedule"
	chiTransport "github.com/stashkit/retrieval/internal/transport/chi"
	openaiEmb "github.com/stashkit/retrieval/internal/transport/openai"
	healthuc "github.com/stashkit/retrieval/internal/usecase/health"
	pipelineuc "github.com/stashkit/retrieval/internal/usecase/pipeline"
	searchuc "github.com/stashkit/retrieval/internal/usecase/search"
	"github.com/stashkit/retrieval/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrievald",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("index_addrs", cfg.Index.Addrs),
		zap.String("sqlite_path", cfg.Items.SQLitePath),
	)

	// Vector index backend
	var store db.Store
	store, err = dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Index.Addrs,
		Password: cfg.Index.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create index store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Index.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index backend not ready", zap.Error(err))
	}
	logger.Info("Connected to index backend")

	// Relational item store
	items, err := itemstore.Open(cfg.Items.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open item store", zap.Error(err))
	}
	defer items.Close()

	metrics.Register()

	embedder := buildEmbedder(cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("available", embedder.Available()),
	)

	index := vectorindex.New(
		store, cfg.Index.Collection, cfg.Index.KeyPrefix, cfg.Embedding.Dimensions, logger,
	).WithHNSW(vectorindex.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})

	// Worker pool for detached pipeline runs
	pool, err := ants.NewPool(cfg.Pipeline.Workers)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	pipelineSvc := pipelineuc.New(embedder, index, items, pool, cfg.Pipeline.RetryBatchSize, logger)
	searchSvc := searchuc.New(
		embedder, index, items, items,
		cfg.Search.DefaultLimit, cfg.Search.SnippetMaxLength, logger,
	)
	healthSvc := healthuc.New(index, items, embedder)

	// Retry sweep for failed embeddings
	scheduler := schedule.New(logger)
	if err := scheduler.AddJob(job.NewRetryJob(pipelineSvc), cfg.Pipeline.RetrySweepCron); err != nil {
		logger.Fatal("Failed to schedule retry sweep", zap.Error(err))
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := chiTransport.NewServer(searchSvc, healthSvc, items, pipelineSvc, index, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the embedder chain: OpenAI -> KV cache -> LRU cache.
// The KV layer survives restarts; the LRU layer absorbs hot repeats without a
// network round trip.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	var embedder domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:         cfg.Embedding.APIKey,
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxInputChars:  cfg.Embedding.MaxInputChars,
		MaxRetries:     cfg.Embedding.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.Embedding.RetryBaseDelayMS) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Embedding.RequestTimeoutSec) * time.Second,
		Logger:         logger,
	})

	if cfg.Embedding.Cache.KVEnabled {
		embedder = embcache.NewKV(embedder, store, cfg.Index.KeyPrefix,
			time.Duration(cfg.Embedding.Cache.KVTTLHours)*time.Hour, logger)
	}
	return embcache.NewLRU(
		embedder,
		cfg.Embedding.Cache.LRUSize,
		time.Duration(cfg.Embedding.Cache.LRUTTLMin)*time.Minute,
	)
}
