// Command orchestratord is the Tool Orchestration Service entrypoint: it
// wires configuration, the Agent Platform and Vector Store clients, the
// file-backed caches, the attach/prune engine, the periodic reconciler and
// the HTTP facade, then serves until an interrupt or terminate signal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/toolmesh/orchestrator/internal/cache"
	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/config"
	"github.com/toolmesh/orchestrator/internal/engine"
	"github.com/toolmesh/orchestrator/internal/httpapi"
	"github.com/toolmesh/orchestrator/internal/platformclient"
	"github.com/toolmesh/orchestrator/internal/search"
	syncengine "github.com/toolmesh/orchestrator/internal/sync"
	"github.com/toolmesh/orchestrator/internal/telemetry"
	"github.com/toolmesh/orchestrator/internal/vectorclient"
)

func main() {
	logger := telemetry.NewLogger(true, slog.LevelInfo)

	if err := run(logger); err != nil {
		logger.Error("orchestratord exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	platform := platformclient.New(platformclient.Config{
		BaseURL:      cfg.PlatformBaseURL,
		SharedSecret: cfg.PlatformSecret,
		Timeout:      cfg.PlatformTimeout,
		MaxRetries:   cfg.PlatformMaxRetries,
	}, logger)

	vectorStore, err := vectorclient.New(vectorclient.Config{
		HTTPHost:        cfg.VectorStoreHTTPHost,
		HTTPPort:        cfg.VectorStoreHTTPPort,
		GRPCHost:        cfg.VectorStoreGRPCHost,
		GRPCPort:        cfg.VectorStoreGRPCPort,
		EmbeddingAPIKey: cfg.EmbeddingAPIKey,
		EmbeddingModel:  cfg.EmbeddingModel,
	}, logger)
	if err != nil {
		return err
	}
	defer vectorStore.Close()

	toolCache := cache.New[catalog.Tool](filepath.Join(cfg.CacheDir, cfg.ToolCacheFile), logger)
	mcpCache := cache.New[catalog.MCPServer](filepath.Join(cfg.CacheDir, cfg.MCPServerCacheFile), logger)

	searcher := search.New(vectorStore)
	eng := engine.New(platform, toolCache, searcher, logger, cfg.DefaultDropRate, cfg.AttachDetachTimeout)

	reconciler := syncengine.New(platform, vectorStore, toolCache, mcpCache, logger)
	scheduler := syncengine.NewScheduler(reconciler, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.ClearOnStartup {
		logger.Info("clear-on-startup set, wiping caches and vector store collection")
		if err := reconciler.ClearAll(ctx); err != nil {
			return err
		}
	}

	logger.Info("running initial sync")
	if err := reconciler.RunOnce(ctx); err != nil {
		logger.Warn("initial sync failed, serving with whatever state caches currently hold", "error", err)
	}

	if err := scheduler.Start(cfg.SyncInterval); err != nil {
		return err
	}
	defer scheduler.Stop()

	server := httpapi.New(eng, scheduler, vectorStore, logger,
		toolCache.Read, func() bool { loaded, _ := toolCache.Loaded(); return loaded }, mcpCache.Readable)

	logger.Info("serving", "addr", cfg.HTTPAddr)
	return server.Start(ctx, cfg.HTTPAddr)
}
