// Package httpapi is the thin HTTP facade over the engine and sync
// packages: router, handlers, DTOs, grounded on liteclaw-liteclaw's
// echo/v4-based gateway server.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/engine"
	"github.com/toolmesh/orchestrator/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

// Engine is the subset of internal/engine.Engine the facade needs.
type Engine interface {
	Attach(ctx context.Context, agentID, query string, limit int, keepTools []string) (*engine.AttachResult, error)
	Prune(ctx context.Context, agentID, prompt string, dropRate float64, keepToolIDs, newlyMatchedToolIDs []string) (*engine.PruneResult, error)
}

// Syncer is the subset of internal/sync.Scheduler the facade needs for the
// manual sync-trigger endpoint.
type Syncer interface {
	TriggerNow(ctx context.Context) error
}

// VectorStore is the subset of internal/vectorclient.Client the facade
// needs for the health check.
type VectorStore interface {
	Ready(ctx context.Context) bool
}

// Server wires the engine, scheduler and caches behind an echo router.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger

	engine      Engine
	scheduler   Syncer
	toolCache   *toolCacheAdapter
	mcpReadable func() bool
	vectorStore VectorStore
}

// toolCacheAdapter narrows cache.FileCache[catalog.Tool]'s concrete API down
// to what the facade consumes, avoiding a generic interface parameter.
type toolCacheAdapter struct {
	read   func(forceReload bool) []catalog.Tool
	loaded func() bool
}

// New builds a Server. toolCacheRead/toolCacheLoaded/mcpCacheReadable are
// passed as closures over the concrete *cache.FileCache[T] instances so this
// package never needs to import the generic cache type directly.
func New(eng Engine, scheduler Syncer, vectorStore VectorStore, logger *slog.Logger,
	toolCacheRead func(bool) []catalog.Tool, toolCacheLoaded func() bool, mcpCacheReadable func() bool) *Server {

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(telemetry.RecoverMiddleware(logger))
	e.Use(requestLogger(logger))

	s := &Server{
		echo:        e,
		logger:      logger,
		engine:      eng,
		scheduler:   scheduler,
		vectorStore: vectorStore,
		toolCache:   &toolCacheAdapter{read: toolCacheRead, loaded: toolCacheLoaded},
		mcpReadable: mcpCacheReadable,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/api/v1")
	g.POST("/tools/attach", s.handleAttach)
	g.POST("/tools/prune", s.handlePrune)
	g.POST("/tools/sync", s.handleSync)
	g.GET("/tools", s.handleListTools)
	s.echo.GET("/api/health", s.handleHealth)
}

// Handler exposes the underlying router as a plain http.Handler, for tests
// that want to drive the facade through httptest.NewServer rather than a
// bound TCP port.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP on addr until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
