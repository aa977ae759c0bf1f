// Package sync implements the periodic reconciler that converges the
// Vector Store catalog toward the Agent Platform's live tool registry,
// grounded line-for-line on original_source/sync_service.py's sync_tools.
package sync

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/vectorclient"
)

// PlatformClient is the subset of internal/platformclient.Client the
// reconciler needs.
type PlatformClient interface {
	ListPlatformTools(ctx context.Context, after string) ([]catalog.Tool, string, error)
	ListMCPServers(ctx context.Context) ([]catalog.MCPServer, error)
	ListMCPServerTools(ctx context.Context, serverName, page string) ([]catalog.Tool, bool, error)
	RegisterMCPTool(ctx context.Context, serverName, toolName string) (*catalog.Tool, error)
}

// VectorStore is the subset of internal/vectorclient.Client the reconciler
// needs to keep the Tool collection's membership in sync.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	FetchAll(ctx context.Context, limit int) ([]vectorclient.StoredObject, error)
	UpsertObject(ctx context.Context, t catalog.Tool) error
	DeleteByFilter(ctx context.Context, name string) error
	UpdateMCPServerName(ctx context.Context, id, serverName string) error
	DeleteCollection(ctx context.Context) error
}

// ToolCache is the subset of internal/cache.FileCache[catalog.Tool] the
// reconciler needs.
type ToolCache interface {
	Write(seq []catalog.Tool) error
	Clear() error
}

// MCPServerCache is the subset of internal/cache.FileCache[catalog.MCPServer]
// the reconciler needs.
type MCPServerCache interface {
	Write(seq []catalog.MCPServer) error
	Clear() error
}

// Reconciler runs one sync cycle at a time; overlap prevention is the
// Scheduler's responsibility, not the Reconciler's.
type Reconciler struct {
	platform    PlatformClient
	vectorStore VectorStore
	toolCache   ToolCache
	mcpCache    MCPServerCache
	logger      *slog.Logger
}

// New builds a Reconciler.
func New(platform PlatformClient, vectorStore VectorStore, toolCache ToolCache, mcpCache MCPServerCache, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		platform:    platform,
		vectorStore: vectorStore,
		toolCache:   toolCache,
		mcpCache:    mcpCache,
		logger:      logger,
	}
}

// ClearAll wipes both caches and the Vector Store collection, per
// sync_service.py's CLEAR_WEAVIATE_ON_STARTUP branch in main().
func (r *Reconciler) ClearAll(ctx context.Context) error {
	if err := r.vectorStore.DeleteCollection(ctx); err != nil {
		return err
	}
	if err := r.toolCache.Clear(); err != nil {
		return err
	}
	return r.mcpCache.Clear()
}

// RunOnce executes the seven-step cycle described in spec.md §4.C. Each
// step's failure is logged; the reconciler keeps going where it safely can,
// since the next cycle's idempotent reconciliation converges regardless.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if err := r.vectorStore.EnsureSchema(ctx); err != nil {
		r.logger.Error("sync: ensure schema failed", "error", err)
		return err
	}

	// Step 1: fetch platform tools, paged, into a map by name.
	byName := make(map[string]catalog.Tool)
	after := ""
	for {
		page, next, err := r.platform.ListPlatformTools(ctx, after)
		if err != nil {
			r.logger.Error("sync: list platform tools failed", "error", err)
			return err
		}
		for _, t := range page {
			byName[t.Name] = t
		}
		if next == "" {
			break
		}
		after = next
	}

	// Step 2: fetch MCP server list, persist, compute active set.
	servers, err := r.platform.ListMCPServers(ctx)
	if err != nil {
		r.logger.Error("sync: list mcp servers failed", "error", err)
		return err
	}
	if err := r.mcpCache.Write(servers); err != nil {
		r.logger.Error("sync: write mcp server cache failed", "error", err)
	}
	active := make(map[string]struct{}, len(servers))
	for _, s := range servers {
		active[s.Name] = struct{}{}
	}

	// Step 3: fetch tools from each MCP server in parallel.
	type serverTools struct {
		server string
		tools  []catalog.Tool
	}
	results := make([]serverTools, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		i, s := i, s
		g.Go(func() error {
			batch, _, err := r.platform.ListMCPServerTools(gctx, s.Name, "")
			if err != nil {
				r.logger.Warn("sync: list mcp server tools failed", "server", s.Name, "error", err)
				return nil
			}
			results[i] = serverTools{server: s.Name, tools: batch}
			return nil
		})
	}
	_ = g.Wait()

	var unregistered []catalog.Tool
	for _, rs := range results {
		for _, t := range rs.tools {
			if _, known := byName[t.Name]; !known {
				unregistered = append(unregistered, t)
			}
		}
	}

	// Step 4: parallel registration of unregistered MCP tools.
	registered := make([]catalog.Tool, len(unregistered))
	g2, gctx2 := errgroup.WithContext(ctx)
	for i, t := range unregistered {
		i, t := i, t
		g2.Go(func() error {
			reg, err := r.platform.RegisterMCPTool(gctx2, t.MCPServerName, t.Name)
			if err != nil {
				r.logger.Warn("sync: register mcp tool failed, keeping candidate unregistered",
					"server", t.MCPServerName, "tool", t.Name, "error", err)
				registered[i] = t
				return nil
			}
			reg.MCPServerName = t.MCPServerName
			registered[i] = *reg
			return nil
		})
	}
	_ = g2.Wait()
	for _, t := range registered {
		byName[t.Name] = t
	}

	// Step 5: obsolescence filter.
	filtered := make(map[string]catalog.Tool, len(byName))
	for name, t := range byName {
		if t.IsObsolete(active) {
			continue
		}
		filtered[name] = t
	}

	// Step 6: persist the tool catalog cache.
	catalogList := make([]catalog.Tool, 0, len(filtered))
	for _, t := range filtered {
		catalogList = append(catalogList, t)
	}
	if err := r.toolCache.Write(catalogList); err != nil {
		r.logger.Error("sync: write tool cache failed", "error", err)
		return err
	}

	// Step 7: reconcile the Vector Store.
	return r.reconcileVectorStore(ctx, filtered)
}

func (r *Reconciler) reconcileVectorStore(ctx context.Context, catalogByName map[string]catalog.Tool) error {
	stored, err := r.vectorStore.FetchAll(ctx, 0)
	if err != nil {
		r.logger.Error("sync: fetch vector store objects failed", "error", err)
		return err
	}

	storedByName := make(map[string]vectorclient.StoredObject, len(stored))
	for _, o := range stored {
		storedByName[o.Name] = o
	}

	for name := range storedByName {
		if _, inCatalog := catalogByName[name]; !inCatalog {
			if err := r.vectorStore.DeleteByFilter(ctx, name); err != nil {
				r.logger.Warn("sync: delete obsolete vector object failed", "name", name, "error", err)
			}
		}
	}

	for name, t := range catalogByName {
		if _, exists := storedByName[name]; !exists {
			if err := r.vectorStore.UpsertObject(ctx, t); err != nil {
				r.logger.Warn("sync: upsert new vector object failed", "name", name, "error", err)
			}
			continue
		}
		if t.IsExternalMCP() {
			existing := storedByName[name]
			serverName, _ := existing.Properties["mcp_server_name"].(string)
			if serverName == "" && t.MCPServerName != "" {
				if err := r.vectorStore.UpdateMCPServerName(ctx, existing.ID, t.MCPServerName); err != nil {
					r.logger.Warn("sync: backfill mcp_server_name failed", "name", name, "error", err)
				}
			}
		}
	}

	return nil
}
