// Package engine implements the attach/prune core: given a natural-language
// query and an agent, it resolves matching tools against the Vector Store,
// attaches them, and prunes less-relevant incumbents under a drop-rate
// policy with must-keep overrides.
package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toolmesh/orchestrator/internal/apierr"
	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/search"
)

// PlatformClient is the subset of internal/platformclient.Client the engine
// needs, accepted as an interface so tests can substitute a fake.
type PlatformClient interface {
	GetAgent(ctx context.Context, agentID string) (*catalog.Agent, error)
	ListAgentTools(ctx context.Context, agentID string) ([]catalog.Tool, error)
	RegisterMCPTool(ctx context.Context, serverName, toolName string) (*catalog.Tool, error)
	AttachTool(ctx context.Context, agentID, toolID string) error
	DetachTool(ctx context.Context, agentID, toolID string) error
}

// ToolCache is the subset of internal/cache.FileCache[catalog.Tool] the
// engine needs to resolve search hits to authoritative descriptors.
type ToolCache interface {
	Read(forceReload bool) []catalog.Tool
}

// Searcher is the subset of internal/search.Searcher the engine needs.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, limit int) ([]search.Match, error)
}

// Engine is the attach/prune core. It is safe for concurrent use across
// distinct agent ids; two concurrent calls for the same agent id are not
// serialized (spec §9's third Open Question).
type Engine struct {
	platform        PlatformClient
	toolCache       ToolCache
	searcher        Searcher
	logger          *slog.Logger
	defaultDropRate float64
	mutationTimeout time.Duration
}

// New builds an Engine. defaultDropRate is used for the pruning pass chained
// automatically from Attach.
func New(platform PlatformClient, toolCache ToolCache, searcher Searcher, logger *slog.Logger, defaultDropRate float64, mutationTimeout time.Duration) *Engine {
	return &Engine{
		platform:        platform,
		toolCache:       toolCache,
		searcher:        searcher,
		logger:          logger,
		defaultDropRate: defaultDropRate,
		mutationTimeout: mutationTimeout,
	}
}

// AttachedTool is one successfully attached tool in an AttachResult.
type AttachedTool struct {
	ToolID     string  `json:"tool_id"`
	Name       string  `json:"name"`
	MatchScore float64 `json:"match_score"`
}

// AttachDetails is the full per-item breakdown of an Attach call, field
// names grounded on api_server.py's literal response dict keys.
type AttachDetails struct {
	DetachedTools         []string         `json:"detached_tools"`
	FailedDetachments     []apierr.Outcome `json:"failed_detachments"`
	ProcessedCount        int              `json:"processed_count"`
	PassedFilterCount     int              `json:"passed_filter_count"`
	SuccessCount          int              `json:"success_count"`
	FailureCount          int              `json:"failure_count"`
	SuccessfulAttachments []AttachedTool   `json:"successful_attachments"`
	FailedAttachments     []apierr.Outcome `json:"failed_attachments"`
	PreservedTools        []string         `json:"preserved_tools"`
	TargetAgent           string           `json:"target_agent"`
}

// AttachResult is the top-level outcome of an Attach call.
type AttachResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Details AttachDetails `json:"details"`
}

type resolvedCandidate struct {
	tool  catalog.Tool
	score float64
}

// Attach implements spec.md §4.E's attach operation. Pruning failures never
// fail the call; the engine logs them and reports success regardless.
func (e *Engine) Attach(ctx context.Context, agentID, query string, limit int, keepTools []string) (*AttachResult, error) {
	var currentTools []catalog.Tool
	var agent *catalog.Agent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tools, err := e.platform.ListAgentTools(gctx, agentID)
		if err != nil {
			return err
		}
		currentTools = tools
		return nil
	})
	g.Go(func() error {
		a, err := e.platform.GetAgent(gctx, agentID)
		if err != nil {
			return err
		}
		agent = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apierr.New(apierr.KindEngine, "attach: could not fetch agent state", err)
	}

	core, mcp := catalog.PartitionTools(currentTools)
	_ = core // core tools are never touched by attach/prune

	candidates, err := e.searcher.HybridSearch(ctx, query, limit)
	if err != nil {
		e.logger.Warn("attach: hybrid search failed", "agent_id", agentID, "error", err)
		candidates = nil
	}

	cached := e.toolCache.Read(false)
	byName := make(map[string]catalog.Tool, len(cached))
	for _, t := range cached {
		byName[t.Name] = t
	}

	if len(candidates) == 0 && query != "" {
		candidates = e.fuzzyCandidates(cached, query, limit)
	}

	resolved := make([]resolvedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if existing, ok := byName[c.Tool.Name]; ok && existing.ID != "" {
			resolved = append(resolved, resolvedCandidate{tool: existing, score: 1 - c.Distance})
			continue
		}
		if c.Tool.MCPServerName != "" {
			registered, regErr := e.platform.RegisterMCPTool(ctx, c.Tool.MCPServerName, c.Tool.Name)
			if regErr != nil {
				e.logger.Warn("attach: failed to register candidate mcp tool",
					"agent_id", agentID, "server", c.Tool.MCPServerName, "tool", c.Tool.Name, "error", regErr)
				continue
			}
			resolved = append(resolved, resolvedCandidate{tool: *registered, score: 1 - c.Distance})
			continue
		}
		e.logger.Warn("attach: dropping unresolvable candidate", "agent_id", agentID, "name", c.Tool.Name)
	}

	keepIDs := make(map[string]struct{}, len(keepTools)+len(resolved))
	for _, id := range keepTools {
		keepIDs[id] = struct{}{}
	}
	for _, r := range resolved {
		if r.tool.ID != "" {
			keepIDs[r.tool.ID] = struct{}{}
		}
	}

	var toDetach []catalog.Tool
	for _, t := range mcp {
		if _, keep := keepIDs[t.ID]; !keep {
			toDetach = append(toDetach, t)
		}
	}

	detachOutcomes := e.detachBatch(ctx, agentID, toDetach)
	attachOutcomes, attachedInfo := e.attachBatch(ctx, agentID, resolved)

	details := AttachDetails{
		ProcessedCount:    len(candidates),
		PassedFilterCount: len(resolved),
		TargetAgent:       agentID,
	}
	if agent != nil {
		details.TargetAgent = agent.ID
	}
	for _, o := range detachOutcomes {
		if o.OK {
			details.DetachedTools = append(details.DetachedTools, o.ToolID)
		} else {
			details.FailedDetachments = append(details.FailedDetachments, o)
		}
	}
	for _, o := range attachOutcomes {
		if o.OK {
			details.SuccessCount++
		} else {
			details.FailureCount++
			details.FailedAttachments = append(details.FailedAttachments, o)
		}
	}
	details.SuccessfulAttachments = attachedInfo
	details.PreservedTools = keepTools

	result := &AttachResult{Success: true, Message: "attach completed", Details: details}

	if len(resolved) > 0 && query != "" {
		newlyMatched := make([]string, 0, len(resolved))
		for _, r := range resolved {
			if r.tool.ID != "" {
				newlyMatched = append(newlyMatched, r.tool.ID)
			}
		}
		if _, pruneErr := e.Prune(ctx, agentID, query, e.defaultDropRate, keepTools, newlyMatched); pruneErr != nil {
			e.logger.Warn("attach: chained prune failed", "agent_id", agentID, "error", pruneErr)
		}
	}

	return result, nil
}

// fuzzyCandidates matches query against every cached tool's name as a
// last-resort candidate source when the Vector Store returns nothing.
// Matches are assigned a fixed mid-confidence distance since fuzzy matching
// has no notion of embedding-space closeness to rank by.
func (e *Engine) fuzzyCandidates(cached []catalog.Tool, query string, limit int) []search.Match {
	var matches []search.Match
	for _, t := range cached {
		if !fuzzyMatch(query, t.Name) {
			continue
		}
		matches = append(matches, search.Match{Tool: t, Distance: 0.5})
		if len(matches) >= limit {
			break
		}
	}
	return matches
}

func (e *Engine) attachBatch(ctx context.Context, agentID string, resolved []resolvedCandidate) ([]apierr.Outcome, []AttachedTool) {
	outcomes := make([]apierr.Outcome, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range resolved {
		i, r := i, r
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, e.timeout())
			defer cancel()
			err := e.platform.AttachTool(cctx, agentID, r.tool.ID)
			if err != nil {
				outcomes[i] = apierr.OutcomeErr(r.tool.ID, r.tool.Name, err)
			} else {
				outcomes[i] = apierr.OutcomeOK(r.tool.ID, r.tool.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	attached := make([]AttachedTool, 0, len(resolved))
	for i, r := range resolved {
		if outcomes[i].OK {
			attached = append(attached, AttachedTool{ToolID: r.tool.ID, Name: r.tool.Name, MatchScore: r.score})
		}
	}
	return outcomes, attached
}

func (e *Engine) detachBatch(ctx context.Context, agentID string, tools []catalog.Tool) []apierr.Outcome {
	outcomes := make([]apierr.Outcome, len(tools))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tools {
		i, t := i, t
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, e.timeout())
			defer cancel()
			err := e.platform.DetachTool(cctx, agentID, t.ID)
			if err != nil {
				outcomes[i] = apierr.OutcomeErr(t.ID, t.Name, err)
			} else {
				outcomes[i] = apierr.OutcomeOK(t.ID, t.Name)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Engine) timeout() time.Duration {
	if e.mutationTimeout <= 0 {
		return 10 * time.Second
	}
	return e.mutationTimeout
}

// PruneDetails is the per-item breakdown of a Prune call.
type PruneDetails struct {
	MCPToolsOnAgentBefore           int              `json:"mcp_tools_on_agent_before"`
	TargetMCPToolsToKeepAfterPruning int             `json:"target_mcp_tools_to_keep_after_pruning"`
	FinalMCPToolIDsKeptOnAgent       []string         `json:"final_mcp_tool_ids_kept_on_agent"`
	MCPToolsDetachedCount            int              `json:"mcp_tools_detached_count"`
	DetachedToolIDs                  []string         `json:"detached_tool_ids"`
	FailedDetachments                []apierr.Outcome `json:"failed_detachments"`
	AggressiveMode                   bool             `json:"aggressive_mode"`
}

// PruneResult is the top-level outcome of a Prune call.
type PruneResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Details PruneDetails `json:"details"`
}

// Prune implements spec.md §4.E's prune operation, grounded line-for-line on
// api_server.py's _perform_tool_pruning, including its aggressive-mode
// re-derivation of the keep set.
func (e *Engine) Prune(ctx context.Context, agentID, prompt string, dropRate float64, keepToolIDs, newlyMatchedToolIDs []string) (*PruneResult, error) {
	currentTools, err := e.platform.ListAgentTools(ctx, agentID)
	if err != nil {
		return nil, apierr.New(apierr.KindEngine, "prune: could not fetch current tools", err)
	}
	_, mcur := catalog.PartitionTools(currentTools)
	n := len(mcur)

	if n == 0 {
		return &PruneResult{Success: true, Message: "nothing to prune", Details: PruneDetails{}}, nil
	}

	mcurByID := make(map[string]catalog.Tool, n)
	for _, t := range mcur {
		mcurByID[t.ID] = t
	}

	target := int(math.Floor(float64(n) * (1 - dropRate)))

	searchLimit := target + 50
	if searchLimit < 100 {
		searchLimit = 100
	}
	ranked, err := e.searcher.HybridSearch(ctx, prompt, searchLimit)
	if err != nil {
		e.logger.Warn("prune: hybrid search failed, proceeding without ranking", "agent_id", agentID, "error", err)
		ranked = nil
	}

	keep := make(map[string]struct{})
	var keepOrder []string
	addKeep := func(id string) {
		if _, ok := mcurByID[id]; !ok {
			return
		}
		if _, already := keep[id]; already {
			return
		}
		keep[id] = struct{}{}
		keepOrder = append(keepOrder, id)
	}
	for _, id := range newlyMatchedToolIDs {
		addKeep(id)
	}
	for _, id := range keepToolIDs {
		addKeep(id)
	}

	aggressive := false
	if len(keep) >= target {
		aggressive = true
		targetPrime := int(math.Floor(0.8 * float64(n)))
		if targetPrime < 1 {
			targetPrime = 1
		}
		if len(keep) > targetPrime {
			newKeepOrder := make([]string, 0, targetPrime)
			seen := make(map[string]struct{}, targetPrime)
			addNew := func(id string) bool {
				if _, already := seen[id]; already {
					return false
				}
				seen[id] = struct{}{}
				newKeepOrder = append(newKeepOrder, id)
				return len(newKeepOrder) >= targetPrime
			}
			for _, id := range newlyMatchedToolIDs {
				if _, inMcur := mcurByID[id]; inMcur {
					if addNew(id) {
						break
					}
				}
			}
			if len(newKeepOrder) < targetPrime {
				for _, r := range ranked {
					if len(newKeepOrder) >= targetPrime {
						break
					}
					t := r.Tool
					if !t.IsExternalMCP() {
						continue
					}
					if _, inMcur := mcurByID[t.ID]; !inMcur {
						continue
					}
					if _, wasKept := keep[t.ID]; !wasKept {
						continue
					}
					addNew(t.ID)
				}
			}
			keep = make(map[string]struct{}, len(newKeepOrder))
			keepOrder = nil
			for _, id := range newKeepOrder {
				keep[id] = struct{}{}
				keepOrder = append(keepOrder, id)
			}
		}
		target = targetPrime
	} else {
		for _, r := range ranked {
			if len(keep) >= target {
				break
			}
			t := r.Tool
			if !t.IsExternalMCP() {
				continue
			}
			if _, inMcur := mcurByID[t.ID]; !inMcur {
				continue
			}
			if _, already := keep[t.ID]; already {
				continue
			}
			keep[t.ID] = struct{}{}
			keepOrder = append(keepOrder, t.ID)
		}
	}

	var toDetach []catalog.Tool
	for _, t := range mcur {
		if _, kept := keep[t.ID]; !kept {
			toDetach = append(toDetach, t)
		}
	}

	outcomes := e.detachBatch(ctx, agentID, toDetach)
	details := PruneDetails{
		MCPToolsOnAgentBefore:            n,
		TargetMCPToolsToKeepAfterPruning: target,
		FinalMCPToolIDsKeptOnAgent:       keepOrder,
		AggressiveMode:                   aggressive,
	}
	for _, o := range outcomes {
		if o.OK {
			details.MCPToolsDetachedCount++
			details.DetachedToolIDs = append(details.DetachedToolIDs, o.ToolID)
		} else {
			details.FailedDetachments = append(details.FailedDetachments, o)
		}
	}

	return &PruneResult{Success: true, Message: "prune completed", Details: details}, nil
}
