// Package search expands natural-language prompts and wraps the Vector
// Store's hybrid search, matching weaviate_tool_search.py's query-time
// behavior.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/vectorclient"
)

// synonyms is carried token-for-token from
// weaviate_tool_search.py:preprocess_query's expansion table.
var synonyms = map[string][]string{
	"create":      {"add", "new", "publish", "post", "initiate", "build"},
	"post":        {"publish", "entry", "article"},
	"list":        {"get", "fetch", "show", "display", "view", "enumerate"},
	"delete":      {"remove", "destroy", "clear", "erase", "purge"},
	"update":      {"edit", "modify", "change", "revise", "upgrade"},
	"search":      {"find", "query", "lookup", "locate", "explore"},
	"manage":      {"organize", "handle", "control", "track", "administer"},
	"api":         {"integration", "service", "endpoint", "connection"},
	"content":     {"post", "article", "page", "data", "material", "resource"},
	"tool":        {"utility", "function", "capability", "feature"},
	"blog":        {"article", "posts", "ghost", "cms", "write-up"},
	"integration": {"api", "service", "connector", "plugin"},
	"configure":   {"setup", "initialize", "customize"},
	"ghost":       {"blogging", "headless", "cms"},
	"web":         {"online", "internet", "site", "webpage"},
}

// ExpandQuery unions the query's tokens with their synonym set, broadening
// recall before vector search, exactly as preprocess_query does.
func ExpandQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	expanded := make(map[string]struct{}, len(words))
	for _, w := range words {
		expanded[w] = struct{}{}
		for _, syn := range synonyms[w] {
			expanded[syn] = struct{}{}
		}
	}
	out := make([]string, 0, len(expanded))
	for w := range expanded {
		out = append(out, w)
	}
	sort.Strings(out) // deterministic ordering for reproducible queries/tests
	return strings.Join(out, " ")
}

// Match is one hybrid-search hit: the resolved tool plus its distance
// (lower is better, per spec.md §4.D).
type Match struct {
	Tool     catalog.Tool
	Distance float64
}

// Searcher wraps the Vector Store client with query expansion and
// distance-ascending ordering.
type Searcher struct {
	vs *vectorclient.Client
}

// New builds a Searcher over vs.
func New(vs *vectorclient.Client) *Searcher {
	return &Searcher{vs: vs}
}

// HybridSearch expands query, issues the alpha=0.75 hybrid search, and
// returns at most limit matches sorted by ascending distance (best first).
func (s *Searcher) HybridSearch(ctx context.Context, query string, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	expanded := ExpandQuery(query)
	results, err := s.vs.HybridSearch(ctx, expanded, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{Tool: r.Tool, Distance: r.Distance})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches, nil
}

// ToolEmbedding returns the stored vector for toolID, per
// get_tool_embedding_by_id: a direct fetch-with-vector, falling back to a
// nearText GraphQL probe filtered to the id. A returned vector is accepted
// only when it has more than one element.
func (s *Searcher) ToolEmbedding(ctx context.Context, toolID string) ([]float64, error) {
	return s.vs.GetToolEmbeddingByID(ctx, toolID)
}

// TextEmbedding returns the embedding text would receive, per
// get_embedding_for_text: the Vector Store's own vectorizer first, then a
// direct call to the embedding provider.
func (s *Searcher) TextEmbedding(ctx context.Context, text string) ([]float64, error) {
	return s.vs.EmbeddingForText(ctx, text)
}
