// Package vectorclient is a typed wrapper over the Vector Store's REST and
// GraphQL surface, plus a gRPC health handle, mirroring the Agent Platform
// client's shape in internal/platformclient.
package vectorclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/toolmesh/orchestrator/internal/apierr"
	"github.com/toolmesh/orchestrator/internal/catalog"
)

const collectionName = "Tool"

// objectNamespace seeds deterministic object ids: the same tool name always
// maps to the same Vector Store object id, so re-syncing never duplicates.
var objectNamespace = uuid.MustParse("6f9619ff-8b86-d011-b42d-00cf4fc964ff")

// Config configures the Vector Store client.
type Config struct {
	HTTPHost        string
	HTTPPort        int
	GRPCHost        string
	GRPCPort        int
	EmbeddingAPIKey string
	EmbeddingModel  string
}

// Client is a pooled handle to the Vector Store: a resty client for its
// REST+GraphQL surface, and a gRPC connection used only for health checks
// (the pack carries no generated Vector Store gRPC stubs to drive a real
// batch path over gRPC, so bulk mutation stays on the REST batch endpoint).
type Client struct {
	http   *resty.Client
	grpc   *grpc.ClientConn
	logger *slog.Logger
	cfg    Config
}

// New dials the Vector Store's HTTP and gRPC endpoints. The gRPC dial is
// lazy (grpc.NewClient does not block), matching spec.md's "always-open
// pooled handle" without blocking process startup on a remote dependency.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	httpHost := cfg.HTTPHost
	if httpHost == "" {
		httpHost = "localhost"
	}
	httpPort := cfg.HTTPPort
	if httpPort == 0 {
		httpPort = 8080
	}
	baseURL := fmt.Sprintf("http://%s:%d/v1", httpHost, httpPort)

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})

	grpcHost := cfg.GRPCHost
	if grpcHost == "" {
		grpcHost = httpHost
	}
	grpcPort := cfg.GRPCPort
	if grpcPort == 0 {
		grpcPort = 50051
	}
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", grpcHost, grpcPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorclient: dial grpc: %w", err)
	}

	return &Client{http: rc, grpc: conn, logger: logger, cfg: cfg}, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	return c.grpc.Close()
}

// Ready reports whether the Vector Store accepts requests, first via its
// REST readiness probe and, failing that, via the gRPC health service.
func (c *Client) Ready(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get("/.well-known/ready")
	if err == nil && resp.StatusCode() == http.StatusOK {
		return true
	}
	hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	health := healthpb.NewHealthClient(c.grpc)
	resp2, err := health.Check(hctx, &healthpb.HealthCheckRequest{})
	return err == nil && resp2.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// ObjectID returns the deterministic Vector Store object id for a tool name.
func ObjectID(name string) string {
	return uuid.NewSHA1(objectNamespace, []byte(name)).String()
}

// DeleteCollection drops the entire Tool collection, per
// sync_service.py's CLEAR_WEAVIATE_ON_STARTUP branch. A missing collection
// is not an error.
func (c *Client) DeleteCollection(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/schema/" + collectionName)
	if err != nil {
		return apierr.New(apierr.KindTransport, "delete collection: transport", err)
	}
	if resp.StatusCode() >= 300 && resp.StatusCode() != http.StatusNotFound {
		return apierr.New(apierr.KindTransport, fmt.Sprintf("delete collection: %s", resp.Status()), nil)
	}
	return nil
}

// EnsureSchema creates the Tool collection if it does not already exist,
// grounded on sync_service.py:get_or_create_tool_schema's property list.
func (c *Client) EnsureSchema(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/schema/" + collectionName)
	if err != nil {
		return apierr.New(apierr.KindTransport, "ensure schema: fetch existing", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return apierr.New(apierr.KindTransport, fmt.Sprintf("ensure schema: unexpected status %s", resp.Status()), nil)
	}

	body := map[string]any{
		"class": collectionName,
		"vectorizer": "text2vec-openai",
		"moduleConfig": map[string]any{
			"text2vec-openai": map[string]any{
				"model": c.cfg.EmbeddingModel,
			},
		},
		"properties": []map[string]any{
			{"name": "tool_id", "dataType": []string{"text"}},
			{"name": "name", "dataType": []string{"text"}},
			{"name": "description", "dataType": []string{"text"}},
			{"name": "source_type", "dataType": []string{"text"}},
			{"name": "tool_type", "dataType": []string{"text"}},
			{"name": "tags", "dataType": []string{"text[]"}},
			{"name": "json_schema", "dataType": []string{"text"}},
			{"name": "mcp_server_name", "dataType": []string{"text"}},
		},
	}
	resp, err = c.http.R().SetContext(ctx).SetBody(body).Post("/schema")
	if err != nil {
		return apierr.New(apierr.KindTransport, "ensure schema: create", err)
	}
	if resp.StatusCode() >= 300 {
		return apierr.New(apierr.KindTransport, fmt.Sprintf("ensure schema: create failed %s: %s", resp.Status(), resp.String()), nil)
	}
	return nil
}

// toolProperties builds the flat property map the REST object API expects.
func toolProperties(t catalog.Tool) map[string]any {
	return map[string]any{
		"tool_id":         t.ID,
		"name":            t.Name,
		"description":     t.Description,
		"source_type":     t.SourceType,
		"tool_type":       t.ToolType,
		"tags":            t.Tags,
		"json_schema":     string(t.JSONSchema),
		"mcp_server_name": t.MCPServerName,
	}
}

// UpsertObject creates or replaces the Vector Store object for t, keyed by
// its deterministic name-derived id.
func (c *Client) UpsertObject(ctx context.Context, t catalog.Tool) error {
	id := ObjectID(t.Name)
	body := map[string]any{
		"class":      collectionName,
		"id":         id,
		"properties": toolProperties(t),
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Put("/objects/" + id)
	if err != nil {
		return apierr.New(apierr.KindTransport, "upsert object: transport", err)
	}
	switch {
	case resp.StatusCode() == http.StatusOK:
		return nil
	case resp.StatusCode() == http.StatusNotFound:
		resp, err = c.http.R().SetContext(ctx).SetBody(body).Post("/objects")
		if err != nil {
			return apierr.New(apierr.KindTransport, "upsert object: create", err)
		}
		if resp.StatusCode() >= 300 {
			return apierr.New(apierr.KindTransport, fmt.Sprintf("upsert object: create failed %s", resp.Status()), nil)
		}
		return nil
	case resp.StatusCode() >= 300:
		return apierr.New(apierr.KindTransport, fmt.Sprintf("upsert object: replace failed %s", resp.Status()), nil)
	}
	return nil
}

// UpdateMCPServerName backfills the mcp_server_name property on an existing
// object in place, per sync_service.py's external_mcp backfill tail.
func (c *Client) UpdateMCPServerName(ctx context.Context, id, serverName string) error {
	body := map[string]any{
		"properties": map[string]any{"mcp_server_name": serverName},
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Patch("/objects/" + collectionName + "/" + id)
	if err != nil {
		return apierr.New(apierr.KindTransport, "backfill mcp_server_name: transport", err)
	}
	if resp.StatusCode() >= 300 && resp.StatusCode() != http.StatusNotFound {
		return apierr.New(apierr.KindTransport, fmt.Sprintf("backfill mcp_server_name: %s", resp.Status()), nil)
	}
	return nil
}

// DeleteByFilter deletes every object whose name property equals name.
func (c *Client) DeleteByFilter(ctx context.Context, name string) error {
	body := map[string]any{
		"match": map[string]any{
			"class": collectionName,
			"where": map[string]any{
				"path":      []string{"name"},
				"operator":  "Equal",
				"valueText": name,
			},
		},
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(body).Delete("/batch/objects")
	if err != nil {
		return apierr.New(apierr.KindTransport, "delete by filter: transport", err)
	}
	if resp.StatusCode() >= 300 {
		return apierr.New(apierr.KindTransport, fmt.Sprintf("delete by filter: %s", resp.Status()), nil)
	}
	return nil
}

// StoredObject is one Vector Store object as returned by FetchAll/FetchByID.
type StoredObject struct {
	ID         string
	Name       string
	Properties map[string]any
	Vector     []float64
}

type objectsListResponse struct {
	Objects []struct {
		ID         string         `json:"id"`
		Class      string         `json:"class"`
		Properties map[string]any `json:"properties"`
		Vector     []float64      `json:"vector,omitempty"`
	} `json:"objects"`
}

// FetchAll lists up to limit objects in the Tool collection.
func (c *Client) FetchAll(ctx context.Context, limit int) ([]StoredObject, error) {
	if limit <= 0 {
		limit = 10000
	}
	var page objectsListResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("class", collectionName).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&page).
		Get("/objects")
	if err != nil {
		return nil, apierr.New(apierr.KindTransport, "fetch all: transport", err)
	}
	if resp.StatusCode() >= 300 {
		return nil, apierr.New(apierr.KindTransport, fmt.Sprintf("fetch all: %s", resp.Status()), nil)
	}
	out := make([]StoredObject, 0, len(page.Objects))
	for _, o := range page.Objects {
		name, _ := o.Properties["name"].(string)
		out = append(out, StoredObject{ID: o.ID, Name: name, Properties: o.Properties, Vector: o.Vector})
	}
	return out, nil
}

// FetchByID retrieves a single object including its vector, per
// weaviate_tool_search.py:get_tool_embedding_by_id's fetch_objects step. A
// vector is only considered usable when it has more than one element.
func (c *Client) FetchByID(ctx context.Context, id string) (*StoredObject, error) {
	var raw struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
		Vector     []float64      `json:"vector,omitempty"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("include", "vector").
		SetResult(&raw).
		Get("/objects/" + id)
	if err != nil {
		return nil, apierr.New(apierr.KindTransport, "fetch by id: transport", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, apierr.New(apierr.KindNotFound, "object not found", nil)
	}
	if resp.StatusCode() >= 300 {
		return nil, apierr.New(apierr.KindTransport, fmt.Sprintf("fetch by id: %s", resp.Status()), nil)
	}
	name, _ := raw.Properties["name"].(string)
	return &StoredObject{ID: raw.ID, Name: name, Properties: raw.Properties, Vector: raw.Vector}, nil
}

// SearchResult is one hit from HybridSearch: a tool descriptor plus its
// Vector Store match quality, mapped to distance = 1 - score per spec.
type SearchResult struct {
	Tool     catalog.Tool
	Distance float64
}

type graphQLResponse struct {
	Data struct {
		Get struct {
			Tool []map[string]any `json:"Tool"`
		} `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// HybridSearch issues the vector-weighted hybrid query
// weaviate_tool_search.py:search_tools uses: alpha=0.75 over
// name^2/description^1.5/tags, converting score to distance. Results keep the
// order the Vector Store returned them in; search.Searcher sorts them by
// ascending distance.
func (c *Client) HybridSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	gql := fmt.Sprintf(`{
  Get {
    Tool(
      hybrid: {query: %q, alpha: 0.75, properties: ["name^2","description^1.5","tags"]}
      limit: %d
    ) {
      tool_id
      name
      description
      source_type
      tool_type
      tags
      json_schema
      mcp_server_name
      _additional { score }
    }
  }
}`, query, limit)

	var gr graphQLResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"query": gql}).
		SetResult(&gr).
		Post("/graphql")
	if err != nil {
		return nil, apierr.New(apierr.KindTransport, "hybrid search: transport", err)
	}
	if resp.StatusCode() >= 300 {
		return nil, apierr.New(apierr.KindTransport, fmt.Sprintf("hybrid search: %s", resp.Status()), nil)
	}
	if len(gr.Errors) > 0 {
		return nil, apierr.New(apierr.KindTransport, fmt.Sprintf("hybrid search: graphql error: %s", gr.Errors[0].Message), nil)
	}

	results := make([]SearchResult, 0, len(gr.Data.Get.Tool))
	for _, obj := range gr.Data.Get.Tool {
		t := toolFromGraphQL(obj)
		score := 0.5
		if additional, ok := obj["_additional"].(map[string]any); ok {
			if s, ok := additional["score"].(float64); ok {
				score = s
			} else if s, ok := additional["score"].(string); ok {
				var parsed float64
				if _, scanErr := fmt.Sscanf(s, "%f", &parsed); scanErr == nil {
					score = parsed
				}
			}
		}
		results = append(results, SearchResult{Tool: t, Distance: 1 - score})
	}
	return results, nil
}

func toolFromGraphQL(obj map[string]any) catalog.Tool {
	str := func(k string) string {
		v, _ := obj[k].(string)
		return v
	}
	var tags []string
	if raw, ok := obj["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	return catalog.Tool{
		ID:            str("tool_id"),
		Name:          str("name"),
		Description:   str("description"),
		ToolType:      str("tool_type"),
		SourceType:    str("source_type"),
		Tags:          tags,
		JSONSchema:    json.RawMessage(str("json_schema")),
		MCPServerName: str("mcp_server_name"),
	}
}

// GraphQLNearText extracts the vector the text2vec-openai vectorizer would
// assign to text, per get_embedding_for_text's nearText probe. Returns an
// empty slice (never an error) on any extraction failure, so callers fall
// back to EmbeddingForText's direct-provider path.
func (c *Client) GraphQLNearText(ctx context.Context, text string) []float64 {
	gql := fmt.Sprintf(`{
  Get {
    Tool(limit: 1, nearText: {concepts: [%q]}) {
      _additional { vector }
    }
  }
}`, text)

	var gr graphQLResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"query": gql}).
		SetResult(&gr).
		Post("/graphql")
	if err != nil || resp.StatusCode() >= 300 || len(gr.Errors) > 0 {
		return nil
	}
	if len(gr.Data.Get.Tool) == 0 {
		return nil
	}
	additional, ok := gr.Data.Get.Tool[0]["_additional"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := additional["vector"].([]any)
	if !ok {
		return nil
	}
	vec := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		vec = append(vec, f)
	}
	return vec
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbeddingForText is get_embedding_for_text: try the Vector Store's own
// vectorizer via GraphQL first, then fall back to calling the embedding
// provider directly.
func (c *Client) EmbeddingForText(ctx context.Context, text string) ([]float64, error) {
	if vec := c.GraphQLNearText(ctx, text); len(vec) > 1 {
		return vec, nil
	}
	return c.embeddingDirect(ctx, text)
}

// embeddingDirect calls the embedding provider's HTTP API directly,
// mirroring _get_embedding_direct_openai verbatim.
func (c *Client) embeddingDirect(ctx context.Context, text string) ([]float64, error) {
	if c.cfg.EmbeddingAPIKey == "" {
		c.logger.Warn("embedding direct fallback: no api key configured")
		return nil, apierr.New(apierr.KindEngine, "no embedding provider key configured", nil)
	}
	model := c.cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	var result embeddingResponse
	resp, err := resty.New().R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.cfg.EmbeddingAPIKey).
		SetBody(map[string]any{"model": model, "input": text}).
		SetResult(&result).
		Post("https://api.openai.com/v1/embeddings")
	if err != nil {
		return nil, apierr.New(apierr.KindTransport, "direct embedding: transport", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apierr.New(apierr.KindTransport, fmt.Sprintf("direct embedding: %s", resp.Status()), nil)
	}
	if len(result.Data) == 0 {
		return nil, apierr.New(apierr.KindEngine, "direct embedding: empty response", nil)
	}
	return result.Data[0].Embedding, nil
}

// GetToolEmbeddingByID is get_tool_embedding_by_id: a direct fetch-with-
// vector first, falling back to a nearText GraphQL probe filtered to id.
func (c *Client) GetToolEmbeddingByID(ctx context.Context, toolID string) ([]float64, error) {
	obj, err := c.FetchByID(ctx, toolID)
	if err == nil && len(obj.Vector) > 1 {
		return obj.Vector, nil
	}
	if vec := c.nearTextByID(ctx, toolID); len(vec) > 1 {
		return vec, nil
	}
	return nil, nil
}

func (c *Client) nearTextByID(ctx context.Context, toolID string) []float64 {
	gql := fmt.Sprintf(`{
  Get {
    Tool(where: {operator: Equal, path: ["id"], valueString: %q}, limit: 1) {
      _additional { vector }
    }
  }
}`, toolID)
	var gr graphQLResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"query": gql}).
		SetResult(&gr).
		Post("/graphql")
	if err != nil || resp.StatusCode() >= 300 || len(gr.Errors) > 0 || len(gr.Data.Get.Tool) == 0 {
		return nil
	}
	additional, ok := gr.Data.Get.Tool[0]["_additional"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := additional["vector"].([]any)
	if !ok {
		return nil
	}
	vec := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		vec = append(vec, f)
	}
	return vec
}
