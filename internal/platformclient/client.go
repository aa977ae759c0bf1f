// Package platformclient is a typed wrapper over the Agent Platform REST
// API: pooled connections, timeouts, and retries, per spec.md §4.A.
package platformclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/toolmesh/orchestrator/internal/apierr"
	"github.com/toolmesh/orchestrator/internal/catalog"
)

// Config configures the Agent Platform client.
type Config struct {
	BaseURL     string
	SharedSecret string
	Timeout     time.Duration
	MaxRetries  int
}

// Client is a pooled HTTP client against the Agent Platform.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New builds a Client with a shared connection pool, per-request timeout,
// and retry-with-backoff on transport errors and 5xx responses.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})

	if cfg.SharedSecret != "" {
		rc.SetHeader("Authorization", cfg.SharedSecret)
	}

	return &Client{http: rc, logger: logger}
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// classify maps a response/err pair to the apierr.Kind the rest of the
// engine reasons about.
func classify(resp *resty.Response, err error, notFoundIsSuccess bool) error {
	if err != nil {
		return apierr.New(apierr.KindTransport, "request failed", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		if notFoundIsSuccess {
			return nil
		}
		return apierr.New(apierr.KindNotFound, "entity not found", nil)
	case resp.StatusCode() == http.StatusConflict:
		return nil
	case resp.StatusCode() >= 500:
		return apierr.New(apierr.KindTransport, fmt.Sprintf("server error: %s", resp.Status()), nil)
	case resp.StatusCode() >= 400:
		return apierr.New(apierr.KindInput, fmt.Sprintf("client error: %s", resp.Status()), nil)
	}
	return nil
}

// GetAgent fetches agent metadata.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*catalog.Agent, error) {
	var agent catalog.Agent
	resp, err := c.req(ctx).SetResult(&agent).Get("/agents/" + agentID)
	if e := classify(resp, err, false); e != nil {
		return nil, fmt.Errorf("get agent %s: %w", agentID, e)
	}
	if agent.ID == "" {
		agent.ID = agentID
	}
	return &agent, nil
}

// ListAgentTools returns the tools currently attached to agentID.
func (c *Client) ListAgentTools(ctx context.Context, agentID string) ([]catalog.Tool, error) {
	var tools []catalog.Tool
	resp, err := c.req(ctx).SetResult(&tools).Get("/agents/" + agentID + "/tools")
	if e := classify(resp, err, false); e != nil {
		return nil, fmt.Errorf("list agent tools %s: %w", agentID, e)
	}
	return tools, nil
}

type pagedToolsResponse struct {
	Tools      []catalog.Tool `json:"tools"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListPlatformTools returns one page of the platform's full tool listing.
// An empty after starts from the beginning; a non-empty next_cursor in the
// response means another page is available.
func (c *Client) ListPlatformTools(ctx context.Context, after string) ([]catalog.Tool, string, error) {
	req := c.req(ctx)
	if after != "" {
		req.SetQueryParam("after", after)
	}
	var page pagedToolsResponse
	resp, err := req.SetResult(&page).Get("/tools")
	if e := classify(resp, err, false); e != nil {
		return nil, "", fmt.Errorf("list platform tools: %w", e)
	}
	return page.Tools, page.NextCursor, nil
}

// ListMCPServers returns every MCP server currently registered with the
// platform.
func (c *Client) ListMCPServers(ctx context.Context) ([]catalog.MCPServer, error) {
	var servers []catalog.MCPServer
	resp, err := c.req(ctx).SetResult(&servers).Get("/tools/mcp/servers")
	if e := classify(resp, err, false); e != nil {
		return nil, fmt.Errorf("list mcp servers: %w", e)
	}
	return servers, nil
}

type pagedMCPToolsResponse struct {
	Tools   []catalog.Tool `json:"tools"`
	HasMore bool           `json:"has_more"`
}

// ListMCPServerTools returns one page of serverName's tool list.
func (c *Client) ListMCPServerTools(ctx context.Context, serverName, page string) ([]catalog.Tool, bool, error) {
	req := c.req(ctx)
	if page != "" {
		req.SetQueryParam("page", page)
	}
	var result pagedMCPToolsResponse
	resp, err := req.SetResult(&result).Get("/tools/mcp/servers/" + serverName + "/tools")
	if e := classify(resp, err, false); e != nil {
		return nil, false, fmt.Errorf("list mcp server tools %s: %w", serverName, e)
	}
	for i := range result.Tools {
		if result.Tools[i].MCPServerName == "" {
			result.Tools[i].MCPServerName = serverName
		}
		if result.Tools[i].ToolType == "" {
			result.Tools[i].ToolType = catalog.ToolTypeExternalMCP
		}
	}
	return result.Tools, result.HasMore, nil
}

// RegisterMCPTool materializes a federated descriptor as a first-class
// platform tool. Idempotent by (server, name). Per the Open Question in
// spec.md §9, a response that omits both id and tool_id is assigned a
// synthetic "{server}__{name}" id; whether downstream platform operations
// accept this synthetic id is unknown and explicitly not guessed at.
func (c *Client) RegisterMCPTool(ctx context.Context, serverName, toolName string) (*catalog.Tool, error) {
	var tool catalog.Tool
	resp, err := c.req(ctx).SetResult(&tool).Post("/tools/mcp/servers/" + serverName + "/" + toolName)
	if e := classify(resp, err, false); e != nil {
		return nil, fmt.Errorf("register mcp tool %s/%s: %w", serverName, toolName, e)
	}

	if tool.Name == "" {
		tool.Name = toolName
	}
	tool.MCPServerName = serverName
	if tool.ToolType == "" {
		tool.ToolType = catalog.ToolTypeExternalMCP
	}
	if tool.ID == "" {
		tool.ID = fmt.Sprintf("%s__%s", serverName, toolName)
		c.logger.Warn("register_mcp_tool returned no id, using synthetic id",
			"server", serverName, "tool", toolName, "synthetic_id", tool.ID)
	}
	return &tool, nil
}

// AttachTool attaches toolID to agentID. Idempotent: a 404 (tool absent) is
// reported as NotFound, a 409 (already attached) is treated as success.
func (c *Client) AttachTool(ctx context.Context, agentID, toolID string) error {
	resp, err := c.req(ctx).Patch(fmt.Sprintf("/agents/%s/tools/attach/%s", agentID, toolID))
	if e := classify(resp, err, false); e != nil {
		return fmt.Errorf("attach tool %s to agent %s: %w", toolID, agentID, e)
	}
	return nil
}

// DetachTool detaches toolID from agentID. Idempotent: a 404 is reported as
// success (already detached).
func (c *Client) DetachTool(ctx context.Context, agentID, toolID string) error {
	resp, err := c.req(ctx).Patch(fmt.Sprintf("/agents/%s/tools/detach/%s", agentID, toolID))
	if e := classify(resp, err, true); e != nil {
		return fmt.Errorf("detach tool %s from agent %s: %w", toolID, agentID, e)
	}
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		c.logger.Debug("detach: tool already detached", "agent_id", agentID, "tool_id", toolID)
	}
	return nil
}
