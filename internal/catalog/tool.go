// Package catalog defines the tool descriptor and related data model
// shared across the cache, sync, search, and engine packages.
package catalog

import "encoding/json"

// Tool type tags. ExternalMCP tools originate from a federated MCP server
// and must be registered with the Agent Platform before they can be
// attached; any other tag is a core, never-pruned tool.
const (
	ToolTypeNative      = "native"
	ToolTypeExternalMCP = "external_mcp"
)

// Tool is the central entity of the system. Name is the stable identity
// across the Agent Platform and the Vector Store; ID is authoritative only
// within the Agent Platform.
type Tool struct {
	ID            string          `json:"id,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	ToolType      string          `json:"tool_type,omitempty"`
	SourceType    string          `json:"source_type,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	JSONSchema    json.RawMessage `json:"json_schema,omitempty"`
	MCPServerName string          `json:"mcp_server_name,omitempty"`
}

// toolAlias lets Tool accept either "id" or the legacy "tool_id" key on
// decode, mirroring the source's id/tool_id normalization on every tool
// dict it handles. It embeds toolFields, which has Tool's fields but not its
// UnmarshalJSON method, so decoding a toolAlias does not recurse.
type toolFields Tool

type toolAlias struct {
	toolFields
	LegacyToolID string `json:"tool_id,omitempty"`
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	var a toolAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Tool(a.toolFields)
	if t.ID == "" && a.LegacyToolID != "" {
		t.ID = a.LegacyToolID
	}
	return nil
}

// IsExternalMCP reports whether the tool originates from a federated MCP
// server and is therefore a pruning candidate.
func (t *Tool) IsExternalMCP() bool {
	return t.ToolType == ToolTypeExternalMCP
}

// IsObsolete reports whether t is an external_mcp tool whose originating
// server is not present in activeServers.
func (t *Tool) IsObsolete(activeServers map[string]struct{}) bool {
	if !t.IsExternalMCP() {
		return false
	}
	if t.MCPServerName == "" {
		return true
	}
	_, active := activeServers[t.MCPServerName]
	return !active
}

// MCPServer is a federated sub-server registered with the Agent Platform.
type MCPServer struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Agent is the opaque entity the engine attaches and detaches tools on.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// PartitionTools splits tools into core tools (tool_type != external_mcp)
// and MCP tools, deduplicating by ID as the engine requires at attach/prune
// entry.
func PartitionTools(tools []Tool) (core []Tool, mcp []Tool) {
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		if t.IsExternalMCP() {
			mcp = append(mcp, t)
		} else {
			core = append(core, t)
		}
	}
	return core, mcp
}
