package platformclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toolmesh/orchestrator/internal/apierr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 0}, testLogger())
	return c, srv
}

func TestGetAgent_Success(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents/agent-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"id": "agent-1", "name": "Agent One"})
	})
	defer srv.Close()

	agent, err := c.GetAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", agent.ID)
	require.Equal(t, "Agent One", agent.Name)
}

func TestGetAgent_NotFound(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.GetAgent(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestListPlatformTools_FollowsCursor(t *testing.T) {
	calls := 0
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("after") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"tools":       []map[string]string{{"id": "t1", "name": "one"}},
				"next_cursor": "cursor-1",
			})
			return
		}
		require.Equal(t, "cursor-1", r.URL.Query().Get("after"))
		json.NewEncoder(w).Encode(map[string]any{
			"tools": []map[string]string{{"id": "t2", "name": "two"}},
		})
	})
	defer srv.Close()

	page1, next, err := c.ListPlatformTools(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page1, 1)
	require.Equal(t, "cursor-1", next)

	page2, next2, err := c.ListPlatformTools(context.Background(), next)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Equal(t, "", next2)
	require.Equal(t, 2, calls)
}

func TestRegisterMCPTool_SyntheticIDOnMissingID(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "new-tool"})
	})
	defer srv.Close()

	tool, err := c.RegisterMCPTool(context.Background(), "server-a", "new-tool")
	require.NoError(t, err)
	require.Equal(t, "server-a__new-tool", tool.ID)
	require.Equal(t, "server-a", tool.MCPServerName)
}

func TestDetachTool_NotFoundIsSuccess(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	err := c.DetachTool(context.Background(), "agent-1", "tool-1")
	require.NoError(t, err)
}

func TestAttachTool_ConflictIsSuccess(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	defer srv.Close()

	err := c.AttachTool(context.Background(), "agent-1", "tool-1")
	require.NoError(t, err)
}

func TestAttachTool_ServerErrorSurfacesTransportKind(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	err := c.AttachTool(context.Background(), "agent-1", "tool-1")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindTransport))
}

func TestListMCPServerTools_TagsToolType(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tools":    []map[string]string{{"id": "t1", "name": "one"}},
			"has_more": false,
		})
	})
	defer srv.Close()

	tools, hasMore, err := c.ListMCPServerTools(context.Background(), "server-a", "")
	require.NoError(t, err)
	require.False(t, hasMore)
	require.Len(t, tools, 1)
	require.Equal(t, "server-a", tools[0].MCPServerName)
	require.Equal(t, "external_mcp", tools[0].ToolType)
}
