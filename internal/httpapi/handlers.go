package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/toolmesh/orchestrator/internal/catalog"
)

func (s *Server) handleAttach(c echo.Context) error {
	var req AttachRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "agent_id is required"})
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	result, err := s.engine.Attach(c.Request().Context(), req.AgentID, req.Query, limit, req.KeepTools)
	if err != nil {
		s.logger.Error("attach failed", "agent_id", req.AgentID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handlePrune(c echo.Context) error {
	var req PruneRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "agent_id is required"})
	}
	if req.DropRate < 0 || req.DropRate > 1 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "drop_rate must be within [0, 1]"})
	}

	result, err := s.engine.Prune(c.Request().Context(), req.AgentID, req.UserPrompt, req.DropRate, req.KeepToolIDs, req.NewlyMatchedToolIDs)
	if err != nil {
		s.logger.Error("prune failed", "agent_id", req.AgentID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSync(c echo.Context) error {
	if err := s.scheduler.TriggerNow(c.Request().Context()); err != nil {
		s.logger.Error("manual sync failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, SyncResponse{Message: "sync completed"})
}

func (s *Server) handleListTools(c echo.Context) error {
	tools := s.toolCache.read(false)
	if tools == nil {
		tools = []catalog.Tool{}
	}
	return c.JSON(http.StatusOK, tools)
}

func (s *Server) handleHealth(c echo.Context) error {
	vectorReady := s.vectorStore.Ready(c.Request().Context())
	toolLoaded := s.toolCache.loaded()
	mcpReadable := s.mcpReadable()

	status := "OK"
	reason := ""
	switch {
	case !vectorReady:
		status = "ERROR"
		reason = "vector store unreachable"
	case !toolLoaded || !mcpReadable:
		status = "DEGRADED"
		if !toolLoaded {
			reason = "tool cache never loaded"
		} else {
			reason = "mcp server cache unreadable"
		}
	}

	resp := HealthResponse{
		Status: status,
		Details: HealthDetails{
			VectorStoreReady: vectorReady,
			ToolCacheLoaded:  toolLoaded,
			MCPCacheReadable: mcpReadable,
			Reason:           reason,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if status != "OK" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
