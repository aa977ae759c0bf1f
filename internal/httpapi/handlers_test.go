package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/engine"
)

type fakeEngine struct {
	attachResult *engine.AttachResult
	attachErr    error
	pruneResult  *engine.PruneResult
	pruneErr     error
}

func (f *fakeEngine) Attach(_ context.Context, _, _ string, _ int, _ []string) (*engine.AttachResult, error) {
	return f.attachResult, f.attachErr
}

func (f *fakeEngine) Prune(_ context.Context, _, _ string, _ float64, _, _ []string) (*engine.PruneResult, error) {
	return f.pruneResult, f.pruneErr
}

type fakeSyncer struct {
	err   error
	calls int
}

func (f *fakeSyncer) TriggerNow(_ context.Context) error {
	f.calls++
	return f.err
}

type fakeVectorStore struct {
	ready bool
}

func (f *fakeVectorStore) Ready(_ context.Context) bool { return f.ready }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(eng Engine, syncer Syncer, vs VectorStore, tools []catalog.Tool, toolLoaded, mcpReadable bool) *Server {
	return New(eng, syncer, vs, testLogger(),
		func(bool) []catalog.Tool { return tools },
		func() bool { return toolLoaded },
		func() bool { return mcpReadable })
}

func TestHandleAttach_MissingAgentID(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: true}, nil, true, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/attach", strings.NewReader(`{"query":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleAttach(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAttach_Success(t *testing.T) {
	eng := &fakeEngine{attachResult: &engine.AttachResult{Success: true, Message: "ok"}}
	s := newTestServer(eng, &fakeSyncer{}, &fakeVectorStore{ready: true}, nil, true, true)
	e := echo.New()
	body := `{"agent_id":"agent-1","query":"find tools","limit":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/attach", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleAttach(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.AttachResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
}

func TestHandlePrune_InvalidDropRate(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: true}, nil, true, true)
	e := echo.New()
	body := `{"agent_id":"agent-1","user_prompt":"x","drop_rate":1.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/prune", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handlePrune(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSync_DelegatesToScheduler(t *testing.T) {
	syncer := &fakeSyncer{}
	s := newTestServer(&fakeEngine{}, syncer, &fakeVectorStore{ready: true}, nil, true, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/sync", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleSync(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, syncer.calls)
}

func TestHandleListTools_ReturnsCacheContents(t *testing.T) {
	tools := []catalog.Tool{{ID: "t1", Name: "tool-one"}}
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: true}, tools, true, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleListTools(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []catalog.Tool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "tool-one", got[0].Name)
}

func TestHandleHealth_OKWhenEverythingReady(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: true}, nil, true, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleHealth(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "OK", resp.Status)
}

func TestHandleHealth_DegradedWhenToolCacheNotLoaded(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: true}, nil, false, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleHealth(c))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "DEGRADED", resp.Status)
}

func TestHandleHealth_ErrorWhenVectorStoreDown(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeSyncer{}, &fakeVectorStore{ready: false}, nil, true, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.handleHealth(c))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ERROR", resp.Status)
}
