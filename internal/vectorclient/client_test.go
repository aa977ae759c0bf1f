package vectorclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolmesh/orchestrator/internal/apierr"
	"github.com/toolmesh/orchestrator/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	c, err := New(Config{HTTPHost: u.Hostname(), HTTPPort: port, GRPCHost: u.Hostname(), GRPCPort: 1}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestObjectID_Deterministic(t *testing.T) {
	a := ObjectID("my-tool")
	b := ObjectID("my-tool")
	require.Equal(t, a, b)
	require.NotEqual(t, a, ObjectID("other-tool"))
}

func TestEnsureSchema_CreatesWhenMissing(t *testing.T) {
	var created bool
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/schema/Tool":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
			created = true
			w.WriteHeader(http.StatusOK)
		}
	})
	defer srv.Close()

	err := c.EnsureSchema(context.Background())
	require.NoError(t, err)
	require.True(t, created)
}

func TestEnsureSchema_NoOpWhenPresent(t *testing.T) {
	var postCalled bool
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			postCalled = true
		}
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := c.EnsureSchema(context.Background())
	require.NoError(t, err)
	require.False(t, postCalled)
}

func TestUpsertObject_ReplacesExisting(t *testing.T) {
	var method string
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := c.UpsertObject(context.Background(), catalog.Tool{Name: "my-tool", Description: "desc"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, method)
}

func TestUpsertObject_CreatesWhenAbsent(t *testing.T) {
	var methods []string
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := c.UpsertObject(context.Background(), catalog.Tool{Name: "my-tool"})
	require.NoError(t, err)
	require.Equal(t, []string{http.MethodPut, http.MethodPost}, methods)
}

func TestDeleteByFilter_TransportError(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	err := c.DeleteByFilter(context.Background(), "my-tool")
	require.Error(t, err)
	require.True(t, apierr.Is(err, apierr.KindTransport))
}

func TestDeleteCollection_NotFoundIsNotError(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	err := c.DeleteCollection(context.Background())
	require.NoError(t, err)
}

func TestFetchAll_ParsesObjects(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"objects": []map[string]any{
				{"id": "v1", "class": "Tool", "properties": map[string]any{"name": "tool-one"}},
			},
		})
	})
	defer srv.Close()

	objs, err := c.FetchAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "tool-one", objs[0].Name)
}

func TestHybridSearch_ConvertsScoreToDistance(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"Get": map[string]any{
					"Tool": []map[string]any{
						{
							"tool_id": "t1", "name": "tool-one",
							"_additional": map[string]any{"score": 0.9},
						},
					},
				},
			},
		})
	})
	defer srv.Close()

	results, err := c.HybridSearch(context.Background(), "find a tool", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 0.1, results[0].Distance, 1e-9)
	require.Equal(t, "tool-one", results[0].Tool.Name)
}

func TestHybridSearch_GraphQLErrorSurfaces(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"message": "boom"}},
		})
	})
	defer srv.Close()

	_, err := c.HybridSearch(context.Background(), "query", 5)
	require.Error(t, err)
}

func TestReady_TrueWhenRESTReadyProbeSucceeds(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/.well-known/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	require.True(t, c.Ready(context.Background()))
}
