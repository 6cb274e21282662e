package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/codec"
	"github.com/GriffinCanCode/toolpad/internal/datasource"
	"github.com/GriffinCanCode/toolpad/internal/datasource/function"
	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/toolpad/internal/rpc"
	"github.com/GriffinCanCode/toolpad/internal/sandbox"
)

type testServer struct {
	router *gin.Engine
	store  *app.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	host, err := sandbox.NewHost(sandbox.Config{PoolSize: 1}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = host.Close() })

	store := app.NewStore(nil)
	sources := datasource.NewRegistry()
	sources.Register(function.ID, function.New(host, nil, nil))

	registry, err := rpc.NewRegistry(Methods(Services{
		Store: store,
		Data:  datasource.NewService(store, sources),
	}))
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	h := NewHandlers(Deps{
		Dispatcher: rpc.NewDispatcher(registry, zap.NewNop(), rpc.WithMetrics(metrics)),
		Registry:   registry,
		Store:      store,
		Sources:    sources,
		Sandbox:    host,
		Metrics:    metrics,
	})

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.POST("/api/rpc", h.RPC)
	router.GET("/api/app-dom/:appId", h.AppDom)
	router.GET("/health", h.Health)
	router.GET("/metrics/json", h.MetricsJSON)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) call(t *testing.T, kind, name string, params ...any) *httptest.ResponseRecorder {
	t.Helper()
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(map[string]any{"kind": kind, "name": name, "params": params})
	require.NoError(t, err)
	return s.do(t, http.MethodPost, "/api/rpc", body)
}

type envelope struct {
	Result *string         `json:"result"`
	Error  *map[string]any `json:"error"`
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Nil(t, env.Error, "unexpected error envelope: %s", w.Body.String())
	require.NotNil(t, env.Result)
	v, err := codec.Decode(*env.Result)
	require.NoError(t, err)
	return v
}

func TestRPCCreateAndList(t *testing.T) {
	s := newTestServer(t)

	created := decodeResult(t, s.call(t, "mutation", "createApp", "demo")).(map[string]any)
	assert.Equal(t, "demo", created["name"])

	apps := decodeResult(t, s.call(t, "query", "getApps")).([]any)
	require.Len(t, apps, 1)
	assert.Equal(t, created["id"], apps[0].(map[string]any)["id"])
}

func TestRPCLegacyTypeField(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/rpc", []byte(`{"type":"query","name":"getApps","params":[]}`))
	assert.Equal(t, []any{}, decodeResult(t, w))
}

func TestRPCRejectsUnknownMethods(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"unknown name", `{"kind":"query","name":"constructor","params":[]}`},
		{"wrong kind", `{"kind":"mutation","name":"getApps","params":[]}`},
		{"unknown kind", `{"kind":"subscription","name":"getApps","params":[]}`},
		{"prefix", `{"kind":"query","name":"getApp ","params":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/rpc", []byte(tt.body))
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Empty(t, w.Body.String())
		})
	}
}

func TestRPCMalformedBody(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/rpc", []byte(`{"kind":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRPCMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/rpc", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRPCApplicationError(t *testing.T) {
	s := newTestServer(t)
	w := s.call(t, "mutation", "updateApp", "missing", map[string]any{"name": "x"})
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Nil(t, env.Result)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", (*env.Error)["code"])
	assert.Contains(t, (*env.Error)["message"], "not found")
}

func domWithQuery(t *testing.T, module string) (*appdom.Dom, string) {
	t.Helper()
	dom := appdom.New("demo")
	q, err := dom.Add(dom.Root, "queries", &appdom.Node{
		Type:       appdom.TypeQuery,
		Name:       "double",
		DataSource: function.ID,
		Query:      map[string]any{"module": module},
		Params:     map[string]any{"n": float64(1)},
	})
	require.NoError(t, err)
	return dom, q.ID
}

func TestRPCExecQuery(t *testing.T) {
	s := newTestServer(t)
	dom, queryID := domWithQuery(t, `export default async function ({ n }) { return { doubled: n * 2 } }`)
	created, err := s.store.CreateApp("demo", app.CreateOptions{Dom: dom})
	require.NoError(t, err)

	out := decodeResult(t, s.call(t, "query", "execQuery", created.ID, "preview", queryID, map[string]any{"n": 21}))
	assert.Equal(t, map[string]any{"data": map[string]any{"doubled": float64(42)}}, out)
}

func TestRPCExecQueryFunctionFailure(t *testing.T) {
	s := newTestServer(t)
	dom, queryID := domWithQuery(t, `export default function () { return new Promise(() => { throw new Error("late") }) }`)
	created, err := s.store.CreateApp("demo", app.CreateOptions{Dom: dom})
	require.NoError(t, err)

	out := decodeResult(t, s.call(t, "query", "execQuery", created.ID, "preview", queryID)).(map[string]any)
	failure, ok := out["error"].(map[string]any)
	require.True(t, ok, "function failures are reported inside the result: %v", out)
	assert.Contains(t, failure["message"], "late")
	assert.Equal(t, "RUNTIME_ERROR", failure["code"])
}

func TestRPCExecQueryCompileFailureKeepsCode(t *testing.T) {
	s := newTestServer(t)
	dom, queryID := domWithQuery(t, `export default function () {`)
	created, err := s.store.CreateApp("demo", app.CreateOptions{Dom: dom})
	require.NoError(t, err)

	out := decodeResult(t, s.call(t, "query", "execQuery", created.ID, "preview", queryID)).(map[string]any)
	failure, ok := out["error"].(map[string]any)
	require.True(t, ok, "compile failures are reported inside the result: %v", out)
	assert.Equal(t, "COMPILE_ERROR", failure["code"])
}

func TestAppDom(t *testing.T) {
	s := newTestServer(t)
	created, err := s.store.CreateApp("demo", app.CreateOptions{})
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/app-dom/"+created.ID+"?version=preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dom appdom.Dom
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dom))
	assert.Equal(t, "demo", dom.Nodes[dom.Root].Name)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/app-dom/"+created.ID+"?version=4", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/app-dom/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/app-dom/"+created.ID+"?version=x", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodPost, "/api/app-dom/"+created.ID, nil).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	s.call(t, "query", "getApps")

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body["methods"], "query.getApps")
	assert.Contains(t, body["methods"], "mutation.saveDom")
	assert.NotContains(t, body["methods"], "query.getLatestToolpadRelease")
	assert.Equal(t, []any{"function"}, body["data_sources"])
	assert.Contains(t, body, "sandbox")

	metrics := body["metrics"].(map[string]any)
	assert.Equal(t, float64(1), metrics["rpcCalls"])
}

func TestMetricsJSON(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/metrics/json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "server")
	assert.Contains(t, body, "sandbox")
	assert.NotContains(t, body, "fetch_breakers")
}
