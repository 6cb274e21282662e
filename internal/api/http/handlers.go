package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/datasource"
	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/toolpad/internal/rpc"
)

const maxRPCBodyBytes = 10 << 20

// StatsProvider reports component statistics for the health endpoints.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// BreakerReporter exposes per-host circuit breaker states.
type BreakerReporter interface {
	Breakers() map[string]resilience.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	dispatcher *rpc.Dispatcher
	registry   *rpc.Registry
	store      *app.Store
	sources    *datasource.Registry
	sandbox    StatsProvider
	breakers   BreakerReporter
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	logger     *zap.Logger
}

// Deps groups what NewHandlers needs. Sandbox, Breakers, Metrics and
// Tracer may be nil.
type Deps struct {
	Dispatcher *rpc.Dispatcher
	Registry   *rpc.Registry
	Store      *app.Store
	Sources    *datasource.Registry
	Sandbox    StatsProvider
	Breakers   BreakerReporter
	Metrics    *monitoring.Metrics
	Tracer     *tracing.Tracer
	Logger     *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		dispatcher: d.Dispatcher,
		registry:   d.Registry,
		store:      d.Store,
		sources:    d.Sources,
		sandbox:    d.Sandbox,
		breakers:   d.Breakers,
		metrics:    d.Metrics,
		tracer:     d.Tracer,
		logger:     logger,
	}
}

// RPC serves POST /api/rpc. Unknown kinds and methods get an empty 404;
// every dispatched call gets a 200 with a result or error envelope.
func (h *Handlers) RPC(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRPCBodyBytes))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	var req rpc.Request
	if err := sonic.Unmarshal(body, &req); err != nil {
		logging.FromContext(c.Request.Context(), h.logger).Info("Malformed RPC request",
			zap.String("key", "rpc"), zap.Error(err))
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	span, ctx := h.tracer.Start(c.Request.Context(), "rpc."+req.KindName()+"."+req.Name)
	defer span.End()

	resp, err := h.dispatcher.Dispatch(ctx, req, rpc.Call{
		Request:  c.Request,
		Response: c.Writer,
	})
	if resp != nil && resp.Error != nil {
		span.Annotate(zap.Any("code", resp.Error.Code))
		span.Fail(errors.New(resp.Error.Message))
	}
	var notFound *rpc.NotFoundError
	if errors.As(err, &notFound) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

// AppDom serves GET /api/app-dom/:appId?version=preview|<n>.
func (h *Handlers) AppDom(c *gin.Context) {
	version, err := app.ParseVersion(c.Query("version"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dom, err := h.store.LoadDom(c.Param("appId"), version)
	if err != nil {
		status := http.StatusInternalServerError
		var notFound *app.NotFoundError
		if errors.As(err, &notFound) {
			status = http.StatusNotFound
		}
		writeJSON(c, status, gin.H{"error": err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, dom)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":  "online",
		"service": "toolpad",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	methods := []string{}
	if h.registry != nil {
		for _, m := range h.registry.Methods() {
			methods = append(methods, m.Kind().String()+"."+m.String())
		}
	}
	out := gin.H{
		"status":  "healthy",
		"methods": methods,
	}
	if h.store != nil {
		out["store"] = h.store.Stats()
	}
	if h.sources != nil {
		out["data_sources"] = h.sources.IDs()
	}
	if h.sandbox != nil {
		out["sandbox"] = h.sandbox.Stats()
	}
	if h.metrics != nil {
		out["metrics"] = h.metrics.Snapshot()
	}
	writeJSON(c, http.StatusOK, out)
}

// MetricsJSON serves a JSON view of the counters next to component state,
// for dashboards that do not scrape Prometheus.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	out := gin.H{"timestamp": time.Now().UTC()}
	if h.metrics != nil {
		out["server"] = h.metrics.Snapshot()
	}
	if h.sandbox != nil {
		out["sandbox"] = h.sandbox.Stats()
	}
	if h.breakers != nil {
		states := make(map[string]string)
		for host, state := range h.breakers.Breakers() {
			states[host] = state.String()
		}
		out["fetch_breakers"] = states
	}
	writeJSON(c, http.StatusOK, out)
}

func writeJSON(c *gin.Context, status int, v any) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}
