package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	handlers "github.com/GriffinCanCode/toolpad/internal/api/http"
	"github.com/GriffinCanCode/toolpad/internal/api/middleware"
	"github.com/GriffinCanCode/toolpad/internal/datasource"
	"github.com/GriffinCanCode/toolpad/internal/datasource/function"
	"github.com/GriffinCanCode/toolpad/internal/domain/app"
	"github.com/GriffinCanCode/toolpad/internal/domain/release"
	"github.com/GriffinCanCode/toolpad/internal/fetch"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/config"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/toolpad/internal/rpc"
	"github.com/GriffinCanCode/toolpad/internal/sandbox"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	host    *sandbox.Host
	store   *app.Store
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// Option configures a Server
type Option func(*options)

type options struct {
	logger *logging.Logger
}

// WithLogger replaces the logger built from the configuration
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing server",
		zap.String("addr", cfg.Server.Address()),
		zap.Duration("sandbox_timeout", cfg.Sandbox.Timeout),
		zap.Int("sandbox_pool", cfg.Sandbox.PoolSize),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("toolpad", logger.Logger)

	fetcher, err := fetch.NewClient(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyMB) << 20,
		AllowedHosts: cfg.Fetch.AllowedHosts,
		RateLimit:    cfg.Fetch.RateLimit,
		UserAgent:    fetch.DefaultConfig().UserAgent,
	}, fetch.WithRecorder(metrics), fetch.WithLogger(logger.Logger))
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create fetch client: %w", err)
	}

	host, err := sandbox.NewHost(SandboxConfig(cfg.Sandbox), fetcher, logger.Logger,
		sandbox.WithRecorder(metrics))
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create sandbox host: %w", err)
	}

	store := app.NewStore(logger.Logger)
	metrics.ObserveStore(store.Counts)
	if cfg.Store.SeedDir != "" {
		if _, _, err := app.NewSeeder(store, cfg.Store.SeedDir, logger.Logger).Seed(); err != nil {
			logger.Warn("Failed to seed apps", zap.Error(err))
		}
	}

	sources := datasource.NewRegistry()
	sources.Register(function.ID, function.New(host, tracer, logger.Logger))

	var releases *release.Checker
	if cfg.Releases.URL != "" {
		releases = release.NewChecker(release.Config{
			URL:      cfg.Releases.URL,
			CacheTTL: cfg.Releases.CacheTTL,
		}, logger.Logger)
	}

	registry, err := rpc.NewRegistry(handlers.Methods(handlers.Services{
		Store:    store,
		Data:     datasource.NewService(store, sources),
		Releases: releases,
	}))
	if err != nil {
		_ = host.Close()
		tracer.Close()
		return nil, err
	}
	dispatcher := rpc.NewDispatcher(registry, logger.Logger,
		rpc.WithMetrics(metrics),
		rpc.WithRedactedStacks(cfg.RPC.RedactStacks),
	)

	h := handlers.NewHandlers(handlers.Deps{
		Dispatcher: dispatcher,
		Registry:   registry,
		Store:      store,
		Sources:    sources,
		Sandbox:    host,
		Breakers:   fetcher,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     logger.Logger,
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", h.MetricsJSON)

	api := router.Group("/api")

	rpcCORS := middleware.CORS(middleware.DefaultCORSConfig())
	rpcHandlers := []gin.HandlerFunc{rpcCORS}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rpcHandlers = append(rpcHandlers, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	api.POST("/rpc", append(rpcHandlers, h.RPC)...)
	api.OPTIONS("/rpc", rpcCORS)

	publicCORS := middleware.CORS(middleware.PublicReadCORSConfig())
	api.GET("/app-dom/:appId", publicCORS, h.AppDom)
	api.OPTIONS("/app-dom/:appId", publicCORS)

	logger.Info("Server initialized successfully",
		zap.Int("rpc_methods", len(registry.Methods())),
		zap.Strings("data_sources", sources.IDs()),
	)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Server.Address(),
			Handler:           gzhttp.GzipHandler(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
		host:    host,
		store:   store,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// SandboxConfig maps the environment configuration onto host limits.
func SandboxConfig(c config.SandboxConfig) sandbox.Config {
	return sandbox.Config{
		Timeout:           c.Timeout,
		MaxMemoryMB:       int64(c.MaxMemoryMB),
		PoolSize:          c.PoolSize,
		MaxCallStackSize:  c.MaxCallStackSize,
		MaxConsoleEntries: c.MaxConsoleEntries,
	}
}

// Handler returns the root handler, compression included.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Store returns the app store backing the RPC methods.
func (s *Server) Store() *app.Store {
	return s.store
}

// Run starts the HTTP server and blocks until it stops. A graceful
// Shutdown makes it return nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return s.Close()
}

// Close releases the sandbox pool and flushes spans and logs.
func (s *Server) Close() error {
	if err := s.host.Close(); err != nil {
		s.logger.Error("Failed to close sandbox host", zap.Error(err))
		return fmt.Errorf("failed to close sandbox host: %w", err)
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return nil
}
