package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/replaypatch/internal/api/http"
	"github.com/GriffinCanCode/replaypatch/internal/api/middleware"
	"github.com/GriffinCanCode/replaypatch/internal/api/ws"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/config"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/replaypatch/internal/providers/browser"
	"github.com/GriffinCanCode/replaypatch/internal/providers/http/client"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	provider *browser.Provider
	tracer   *tracing.Tracer
	logger   *zap.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	logger.Info("Initializing patch service",
		zap.String("addr", cfg.Addr()),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.String("archive", cfg.Replay.ArchiveOrigin),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("patchd", logger)

	httpClient := client.NewClient(
		client.WithConfig(ClientConfig(cfg)),
		client.WithLogger(logger),
	)
	provider, err := browser.New(ProviderConfig(cfg),
		browser.WithClient(httpClient),
		browser.WithLogger(logger),
		browser.WithMetrics(metrics),
		browser.WithTracer(tracer),
	)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create page provider: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Logger(logger.Named("access")))

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowOrigins
	}
	router.Use(middleware.CORS(corsCfg))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))

	handlers := api.NewHandlers(provider, httpClient, logger, cfg.Replay.RunScripts)
	wsHandler := ws.NewHandler(provider, logger, originAllowed(corsCfg.AllowOrigins))

	handlers.Register(router)
	router.GET("/v1/session", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		provider: provider,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the service collector
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the runtime pool and flushes buffered spans
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	err := s.provider.Close()
	if err != nil {
		s.logger.Error("Failed to close page provider", zap.Error(err))
	}
	s.tracer.Close()
	_ = s.logger.Sync()

	return err
}

// ProviderConfig maps service configuration onto the page provider
func ProviderConfig(cfg *config.Config) browser.Config {
	pc := browser.DefaultConfig()
	pc.PoolSize = cfg.Sandbox.PoolSize
	pc.Sandbox.Timeout = cfg.Sandbox.Timeout.Std()
	pc.Sandbox.MaxTimers = cfg.Sandbox.MaxTimers
	pc.Sandbox.EnableConsole = cfg.Sandbox.Console
	pc.Sandbox.EnableFetch = cfg.Sandbox.Network
	if cfg.Replay.ArchiveOrigin != "" {
		if archive, err := rewrite.ArchiveFromOrigin(cfg.Replay.ArchiveOrigin, cfg.Replay.ServerBase); err == nil {
			pc.Archive = archive
		}
	}
	return pc
}

// ClientConfig maps fetch configuration onto the HTTP client
func ClientConfig(cfg *config.Config) client.Config {
	return client.Config{
		Timeout:      cfg.Fetch.Timeout.Std(),
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryWaitMin: cfg.Fetch.RetryWaitMin.Std(),
		RetryWaitMax: cfg.Fetch.RetryWaitMax.Std(),
		RateLimit:    cfg.Fetch.RateLimit,
		UserAgent:    cfg.Fetch.UserAgent,
	}
}

func originAllowed(origins []string) func(string) bool {
	if slices.Contains(origins, "*") {
		return nil
	}
	return func(origin string) bool {
		return slices.Contains(origins, origin)
	}
}
