// Package api exposes run submission, schedules and cluster state over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"benchrun/pkg/api/middleware"
	"benchrun/pkg/auth"
	"benchrun/pkg/coordination"
	"benchrun/pkg/executor"
	"benchrun/pkg/logger"
	"benchrun/pkg/storage"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server encapsulates the HTTP API server and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        *zap.Logger
	stop       context.CancelFunc

	requests    storage.RequestStore
	schedules   storage.ScheduleStore
	summaries   storage.SummaryStore
	reports     storage.ReportStore
	queue       storage.Queue
	coordinator coordination.Coordinator
	election    coordination.Election
	facade      executor.Facade
	apiKeys     auth.APIKeyStore
	validator   *middleware.Validator
	checks      map[string]HealthCheck

	authEnforced  bool
	anonymous     bool
	artifactsPath string
	syncTimeout   time.Duration
}

// Config holds API server configuration. Reports, Election, Facade and the
// auth sources are optional; the routes that need them answer 501 without.
type Config struct {
	Port        string
	Requests    storage.RequestStore
	Schedules   storage.ScheduleStore
	Summaries   storage.SummaryStore
	Reports     storage.ReportStore
	Queue       storage.Queue
	Coordinator coordination.Coordinator
	Election    coordination.Election
	Facade      executor.Facade

	Auth         middleware.AuthConfig
	Validation   middleware.ValidatorConfig
	RateLimit    middleware.RateLimiterConfig
	HealthChecks map[string]HealthCheck

	// AllowAnonymous opens the operator routes when Auth has no source.
	// Without it those routes answer 403, since they compile and run
	// caller-supplied code.
	AllowAnonymous bool

	ArtifactsPath string
	SyncTimeout   time.Duration
}

// NewServer creates a new API server with all dependencies.
func NewServer(cfg Config) *Server {
	if cfg.Validation.MaxBodySize == 0 {
		cfg.Validation = middleware.DefaultValidatorConfig()
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit = middleware.DefaultRateLimiterConfig()
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Minute
	}

	ctx, stop := context.WithCancel(context.Background())
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit)

	router := gin.New()

	// Order matters: the request ID must exist before tracing and logging.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/metrics"))
	router.Use(requestLogger(logger.Named("api")))
	router.Use(limiter.Middleware())
	router.Use(middleware.BodySizeLimitMiddleware(cfg.Validation.MaxBodySize))

	s := &Server{
		router:        router,
		log:           logger.Named("api"),
		stop:          stop,
		requests:      cfg.Requests,
		schedules:     cfg.Schedules,
		summaries:     cfg.Summaries,
		reports:       cfg.Reports,
		queue:         cfg.Queue,
		coordinator:   cfg.Coordinator,
		election:      cfg.Election,
		facade:        cfg.Facade,
		apiKeys:       cfg.Auth.APIKeyStore,
		validator:     middleware.NewValidator(cfg.Validation),
		checks:        cfg.HealthChecks,
		authEnforced:  cfg.Auth.Enabled(),
		anonymous:     cfg.AllowAnonymous,
		artifactsPath: cfg.ArtifactsPath,
		syncTimeout:   cfg.SyncTimeout,
	}

	s.registerRoutes(cfg.Auth)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.SyncTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info("Starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	s.stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(authCfg middleware.AuthConfig) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	if s.authEnforced {
		v1.Use(middleware.AuthMiddleware(authCfg))
	}
	viewer := middleware.RequireRole(auth.RoleViewer, s.authEnforced)
	operator := middleware.RequireRole(auth.RoleOperator, s.authEnforced)
	if !s.authEnforced && !s.anonymous {
		operator = refuseAnonymous
	}
	admin := middleware.RequireRole(auth.RoleAdmin, s.authEnforced)

	runs := v1.Group("/runs")
	{
		runs.POST("", operator, s.createRun)
		runs.POST("/sync", operator, s.runSync)
		runs.GET("", viewer, s.listRuns)
		runs.GET("/:id", viewer, s.getRun)
	}

	v1.GET("/summaries/:id", viewer, s.getSummary)
	v1.GET("/summaries/:id/report", viewer, s.getSummaryReport)

	schedules := v1.Group("/schedules")
	{
		schedules.POST("", operator, s.createSchedule)
		schedules.GET("", viewer, s.listSchedules)
		schedules.GET("/:id", viewer, s.getSchedule)
		schedules.PATCH("/:id", operator, s.updateSchedule)
		schedules.DELETE("/:id", operator, s.deleteSchedule)
		schedules.POST("/:id/trigger", operator, s.triggerSchedule)
	}

	cluster := v1.Group("/cluster")
	{
		cluster.GET("/nodes", viewer, s.listNodes)
		cluster.GET("/leader", viewer, s.getLeader)
	}

	keys := v1.Group("/apikeys", admin)
	{
		keys.POST("", s.createAPIKey)
		keys.GET("", s.listAPIKeys)
		keys.DELETE("/:id", s.revokeAPIKey)
	}
}

func refuseAnonymous(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error": "authentication is not configured; set JWT_SECRET or API_KEY_AUTH, or ALLOW_ANONYMOUS=true",
	})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Request failed", fields...)
			return
		}
		log.Info("Request", fields...)
	}
}

// healthCheck runs every configured probe. Any failure degrades the status.
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}

	status, httpStatus := "healthy", http.StatusOK
	if !healthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC(),
	})
}
