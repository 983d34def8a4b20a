// Package http implements the REST API of the learning progress service.
// Routes are served by gin; every response uses the JSONResponse envelope.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/learning-progress/internal/application/command"
	"github.com/alem-hub/learning-progress/internal/application/query"
	"github.com/alem-hub/learning-progress/internal/application/saga"
	"github.com/alem-hub/learning-progress/internal/interface/http/handlers"
	"github.com/alem-hub/learning-progress/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// EnableMetrics - expose Prometheus metrics on /metrics.
	EnableMetrics bool

	// Mode - gin mode: "debug", "release" or "test".
	Mode string

	// Version is reported in response metadata.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		AllowedOrigins: []string{"http://localhost:3000"},
		EnableMetrics:  true,
		Mode:           gin.ReleaseMode,
		Version:        "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Write side
	Tracker    *command.ProgressTracker
	Engine     *saga.AchievementEngine
	CreateUser *command.CreateUserHandler
	UpdateUser *command.UpdateUserHandler
	DeleteUser *command.DeleteUserHandler

	// Read side. Nil handlers are derived from Tracker and Engine.
	GetProgress *query.GetProgressHandler
	GetUnlocked *query.GetUnlockedAchievementsHandler
	ListCatalog *query.ListCatalogHandler
	GetUser     *query.GetUserHandler

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

func (d *Dependencies) validate() error {
	switch {
	case d.Tracker == nil:
		return errors.New("http: progress tracker is required")
	case d.Engine == nil:
		return errors.New("http: achievement engine is required")
	case d.CreateUser == nil:
		return errors.New("http: create user handler is required")
	case d.UpdateUser == nil:
		return errors.New("http: update user handler is required")
	case d.DeleteUser == nil:
		return errors.New("http: delete user handler is required")
	case d.GetUser == nil:
		return errors.New("http: get user handler is required")
	}

	if d.GetProgress == nil {
		d.GetProgress = query.NewGetProgressHandler(d.Tracker)
	}
	if d.GetUnlocked == nil {
		d.GetUnlocked = query.NewGetUnlockedAchievementsHandler(d.Engine)
	}
	if d.ListCatalog == nil {
		d.ListCatalog = query.NewListCatalogHandler(d.Engine.Catalog())
	}
	if d.HealthChecker == nil {
		d.HealthChecker = handlers.NewNoopHealthChecker()
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the root handler, used by tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	// recovery must wrap everything so panics in other middleware are caught
	s.engine.Use(s.recoveryMiddleware())
	s.engine.Use(requestIDMiddleware())
	s.engine.Use(s.loggingMiddleware())
	if s.config.EnableMetrics {
		s.engine.Use(metricsMiddleware())
	}

	if len(s.config.AllowedOrigins) > 0 {
		s.engine.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", headerRequestID},
			ExposeHeaders:    []string{headerRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "route not found", "")
	})
}

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	if s.config.EnableMetrics {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.engine.Group("/api")

	// ─────────────────────────────────────────────────────────────────────────
	// Progress
	// ─────────────────────────────────────────────────────────────────────────
	progress := api.Group("/progress")
	{
		progress.GET("/:userId", s.handleGetProgress)
		progress.POST("/update/:userId", s.handleReplaceProgress)
		progress.POST("/complete-lesson/:userId", s.handleCompleteLesson)
		progress.POST("/add-study-time/:userId", s.handleAddStudyTime)
		progress.POST("/update-streak/:userId", s.handleUpdateStreak)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Achievements
	// ─────────────────────────────────────────────────────────────────────────
	achievements := api.Group("/achievements")
	{
		achievements.GET("", s.handleListCatalog)
		achievements.GET("/:userId", s.handleGetUnlocked)
		achievements.POST("/check/:userId", s.handleCheckAchievements)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Users
	// ─────────────────────────────────────────────────────────────────────────
	users := api.Group("/users")
	{
		users.POST("", s.handleCreateUser)
		users.GET("/:userId", s.handleGetUser)
		users.PUT("/:userId", s.handleUpdateUser)
		users.DELETE("/:userId", s.handleDeleteUser)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
