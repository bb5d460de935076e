package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/ai"
	"github.com/postpilot-io/postpilot/internal/api"
	"github.com/postpilot-io/postpilot/internal/config"
	"github.com/postpilot-io/postpilot/internal/metrics"
	"github.com/postpilot-io/postpilot/internal/middleware"
	"github.com/postpilot-io/postpilot/internal/publisher"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/internal/tracing"
	"github.com/postpilot-io/postpilot/pkg/types"
)

const version = "1.0.0"

// Represents the HTTP API server
type Server struct {
	config    *config.Config
	store     store.Store
	generator *ai.Generator
	registry  *publisher.Registry
	tracer    *tracing.Tracer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	router    *gin.Engine
	server    *http.Server
}

func NewServer(cfg *config.Config, st store.Store, generator *ai.Generator, registry *publisher.Registry, tracer *tracing.Tracer, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		config:    cfg,
		store:     st,
		generator: generator,
		registry:  registry,
		tracer:    tracer,
		metrics:   m,
		logger:    logger,
	}

	s.setupRouter()
	s.setupServer()

	return s
}

func (s *Server) setupRouter() {
	if s.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Middleware
	s.router.Use(middleware.RecoveryMiddleware(s.logger))
	s.router.Use(middleware.LoggingMiddleware(s.logger))
	s.router.Use(middleware.CORSMiddleware())
	s.router.Use(s.tracer.GinMiddleware())
	s.router.Use(s.metricsMiddleware())
	if len(s.config.Server.APIKeys) > 0 {
		s.router.Use(middleware.APIKeyMiddleware(s.config.Server.APIKeys))
	}

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(s.config.Server.RateLimit, s.config.Server.RateLimitWindow))
	{
		v1.POST("/posts", s.schedulePostHandler)
		v1.GET("/posts", s.listPostsHandler)
		v1.GET("/posts/:id", s.postStatusHandler)
		v1.POST("/posts/:id/requeue", s.requeuePostHandler)
		v1.POST("/generate", s.generateContentHandler)
		v1.GET("/platforms", s.platformsHandler)
		v1.GET("/stats", s.statsHandler)
	}
}

func (s *Server) setupServer() {
	s.server = &http.Server{
		Addr:         s.config.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server gracefully: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.ObserveAPIRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	if err := s.store.Health(c.Request.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Redis:     "connected",
	})
}

func (s *Server) schedulePostHandler(c *gin.Context) {
	var request api.SchedulePostRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		s.logger.Error("Invalid schedule request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	platform := request.Platform
	if platform == "" {
		platform = publisher.PlatformFacebook
	}

	// Only accept platforms a publisher is registered for
	if _, err := s.registry.Get(platform); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Unsupported platform",
			"details": fmt.Sprintf("No publisher registered for platform '%s'", platform),
		})
		return
	}

	post := types.NewScheduledPost(platform, request.PageID, request.Message, request.ScheduledFor.UTC())
	post.LinkURL = request.LinkURL

	if err := s.store.Create(c.Request.Context(), post); err != nil {
		s.logger.Error("Failed to schedule post",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to schedule post",
			"details": err.Error(),
		})
		return
	}

	s.metrics.PostsScheduled.WithLabelValues(post.Platform).Inc()
	s.logger.Info("Post scheduled",
		zap.String("post_id", post.ID),
		zap.String("page_id", post.PageID),
		zap.Time("scheduled_for", post.ScheduledFor),
	)

	c.JSON(http.StatusCreated, api.SchedulePostResponse{
		PostID:       post.ID,
		Status:       post.Status,
		ScheduledFor: post.ScheduledFor,
		CreatedAt:    post.CreatedAt,
	})
}

func (s *Server) postStatusHandler(c *gin.Context) {
	post, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Post not found",
		})
		return
	}

	c.JSON(http.StatusOK, api.PostView(post))
}

func (s *Server) listPostsHandler(c *gin.Context) {
	status := types.PostStatus(c.Query("status"))
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	posts, err := s.store.List(c.Request.Context(), status, limit)
	if err != nil {
		s.logger.Error("Failed to list posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list posts",
		})
		return
	}

	views := make([]api.PostStatusResponse, 0, len(posts))
	for _, post := range posts {
		views = append(views, api.PostView(post))
	}

	c.JSON(http.StatusOK, api.ListPostsResponse{
		Posts: views,
		Count: len(views),
	})
}

func (s *Server) requeuePostHandler(c *gin.Context) {
	id := c.Param("id")

	if err := s.store.Requeue(c.Request.Context(), id); err != nil {
		s.logger.Error("Failed to requeue post",
			zap.String("post_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Failed to requeue post",
			"details": err.Error(),
		})
		return
	}

	s.logger.Info("Post requeued", zap.String("post_id", id))

	c.JSON(http.StatusOK, api.RequeuePostResponse{
		PostID: id,
		Status: types.StatusPending,
	})
}

func (s *Server) generateContentHandler(c *gin.Context) {
	var request ai.GenerateRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	result, err := s.generator.Generate(c.Request.Context(), request)
	if err != nil {
		s.logger.Error("Content generation failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Content generation failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, api.GenerateContentResponse{
		Content:    result.Content,
		TokensUsed: result.TokensUsed,
	})
}

func (s *Server) platformsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platforms": s.registry.ListPublishers(),
	})
}

func (s *Server) statsHandler(c *gin.Context) {
	redisStore, ok := s.store.(*store.RedisStore)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Stats not supported by this store",
		})
		return
	}

	stats, err := redisStore.GetStats(c.Request.Context(), time.Now().UTC())
	if err != nil {
		s.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get statistics",
		})
		return
	}

	c.JSON(http.StatusOK, api.StatsResponse{
		DueBacklog:     stats.DueBacklog,
		TotalScheduled: stats.TotalScheduled,
		TotalPublished: stats.TotalPublished,
		TotalFailed:    stats.TotalFailed,
		TotalRequeued:  stats.TotalRequeued,
	})
}
