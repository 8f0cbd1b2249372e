package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/guard"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
	"github.com/intersect-mbo/treasury-indexer/internal/tracker"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server exposes the indexer's operational surface: health, metrics, and a
// read-only status view over the indexed entities.
type Server struct {
	config     Config
	store      store.Store
	tracker    *tracker.SlotTracker
	guard      *guard.DuplicateGuard
	httpServer *http.Server
}

// New creates a new ops server
func New(cfg Config, s store.Store, t *tracker.SlotTracker, g *guard.DuplicateGuard) *Server {
	return &Server{
		config:  cfg,
		store:   s,
		tracker: t,
		guard:   g,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recovery())
	router.Use(requestLogger())
	router.Use(setupCORS())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/status", s.handleStatus)
	router.GET("/status/projects/:id", s.handleProjectStatus)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting ops server", zap.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down ops server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current_slot":         s.tracker.CurrentSlot(),
		"last_processed_slot":  s.tracker.LastProcessedSlot(),
		"duplicate_cache_size": s.guard.CacheSize(),
	})
}

// handleProjectStatus returns a project with a milestone summary.
func (s *Server) handleProjectStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	project, err := s.store.GetProjectByID(c.Request.Context(), id)
	if err != nil {
		logger.Error(err, zap.Int64("project_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	milestones, err := s.store.ListMilestonesByProject(c.Request.Context(), id)
	if err != nil {
		logger.Error(err, zap.Int64("project_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load milestones"})
		return
	}

	byStatus := map[schema.MilestoneStatus]int{}
	for _, m := range milestones {
		byStatus[m.Status]++
	}

	c.JSON(http.StatusOK, gin.H{
		"project":    project,
		"milestones": milestones,
		"summary": gin.H{
			"total":     len(milestones),
			"pending":   byStatus[schema.MilestoneStatusPending],
			"completed": byStatus[schema.MilestoneStatusCompleted],
			"paused":    byStatus[schema.MilestoneStatusPaused],
			"withdrawn": byStatus[schema.MilestoneStatusWithdrawn],
		},
	})
}
