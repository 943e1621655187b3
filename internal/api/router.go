// Package api exposes the session handle surface over HTTP. Every
// endpoint is a thin pass-through to the coordinator, engines, and
// session store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/post-importer/internal/batch"
	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/engine"
	"github.com/jonesrussell/post-importer/internal/lock"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/session"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.0.0"
)

// Router holds the API dependencies
type Router struct {
	sessions    *session.Store
	coordinator *batch.Coordinator
	importer    *engine.ImportEngine
	reimporter  *engine.ReimportEngine
	locks       *lock.SessionLock
	db          *sqlx.DB
	redisClient *redis.Client
	registry    *prometheus.Registry
	cfg         *config.Config
	logger      logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	sessions *session.Store,
	coordinator *batch.Coordinator,
	importer *engine.ImportEngine,
	reimporter *engine.ReimportEngine,
	locks *lock.SessionLock,
	db *sqlx.DB,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	cfg *config.Config,
	log logger.Logger,
) *Router {
	return &Router{
		sessions:    sessions,
		coordinator: coordinator,
		importer:    importer,
		reimporter:  reimporter,
		locks:       locks,
		db:          db,
		redisClient: redisClient,
		registry:    registry,
		cfg:         cfg,
		logger:      log,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", r.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")

	sessions := v1.Group("/sessions")
	sessions.POST("", r.createSession)
	sessions.GET("/:id", r.getSession)
	sessions.POST("/:id/batches", r.runBatch)
	sessions.POST("/:id/pause", r.pauseSession)
	sessions.POST("/:id/reset", r.resetSession)
	sessions.GET("/:id/failures", r.listFailures)

	records := v1.Group("/records")
	records.POST("/import", r.importRecord)
	records.POST("/update-images", r.updateImages)

	return router
}

// NewServer wraps the engine in an http.Server with the configured timeouts.
func (r *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

// health reports the service and its dependency checks
// GET /health
func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := healthStatusHealthy
	checks := gin.H{}

	if err := r.db.PingContext(ctx); err != nil {
		status = healthStatusDegraded
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if r.redisClient != nil {
		if err := r.redisClient.Ping(ctx).Err(); err != nil {
			status = healthStatusDegraded
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status != healthStatusHealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "post-importer",
		"version": serviceVersion,
		"checks":  checks,
	})
}
