// Package app provides the main application lifecycle management for the
// importer service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/post-importer/internal/api"
	"github.com/jonesrussell/post-importer/internal/assets"
	"github.com/jonesrussell/post-importer/internal/batch"
	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/content"
	"github.com/jonesrussell/post-importer/internal/engine"
	"github.com/jonesrussell/post-importer/internal/httpclient"
	"github.com/jonesrussell/post-importer/internal/lock"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/metrics"
	"github.com/jonesrussell/post-importer/internal/session"
	"github.com/jonesrussell/post-importer/internal/store"
	"github.com/jonesrussell/post-importer/internal/store/cms"
	"github.com/jonesrussell/post-importer/internal/store/memory"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
	// startupPingTimeout bounds the Redis connectivity check at startup
	startupPingTimeout = 5 * time.Second
)

// App represents the importer service with all its dependencies
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	sessions    *session.Store
	httpServer  *http.Server
	version     string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates a new App instance with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "post-importer"),
		logger.String("version", opts.Version),
	)

	db, err := session.NewPostgresConnection(cfg.Database)
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sessions := session.NewStore(db, appLogger)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer schemaCancel()
	if err := sessions.EnsureSchema(schemaCtx); err != nil {
		_ = session.Close(db)
		_ = appLogger.Sync()
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer pingCancel()
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		_ = session.Close(db)
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	stores, err := buildStores(cfg, appLogger)
	if err != nil {
		_ = session.Close(db)
		_ = redisClient.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	fetchClient := httpclient.New(cfg.Importer.AssetTimeout)
	resolver := assets.NewResolver(stores.Assets, stores.Documents, fetchClient, m, appLogger)
	rewriter := content.NewRewriter(resolver, cfg.ContentStore.URL, appLogger)

	importer := engine.NewImportEngine(stores, resolver, rewriter, sessions, appLogger)
	reimporter := engine.NewReimportEngine(importer)
	coordinator := batch.NewCoordinator(sessions, importer, reimporter, m, appLogger)
	locks := lock.New(redisClient, cfg.Importer.SessionLockTTL, appLogger)

	router := api.NewRouter(sessions, coordinator, importer, reimporter,
		locks, db, redisClient, registry, cfg, appLogger)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		sessions:    sessions,
		httpServer:  router.NewServer(),
		version:     opts.Version,
	}, nil
}

// buildStores selects the content store implementation. An empty URL wires
// the in-process store, which only makes sense for dry runs.
func buildStores(cfg *config.Config, log logger.Logger) (store.Stores, error) {
	if cfg.ContentStore.URL == "" {
		log.Warn("no content store configured, using in-memory store")
		return memory.New().Stores(), nil
	}

	client, err := cms.NewClient(cfg.ContentStore, log)
	if err != nil {
		return store.Stores{}, fmt.Errorf("create content store client: %w", err)
	}
	return client.Stores(), nil
}

// Run starts the HTTP server and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.logger.Info("Starting importer API",
			logger.String("address", a.config.Server.Address),
			logger.Bool("debug", a.config.Debug),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
		a.shutdownHTTPServer()
		<-serverErr
	case <-ctx.Done():
		a.shutdownHTTPServer()
		<-serverErr
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Server error", logger.Error(err))
			return err
		}
	}

	a.logger.Info("Service stopped")
	return nil
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if err := session.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", logger.Error(err))
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
