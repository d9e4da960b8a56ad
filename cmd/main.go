package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/database"
	"catalog-sync-service/internal/handlers"
	"catalog-sync-service/internal/middleware"
	"catalog-sync-service/internal/repository"
	"catalog-sync-service/internal/secrets"
	"catalog-sync-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.IsProduction() {
		logger.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger).WithField("service", "catalog-sync-service")

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("Database migration failed")
	}
	log.Info("✓ Database models migrated")

	// Repositories
	itemRepo := repository.NewItemRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	secretRepo := repository.NewSecretRepository(db)
	lockRepo := repository.NewLockRepository(db)
	runRepo := repository.NewSyncRunRepository(db)

	// Secret store: GCP Secret Manager when configured, encrypted table otherwise
	var secretStore secrets.Store
	if cfg.GCPProjectID != "" {
		gcpStore, err := secrets.NewGCPSecretManager(context.Background(), cfg.GCPProjectID, "catalog-sync")
		if err != nil {
			log.WithError(err).Warn("⚠ Failed to initialize GCP Secret Manager, using database secret store")
		} else {
			defer gcpStore.Close()
			secretStore = gcpStore
			log.Info("✓ GCP Secret Manager initialized")
		}
	}
	if secretStore == nil {
		secretStore = secrets.NewDBStore(secretRepo, cfg.SecretsEncryptionKey)
	}

	// Run lock: redis when available, sync_locks table otherwise
	var runLock services.RunLock
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("⚠ Failed to parse Redis URL, using database lock")
		} else {
			redisClient := redis.NewClient(opt)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := redisClient.Ping(ctx).Err()
			cancel()
			if err != nil {
				log.WithError(err).Warn("⚠ Failed to connect to Redis, using database lock")
				_ = redisClient.Close()
			} else {
				defer redisClient.Close()
				runLock = services.NewRedisRunLock(redisClient, log)
				log.Info("✓ Redis connection established")
			}
		}
	}
	if runLock == nil {
		runLock = services.NewDBRunLock(lockRepo, log)
	}

	// Services
	fs := afero.NewOsFs()
	credentialService := services.NewCredentialService(settingsRepo, secretStore, cfg.BaseURLOverride, log)
	runHistory := services.NewRunHistory(runRepo, log)
	syncService := services.NewSyncService(itemRepo, settingsRepo, credentialService, runLock, runHistory, fs, cfg, log)
	importService := services.NewImportService(itemRepo, settingsRepo, credentialService, runLock, runHistory, cfg, log)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	syncHandler := handlers.NewSyncHandler(syncService, importService, runHistory, cfg.SyncDefaultLimit)
	settingsHandler := handlers.NewSettingsHandler(credentialService)

	router := setupRouter(cfg, logger, healthHandler, syncHandler, settingsHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "environment": cfg.Environment}).Info("Catalog sync service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-quit
	log.Info("Shutting down catalog-sync-service...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Catalog sync service stopped")
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
	settingsHandler *handlers.SettingsHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	square := router.Group("/api/v1/square")
	{
		square.POST("/sync", syncHandler.Sync)
		square.POST("/import", syncHandler.Import)
		square.POST("/test-connection", syncHandler.TestConnection)
		square.GET("/status", syncHandler.Status)
		square.GET("/runs", syncHandler.Runs)

		square.GET("/settings", settingsHandler.Get)
		square.PUT("/settings", settingsHandler.Update)
	}

	return router
}
