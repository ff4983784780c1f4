// Package main runs the recording console HTTP server with WebSocket relay
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roomkit/console-backend/config"
	"github.com/roomkit/console-backend/internal/auth"
	"github.com/roomkit/console-backend/internal/media"
	"github.com/roomkit/console-backend/internal/middleware"
	"github.com/roomkit/console-backend/internal/preferences"
	"github.com/roomkit/console-backend/internal/realtime"
	"github.com/roomkit/console-backend/internal/recordings"
	"github.com/roomkit/console-backend/internal/rooms"
	"github.com/roomkit/console-backend/internal/scheduler"
	"github.com/roomkit/console-backend/pkg/database"
	"github.com/roomkit/console-backend/pkg/events"
	"github.com/roomkit/console-backend/pkg/lock"
	"github.com/roomkit/console-backend/pkg/queue"
	"github.com/roomkit/console-backend/pkg/redis"
	"github.com/roomkit/console-backend/pkg/response"
	"github.com/roomkit/console-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	backend, keys, err := newStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	logger.Info("storage backend ready", zap.String("provider", cfg.Storage.Provider))

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	bus := events.NewRedisBus(rdb.Client, logger)
	locker := lock.NewRedisLocker(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	hub := realtime.NewHub(bus, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Preferences (console-wide defaults, stored as a storage singleton)
	prefStore := preferences.NewStore(backend, keys)
	prefHandler := preferences.NewHandler(prefStore, logger)

	// Rooms
	roomRepo := rooms.NewRepository(pool)
	secretService := rooms.NewSecretService(cfg.Secrets.AccessSecretKey)
	roomHandler := rooms.NewHandler(roomRepo, secretService, jobQueue, prefStore, logger)

	// Recordings
	mediaClient := media.NewClient(media.Config{
		ControlURL: cfg.Media.ControlURL,
		APIKey:     cfg.Media.APIKey,
		APISecret:  cfg.Media.APISecret,
		Timeout:    cfg.Media.RequestTimeout,
	}, logger)
	sessionStore := recordings.NewSessionStore(backend, keys, cfg.Recording.StorageRetries, logger)
	orch := recordings.NewOrchestrator(sessionStore, roomRepo, locker, bus, mediaClient, recordings.Config{
		LockLease:        cfg.Recording.LockLease,
		LockWait:         cfg.Recording.LockWait,
		ReconcileTimeout: cfg.Recording.ReconcileTimeout,
		PresignTTL:       time.Duration(cfg.Storage.PresignExpireMinutes) * time.Minute,
	}, logger)
	recordingHandler := recordings.NewHandler(orch, roomRepo, secretService, jobQueue, logger)

	deduper := recordings.NewRedisDeduper(rdb.Client, cfg.Recording.DedupTTL)
	ingestor := recordings.NewIngestor(cfg.Media.WebhookSecret, deduper, orch, logger)
	webhookHandler := recordings.NewWebhookHandler(ingestor, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Room management requires an API key or a JWT.
	api := router.Group("")
	api.Use(middleware.APIKeyOrJWT(cfg.API.Key, middleware.JWT(jwtService)))
	api.GET("/users", middleware.RequireRole("admin"), authHandler.List)
	api.GET("/preferences", prefHandler.Get)
	api.PUT("/preferences", middleware.RequireRole("admin"), prefHandler.Update)
	roomHandler.RegisterRoutes(api)

	// Recording routes additionally admit anonymous access-secret holders.
	rec := router.Group("")
	rec.Use(middleware.FlexibleAuth(cfg.API.Key, jwtService))
	recordingHandler.RegisterRoutes(rec)

	// Webhooks (no JWT; body HMAC is the credential)
	router.POST("/webhooks/media", webhookHandler.Receive)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background sweeps (reconciliation + room expiry)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sched := scheduler.New(roomRepo, orch, jobQueue, cfg.Recording.ReconcileEvery, logger)
	go sched.Run(sweepCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweepCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newStorage selects the object store and key layout from configuration.
func newStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Backend, storage.KeyBuilder, error) {
	switch cfg.Provider {
	case "s3compat":
		backend, err := storage.NewS3Backend(ctx, storage.S3Config{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
		}, logger)
		return backend, storage.CompatKeys{}, err
	case "memory":
		// Single-node dev mode; recordings do not survive a restart.
		return storage.NewMemoryBackend(), storage.S3Keys{}, nil
	default: // "s3"
		backend, err := storage.NewS3Backend(ctx, storage.S3Config{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Bucket:          cfg.Bucket,
		}, logger)
		return backend, storage.S3Keys{}, err
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
