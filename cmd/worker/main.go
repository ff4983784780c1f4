// Package main runs the background purge worker (recording and room cleanup).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roomkit/console-backend/config"
	"github.com/roomkit/console-backend/internal/media"
	"github.com/roomkit/console-backend/internal/recordings"
	"github.com/roomkit/console-backend/internal/rooms"
	"github.com/roomkit/console-backend/internal/worker"
	"github.com/roomkit/console-backend/pkg/database"
	"github.com/roomkit/console-backend/pkg/events"
	"github.com/roomkit/console-backend/pkg/lock"
	"github.com/roomkit/console-backend/pkg/queue"
	"github.com/roomkit/console-backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var backend storage.Backend
	var keys storage.KeyBuilder
	switch cfg.Storage.Provider {
	case "s3compat":
		backend, err = storage.NewS3Backend(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			Endpoint:        cfg.Storage.Endpoint,
		}, logger)
		keys = storage.CompatKeys{}
	default:
		backend, err = storage.NewS3Backend(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
		}, logger)
		keys = storage.S3Keys{}
	}
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	roomRepo := rooms.NewRepository(pool)
	bus := events.NewRedisBus(rdb.Client, logger)
	locker := lock.NewRedisLocker(rdb.Client, logger)
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
	}, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	w := worker.New(jobQueue, orch, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker shut down")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
