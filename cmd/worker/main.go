// Command worker drains the asynq queues: notification delivery and orphan
// blob cleanup.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/config"
	"github.com/dharsanguruparan/mindstash/internal/database"
	"github.com/dharsanguruparan/mindstash/internal/repository"
	"github.com/dharsanguruparan/mindstash/internal/s3storage"
	"github.com/dharsanguruparan/mindstash/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("read .env")
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ConfigureLogging()
	if cfg.DatabaseURL == "" || cfg.Redis.Addr == "" || cfg.S3.Endpoint == "" {
		log.Fatal("worker needs MINDSTASH_DATABASE_URL, MINDSTASH_REDIS_ADDR and MINDSTASH_S3_ENDPOINT")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	repo := repository.New(pool)

	store, err := s3storage.New(cfg.S3)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
		Logger:      log.StandardLogger(),
	})
	processor := worker.NewProcessor(repo, store)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.WithField("concurrency", cfg.Workers).Info("worker started")
	if err := server.Run(mux); err != nil {
		log.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}
