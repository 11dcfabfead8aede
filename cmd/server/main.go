// Command server runs the moderation engine's HTTP API. Without a database
// URL it falls back to the in-memory datastore; without an S3 endpoint it
// keeps blobs in memory; without Redis it delivers notifications on an
// in-process pool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/api"
	"github.com/dharsanguruparan/mindstash/internal/auth"
	"github.com/dharsanguruparan/mindstash/internal/ban"
	"github.com/dharsanguruparan/mindstash/internal/config"
	"github.com/dharsanguruparan/mindstash/internal/database"
	"github.com/dharsanguruparan/mindstash/internal/material"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/moderation"
	"github.com/dharsanguruparan/mindstash/internal/notify"
	"github.com/dharsanguruparan/mindstash/internal/processing"
	"github.com/dharsanguruparan/mindstash/internal/queue"
	"github.com/dharsanguruparan/mindstash/internal/report"
	"github.com/dharsanguruparan/mindstash/internal/repository"
	"github.com/dharsanguruparan/mindstash/internal/s3storage"
	"github.com/dharsanguruparan/mindstash/internal/storage"
)

// datastore is what every component needs from either backend.
type datastore interface {
	material.Store
	report.Store
	moderation.Store
	ban.Store
	notify.Store
	UpsertUser(ctx context.Context, u *model.User) error
	Close()
}

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
	if err := cfg.RequireSecret(); err != nil {
		log.Fatal(err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open datastore: %v", err)
	}
	defer store.Close()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Fatalf("open blob store: %v", err)
	}

	var (
		notifier notify.Dispatcher
		cleanup  material.OrphanEnqueuer
	)
	if cfg.Redis.Addr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		notifier = queue.NewDispatcher(client, store)
		cleanup = queue.NewCleanupEnqueuer(client)
		log.WithField("redis", cfg.Redis.Addr).Info("notifications go through asynq")
	} else {
		pool := processing.New(store, cfg.Workers)
		pool.Start()
		defer pool.Close()
		notifier = pool
		log.WithField("workers", cfg.Workers).Info("notifications use the in-process pool")
	}

	materials := material.NewManager(store, blobs, notifier, material.Options{
		MaxFileSize: cfg.MaxFileSize,
		BlobTimeout: cfg.BlobTimeout,
		Cleanup:     cleanup,
	})
	srv := api.New(cfg, api.Deps{
		Users:         store,
		Tokens:        auth.NewTokens(cfg.JWTSecret),
		Materials:     materials,
		Reports:       report.NewEngine(store, report.WithCooldown(cfg.ReportCooldown)),
		Moderation:    moderation.NewProcessor(store, materials, notifier),
		Bans:          ban.NewController(store, notifier),
		Notifications: notify.NewService(store),
	})

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (datastore, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("MINDSTASH_DATABASE_URL not set, using the in-memory datastore")
		mem := storage.NewMemoryStore()
		for _, u := range devUsers() {
			if err := mem.UpsertUser(ctx, &u); err != nil {
				return nil, err
			}
		}
		return mem, nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return repository.New(pool), nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (material.Blobs, error) {
	if cfg.S3.Endpoint == "" {
		log.Warn("MINDSTASH_S3_ENDPOINT not set, keeping uploads in memory")
		return storage.NewMemoryBlobs(), nil
	}
	s3, err := s3storage.New(cfg.S3)
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}

// devUsers seeds the in-memory datastore so tokens minted with
// `mindstash token` resolve to someone.
func devUsers() []model.User {
	return []model.User{
		{ID: "student", Name: "Dev Student", Role: model.RoleUser, Program: "B.Tech", Branch: "CSE", Semester: 3, ProfileCompleted: true},
		{ID: "moderator", Name: "Dev Moderator", Role: model.RoleModerator, Program: "B.Tech", Branch: "CSE", Semester: 7, ProfileCompleted: true},
	}
}
