// Package config centralizes how the service reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	envPrefix = "MINDSTASH_"

	defaultMaxFileSize    = 10 << 20 // 10 MiB
	defaultBlobTimeout    = 15 * time.Second
	defaultReportCooldown = 180 * time.Second
	defaultWorkerCount    = 2
)

type (
	// Config represents runtime configuration for every binary.
	Config struct {
		Address        string        `env:"ADDRESS,default=:8080"`
		DatabaseURL    string        `env:"DATABASE_URL"`
		MaxFileSize    int64         `env:"MAX_FILE_BYTES,default=10485760"`
		BlobTimeout    time.Duration `env:"BLOB_TIMEOUT,default=15s"`
		ReportCooldown time.Duration `env:"REPORT_COOLDOWN,default=180s"`
		JWTSecret      string        `env:"JWT_SECRET"`
		LogLevel       string        `env:"LOG_LEVEL,default=info"`
		LogJSON        bool          `env:"LOG_JSON,default=false"`
		Workers        int           `env:"WORKERS,default=2"`
		Metrics        bool          `env:"METRICS,default=true"`
		Redis          Redis
		S3             S3
	}

	// Redis configures the asynq broker. An empty Addr selects in-process
	// notification delivery.
	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB,default=0"`
	}

	// S3 configures the blob store. An empty Endpoint selects the in-memory
	// blob store.
	S3 struct {
		Endpoint  string `env:"S3_ENDPOINT"`
		AccessKey string `env:"S3_ACCESS_KEY"`
		SecretKey string `env:"S3_SECRET_KEY"`
		Region    string `env:"S3_REGION,default=us-east-1"`
		UseSSL    bool   `env:"S3_USE_SSL,default=false"`
		Bucket    string `env:"S3_BUCKET,default=materials"`
	}
)

// Load reads configuration from MINDSTASH_* environment variables.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through an arbitrary lookuper; tests pass a
// map.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
	}); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.BlobTimeout <= 0 {
		cfg.BlobTimeout = defaultBlobTimeout
	}
	if cfg.ReportCooldown < 0 {
		cfg.ReportCooldown = defaultReportCooldown
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return cfg, nil
}

// RequireSecret fails when no token secret is configured. Only the API needs
// it; the worker and CLI subcommands that never verify tokens skip it.
func (c *Config) RequireSecret() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("MINDSTASH_JWT_SECRET must be at least 16 characters")
	}
	return nil
}

// ConfigureLogging applies the log level and formatter.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		QuoteEmptyFields: true,
	})
}
