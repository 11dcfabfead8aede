package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSize)
	assert.Equal(t, 15*time.Second, cfg.BlobTimeout)
	assert.Equal(t, 180*time.Second, cfg.ReportCooldown)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "materials", cfg.S3.Bucket)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Error(t, cfg.RequireSecret())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"MINDSTASH_REPORT_COOLDOWN": "30s",
		"MINDSTASH_REDIS_ADDR":      "localhost:6379",
		"MINDSTASH_S3_ENDPOINT":     "minio:9000",
		"MINDSTASH_JWT_SECRET":      "0123456789abcdef",
		"MINDSTASH_WORKERS":         "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ReportCooldown)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "minio:9000", cfg.S3.Endpoint)
	assert.Equal(t, defaultWorkerCount, cfg.Workers)
	assert.NoError(t, cfg.RequireSecret())
}

func TestLoadRejectsBadLevel(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"MINDSTASH_LOG_LEVEL": "chatty",
	}))
	assert.Error(t, err)
}
