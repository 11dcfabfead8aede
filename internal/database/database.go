package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is applied by EnsureSchema. The (material_key, reporter_id) unique
// constraint is what makes report submission race-safe; material_key keeps
// the original material id after material_id is nulled by a delete.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'moderator')),
	program TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	semester INT NOT NULL DEFAULT 0,
	profile_completed BOOLEAN NOT NULL DEFAULT FALSE,
	is_banned BOOLEAN NOT NULL DEFAULT FALSE,
	ban_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS materials (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_ref TEXT NOT NULL UNIQUE,
	file_kind TEXT NOT NULL CHECK (file_kind IN ('pdf', 'image')),
	program TEXT NOT NULL,
	branch TEXT NOT NULL,
	semester INT NOT NULL,
	uploader_id TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_materials_uploader ON materials(uploader_id);

CREATE TABLE IF NOT EXISTS material_upvotes (
	material_id TEXT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	PRIMARY KEY (material_id, user_id)
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	material_key TEXT NOT NULL,
	material_id TEXT REFERENCES materials(id) ON DELETE SET NULL,
	snapshot_title TEXT NOT NULL,
	snapshot_program TEXT NOT NULL,
	snapshot_branch TEXT NOT NULL,
	snapshot_semester INT NOT NULL,
	snapshot_uploader_id TEXT NOT NULL,
	snapshot_uploader_name TEXT NOT NULL,
	reporter_id TEXT NOT NULL,
	reason TEXT NOT NULL CHECK (char_length(reason) <= 200),
	broken_rule_ids TEXT[] NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
	reviewer_id TEXT,
	moderator_comment TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT reports_material_reporter_key UNIQUE (material_key, reporter_id)
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	message TEXT NOT NULL,
	related_material_id TEXT,
	seen BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);`

// EnsureSchema creates the tables if needed. Keeping the migration in code
// lets the CLI and both binaries bootstrap an empty database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
