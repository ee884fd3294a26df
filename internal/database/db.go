// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB wraps the postgres pool. The service is designed to run without it:
// callers treat a nil *DB as "no durable persistence".
type DB struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Connect opens a pgx pool against url and verifies it with a ping.
func Connect(ctx context.Context, url string, logger *logrus.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// EnsureSchema creates the tables this service writes to and seeds the
// achievement definitions. Idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			username           TEXT,
			avatar_url         TEXT,
			games_played       INTEGER NOT NULL DEFAULT 0,
			wins               INTEGER NOT NULL DEFAULT 0,
			losses             INTEGER NOT NULL DEFAULT 0,
			draws              INTEGER NOT NULL DEFAULT 0,
			current_win_streak INTEGER NOT NULL DEFAULT 0,
			best_win_streak    INTEGER NOT NULL DEFAULT 0,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_wins ON users (wins DESC, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS invites (
			code         TEXT PRIMARY KEY,
			host_user_id TEXT NOT NULL,
			guest_user_id TEXT,
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invites_host ON invites (host_user_id, status, expires_at)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL,
			icon           TEXT NOT NULL,
			difficulty     TEXT NOT NULL,
			metric         TEXT NOT NULL,
			target         INTEGER NOT NULL,
			requires_games INTEGER NOT NULL DEFAULT 0,
			points         INTEGER NOT NULL DEFAULT 0,
			order_index    INTEGER NOT NULL DEFAULT 0,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			achievement_id TEXT NOT NULL REFERENCES achievements(id) ON DELETE CASCADE,
			progress       INTEGER NOT NULL DEFAULT 0,
			percent        INTEGER NOT NULL DEFAULT 0,
			unlocked_at    TIMESTAMPTZ,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, achievement_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return db.syncAchievementDefinitions(ctx)
}
