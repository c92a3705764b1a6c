package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// mid uses the C collation so (ts, mid) ordering matches byte order everywhere.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        nickname TEXT,
        status TEXT,
        avatar TEXT,
        last_seen TIMESTAMPTZ,
        name TEXT,
        birth4 TEXT,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        mid TEXT COLLATE "C" PRIMARY KEY,
        room TEXT NOT NULL,
        user_id TEXT NOT NULL,
        nickname TEXT NOT NULL DEFAULT '',
        ts BIGINT NOT NULL,
        kind TEXT NOT NULL DEFAULT 'text',
        text TEXT NOT NULL DEFAULT '',
        media_url TEXT NOT NULL DEFAULT '',
        mime TEXT NOT NULL DEFAULT '',
        file_name TEXT NOT NULL DEFAULT '',
        reactions JSONB NOT NULL DEFAULT '{}'::jsonb,
        reply_to TEXT,
        thread TEXT,
        reply_to_nickname TEXT,
        reply_to_text TEXT,
        created_at TIMESTAMPTZ DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_room_ts_mid_idx ON messages (room, ts DESC, mid DESC);`,
	`CREATE INDEX IF NOT EXISTS messages_thread_idx ON messages (thread) WHERE thread IS NOT NULL;`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	slog.Info("database migrations applied", "count", len(migrations))
	return nil
}
