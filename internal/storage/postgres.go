package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/taskscope/scheduler/internal/config"
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Database{DB: db}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the admin-account and task-settings tables. The
// scheduler's own run-state (registry, history) is in-memory only and has
// no migration (SPEC_FULL.md Non-goals: no durable persistence).
func (d *Database) RunMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			name VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			api_key VARCHAR(64) UNIQUE,
			is_active BOOLEAN DEFAULT true,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS task_settings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant VARCHAR(200) NOT NULL,
			task_name VARCHAR(200) NOT NULL,
			schedule VARCHAR(100) NOT NULL,
			enable BOOLEAN NOT NULL DEFAULT false,
			title VARCHAR(200),
			description TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant, task_name)
		)`,
		`CREATE TABLE IF NOT EXISTS seen_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			item_hash VARCHAR(64) NOT NULL,
			source VARCHAR(200) NOT NULL,
			task_key VARCHAR(400) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(item_hash, task_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_settings_tenant ON task_settings(tenant)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_items_hash ON seen_items(item_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_items_task ON seen_items(task_key)`,
	}

	for _, migration := range migrations {
		if _, err := d.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
