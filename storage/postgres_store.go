package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"iphone-scraper/utils"
)

// PostgresStore persists the catalog to PostgreSQL.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore opens a connection to PostgreSQL, waits for it to accept
// connections, runs schema migrations and returns a ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string, logger *utils.Logger, opts ...StoreOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres-ping", func(ctx context.Context) error {
		return db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	o := applyOptions(opts)
	ps := &PostgresStore{sqlStore: &sqlStore{db: db, name: "postgres", dollarArgs: true, now: o.now}}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS iphones (
			id             SERIAL PRIMARY KEY,
			product_id     BIGINT       UNIQUE NOT NULL,
			title          TEXT         NOT NULL DEFAULT '',
			model          VARCHAR(32),
			capacity       INTEGER,
			price          BIGINT,
			item_condition TEXT,
			battery        TEXT,
			is_pro         BOOLEAN      NOT NULL DEFAULT FALSE,
			is_max         BOOLEAN      NOT NULL DEFAULT FALSE,
			is_mini        BOOLEAN      NOT NULL DEFAULT FALSE,
			is_se          BOOLEAN      NOT NULL DEFAULT FALSE,
			url            TEXT         NOT NULL,
			created_at     TIMESTAMPTZ  NOT NULL,
			updated_at     TIMESTAMPTZ  NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_iphones_model ON iphones(model);
		CREATE INDEX IF NOT EXISTS idx_iphones_price ON iphones(price);
	`)
	return err
}

// Clear deletes every catalog row. Only used to reset test databases.
func (ps *PostgresStore) Clear(ctx context.Context) error {
	if _, err := ps.db.ExecContext(ctx, "DELETE FROM iphones"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}
