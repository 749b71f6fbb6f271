package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the catalog in a single SQLite file.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the database at path and runs schema
// migrations. Use ":memory:" for a throwaway catalog.
func NewSQLiteStore(path string, opts ...StoreOption) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One connection: writes are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	o := applyOptions(opts)
	s := &SQLiteStore{sqlStore: &sqlStore{db: db, name: "sqlite", now: o.now}}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS iphones (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id     INTEGER  NOT NULL UNIQUE,
			title          TEXT     NOT NULL DEFAULT '',
			model          TEXT,
			capacity       INTEGER,
			price          INTEGER,
			item_condition TEXT,
			battery        TEXT,
			is_pro         BOOLEAN  NOT NULL DEFAULT 0,
			is_max         BOOLEAN  NOT NULL DEFAULT 0,
			is_mini        BOOLEAN  NOT NULL DEFAULT 0,
			is_se          BOOLEAN  NOT NULL DEFAULT 0,
			url            TEXT     NOT NULL,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_iphones_model ON iphones(model);
		CREATE INDEX IF NOT EXISTS idx_iphones_price ON iphones(price);
	`)
	return err
}
