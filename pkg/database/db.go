package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/realisereallies/anime/pkg/utils"
)

const MemoryPath = ":memory:"

type Config struct {
	Path string
}

func DefaultConfig() Config {
	return Config{Path: utils.DefaultDBPath()}
}

func (c Config) inMemory() bool {
	return c.Path == MemoryPath || strings.Contains(c.Path, "mode=memory")
}

func EnsureDataDir(cfg Config) error {
	if cfg.inMemory() {
		return nil
	}
	return os.MkdirAll(filepath.Dir(cfg.Path), 0o755)
}

// dsn sets per-connection pragmas through the driver so every pooled
// connection gets them. _txlock=immediate makes BeginTx take the write
// lock up front, which serializes read-then-write transactions.
func dsn(cfg Config) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if cfg.inMemory() {
		return "file::memory:?" + params
	}
	return "file:" + cfg.Path + "?" + params + "&_journal_mode=WAL"
}

func Open(cfg Config) (*sql.DB, error) {
	if err := EnsureDataDir(cfg); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// each in-memory connection is its own database
	if cfg.inMemory() {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// OpenMemory opens a migrated in-memory database.
func OpenMemory() (*sql.DB, error) {
	db, err := Open(Config{Path: MemoryPath})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
