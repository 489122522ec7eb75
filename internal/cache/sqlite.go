// Package cache persists transform outputs across builds in SQLite.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache implements transform.Cache on a single SQLite table.
type SQLiteCache struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Open opens (and creates) a cache database. Use ":memory:" for an in-memory cache.
func Open(dbPath string) (*SQLiteCache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Worker goroutines share one connection; SQLite serializes writers anyway
	// and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	c := &SQLiteCache{db: db, now: time.Now}
	if err := c.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transforms (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		created INTEGER NOT NULL,
		accessed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accessed ON transforms(accessed);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached value for key.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var value []byte
	err := c.db.QueryRowContext(ctx, "SELECT value FROM transforms WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "UPDATE transforms SET accessed = ? WHERE key = ?", c.now().Unix(), key); err != nil {
		return nil, false, fmt.Errorf("touch cache entry: %w", err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (c *SQLiteCache) Put(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().Unix()
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO transforms (key, value, created, accessed) VALUES (?, ?, ?, ?)",
		key, value, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Prune deletes entries not accessed since cutoff and returns how many were removed.
func (c *SQLiteCache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM transforms WHERE accessed < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports the number of entries and total stored bytes.
func (c *SQLiteCache) Stats(ctx context.Context) (entries int, size int64, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err = c.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM transforms").Scan(&entries, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("query cache stats: %w", err)
	}
	return entries, size, nil
}

// Clear removes every entry.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx, "DELETE FROM transforms"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}
