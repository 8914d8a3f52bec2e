package trust

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryCache is the map-backed trust cache for tests and ephemeral runs.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	trusted bool
	at      time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, domain string) (bool, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[domain]
	return e.trusted, e.at, ok
}

func (c *MemoryCache) Put(ctx context.Context, domain string, trusted bool, at time.Time) error {
	c.mu.Lock()
	c.entries[domain] = cacheEntry{trusted: trusted, at: at}
	c.mu.Unlock()
	return nil
}

// SqliteCache persists trust verdicts across restarts.
type SqliteCache struct {
	db *sql.DB
}

func NewSqliteCache(path string) (*SqliteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening trust cache: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trusted_domains (
			domain      TEXT PRIMARY KEY,
			trusted     INTEGER NOT NULL,
			verified_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing trust cache schema: %w", err)
	}
	return &SqliteCache{db: db}, nil
}

func (c *SqliteCache) Get(ctx context.Context, domain string) (bool, time.Time, bool) {
	var trusted int
	var at time.Time
	err := c.db.QueryRowContext(ctx, `
		SELECT trusted, verified_at FROM trusted_domains WHERE domain = ?
	`, domain).Scan(&trusted, &at)
	if err != nil {
		return false, time.Time{}, false
	}
	return trusted != 0, at, true
}

func (c *SqliteCache) Put(ctx context.Context, domain string, trusted bool, at time.Time) error {
	v := 0
	if trusted {
		v = 1
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO trusted_domains (domain, trusted, verified_at)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			trusted = excluded.trusted,
			verified_at = excluded.verified_at
	`, domain, v, at)
	if err != nil {
		return fmt.Errorf("caching trust verdict: %w", err)
	}
	return nil
}

func (c *SqliteCache) Close() error {
	return c.db.Close()
}
