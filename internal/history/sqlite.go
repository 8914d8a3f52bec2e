package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSqliteStore opens (and if needed initializes) a SQLite-backed history
// store at path.
func NewSqliteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_history (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id      TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			sender          TEXT,
			subject         TEXT,
			score           REAL NOT NULL,
			tier            TEXT NOT NULL,
			quarantine      INTEGER NOT NULL DEFAULT 0,
			matched_rules   TEXT,
			override_reason TEXT,
			created_at      TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scan_history_message ON scan_history (message_id);
		CREATE INDEX IF NOT EXISTS idx_scan_history_sender ON scan_history (sender);
		CREATE INDEX IF NOT EXISTS idx_scan_history_created ON scan_history (created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}
