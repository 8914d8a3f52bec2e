package history

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// NewMysqlStore opens (and if needed initializes) a MySQL-backed history
// store. The DSN must enable parseTime.
func NewMysqlStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_history (
			id              BIGINT AUTO_INCREMENT PRIMARY KEY,
			message_id      VARCHAR(255) NOT NULL,
			user_id         VARCHAR(255) NOT NULL,
			sender          VARCHAR(512),
			subject         TEXT,
			score           DOUBLE NOT NULL,
			tier            VARCHAR(32) NOT NULL,
			quarantine      TINYINT NOT NULL DEFAULT 0,
			matched_rules   TEXT,
			override_reason TEXT,
			created_at      DATETIME NOT NULL,
			INDEX idx_scan_history_message (message_id),
			INDEX idx_scan_history_sender (sender(191)),
			INDEX idx_scan_history_created (created_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}
