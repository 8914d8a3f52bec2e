package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/autoguardian/autoguardian/internal/core"
)

// SqliteStore persists fingerprint records in a local SQLite database.
type SqliteStore struct {
	db *sql.DB
}

// NewSqliteStore opens (and if needed initializes) the store at path.
func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_records (
			bucket      TEXT NOT NULL,
			signature   TEXT NOT NULL,
			first_seen  TIMESTAMP NOT NULL,
			last_seen   TIMESTAMP NOT NULL,
			count       INTEGER NOT NULL DEFAULT 1,
			quarantined INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, signature)
		);
		CREATE INDEX IF NOT EXISTS idx_memory_last_seen ON memory_records (bucket, last_seen);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing memory schema: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Upsert(ctx context.Context, bucket, signature string, quarantined bool, now time.Time) error {
	q := 0
	if quarantined {
		q = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_records (bucket, signature, first_seen, last_seen, count, quarantined)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (bucket, signature) DO UPDATE SET
			count = count + 1,
			last_seen = excluded.last_seen,
			quarantined = MAX(quarantined, excluded.quarantined)
	`, bucket, signature, now, now, q)
	if err != nil {
		return fmt.Errorf("upserting memory record: %w", err)
	}
	return nil
}

func (s *SqliteStore) Entries(ctx context.Context, bucket string) ([]core.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, first_seen, last_seen, count, quarantined
		FROM memory_records WHERE bucket = ?
	`, bucket)
	if err != nil {
		return nil, fmt.Errorf("querying memory records: %w", err)
	}
	defer rows.Close()

	var out []core.MemoryRecord
	for rows.Next() {
		var rec core.MemoryRecord
		var q int
		if err := rows.Scan(&rec.Signature, &rec.FirstSeen, &rec.LastSeen, &rec.Count, &q); err != nil {
			return nil, fmt.Errorf("scanning memory record: %w", err)
		}
		rec.Quarantined = q != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Prune(ctx context.Context, bucket string, maxAge time.Duration, maxRecords int, now time.Time) (int, int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_records WHERE bucket = ? AND last_seen < ?
	`, bucket, now.Add(-maxAge))
	if err != nil {
		return 0, 0, fmt.Errorf("pruning by age: %w", err)
	}
	byAge, _ := res.RowsAffected()

	bySize := int64(0)
	if maxRecords > 0 {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM memory_records
			WHERE bucket = ?1 AND signature NOT IN (
				SELECT signature FROM memory_records
				WHERE bucket = ?1 ORDER BY last_seen DESC LIMIT ?2
			)
		`, bucket, maxRecords)
		if err != nil {
			return int(byAge), 0, fmt.Errorf("pruning by size: %w", err)
		}
		bySize, _ = res.RowsAffected()
	}
	return int(byAge), int(bySize), nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}
