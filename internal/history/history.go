// Package history persists fused scan outcomes. The aggregations it serves
// are the training data for the adaptive weight table.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/autoguardian/autoguardian/internal/core"
)

// SQLStore implements core.HistoryStore over database/sql. The SQLite and
// MySQL constructors differ only in driver and schema DDL; all queries use
// portable syntax.
type SQLStore struct {
	db *sql.DB
}

func (s *SQLStore) Insert(ctx context.Context, rec *core.HistoryRecord) error {
	q := 0
	if rec.Quarantine {
		q = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history
			(message_id, user_id, sender, subject, score, tier, quarantine, matched_rules, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.UserID, rec.Sender, rec.Subject, rec.Score,
		string(rec.Tier), q, strings.Join(rec.MatchedRules, ","), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting scan record: %w", err)
	}
	return nil
}

func (s *SQLStore) SenderStats(ctx context.Context) ([]core.GroupStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, AVG(score), COUNT(*)
		FROM scan_history
		WHERE sender IS NOT NULL AND sender <> ''
		GROUP BY sender
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregating sender stats: %w", err)
	}
	defer rows.Close()

	var out []core.GroupStats
	for rows.Next() {
		var g core.GroupStats
		if err := rows.Scan(&g.Key, &g.AvgScore, &g.Count); err != nil {
			return nil, fmt.Errorf("scanning sender stats: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RuleStats aggregates per stored rule set, then fans the aggregate out to
// the individual rules. A rule appearing in several sets yields several rows;
// the trainer keeps the strongest.
func (s *SQLStore) RuleStats(ctx context.Context) ([]core.GroupStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT matched_rules, AVG(score), COUNT(*)
		FROM scan_history
		WHERE matched_rules IS NOT NULL AND matched_rules <> ''
		GROUP BY matched_rules
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregating rule stats: %w", err)
	}
	defer rows.Close()

	var out []core.GroupStats
	for rows.Next() {
		var ruleSet string
		var avg float64
		var count int
		if err := rows.Scan(&ruleSet, &avg, &count); err != nil {
			return nil, fmt.Errorf("scanning rule stats: %w", err)
		}
		for _, rule := range strings.Split(ruleSet, ",") {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			out = append(out, core.GroupStats{Key: rule, AvgScore: avg, Count: count})
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateTier(ctx context.Context, messageID string, tier core.RiskTier, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_history SET tier = ?, override_reason = ? WHERE message_id = ?
	`, string(tier), reason, messageID)
	if err != nil {
		return fmt.Errorf("updating tier: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no scan record for message %s", messageID)
	}
	return nil
}

func (s *SQLStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scan_history WHERE created_at < ?
	`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning scan history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
