// Package behavior tracks link-click events per user and turns recent risky
// activity into a 0-100 behavior-risk score.
package behavior

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

// Actions recorded in the behavior log.
const (
	ActionClick      = "click"
	ActionBlocked    = "blocked"
	ActionWarningAck = "warning_ack"
)

// Event is one user interaction with a scanned message's link.
type Event struct {
	UserID    string
	MessageID string
	URL       string
	RiskHint  string
	Action    string
	UserAgent string
	IP        string
}

// Service implements core.BehaviorProvider over a SQLite event log.
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewService(path string, logger *zap.Logger) (*Service, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening behavior database: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS behavior_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			message_id TEXT,
			url        TEXT NOT NULL,
			domain     TEXT NOT NULL,
			risk_hint  TEXT,
			action     TEXT NOT NULL,
			user_agent TEXT,
			ip         TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_behavior_user ON behavior_log (user_id, action, created_at);
		CREATE TABLE IF NOT EXISTS behavior_user_stats (
			user_id          TEXT PRIMARY KEY,
			risky_clicks_7d  INTEGER NOT NULL DEFAULT 0,
			risky_clicks_30d INTEGER NOT NULL DEFAULT 0,
			total_clicks_30d INTEGER NOT NULL DEFAULT 0,
			last_updated     TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing behavior schema: %w", err)
	}
	return &Service{db: db, logger: logger, now: time.Now}, nil
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// LogEvent records one interaction. Events without a URL are dropped.
func (s *Service) LogEvent(ctx context.Context, ev Event) error {
	if ev.URL == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO behavior_log (user_id, message_id, url, domain, risk_hint, action, user_agent, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.UserID, ev.MessageID, ev.URL, domainOf(ev.URL), ev.RiskHint, ev.Action,
		ev.UserAgent, ev.IP, s.now().UTC())
	if err != nil {
		return fmt.Errorf("logging behavior event: %w", err)
	}
	return nil
}

func (s *Service) countClicks(ctx context.Context, userID string, since time.Time, riskyOnly bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM behavior_log
		WHERE user_id = ? AND action = ? AND created_at >= ?
	`
	if riskyOnly {
		query += ` AND LOWER(risk_hint) IN ('high', 'high risk', 'suspicious', 'malicious')`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID, ActionClick, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting clicks: %w", err)
	}
	return n, nil
}

// Scores computes the user's current behavior KPIs, refreshes the summary
// row, and returns the normalized risk score. Risky clicks within the last
// week weigh four times those within the month.
func (s *Service) Scores(ctx context.Context, userID string) (*core.BehaviorStats, error) {
	now := s.now().UTC()

	risky7d, err := s.countClicks(ctx, userID, now.Add(-7*24*time.Hour), true)
	if err != nil {
		return nil, err
	}
	risky30d, err := s.countClicks(ctx, userID, now.Add(-30*24*time.Hour), true)
	if err != nil {
		return nil, err
	}
	total30d, err := s.countClicks(ctx, userID, now.Add(-30*24*time.Hour), false)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO behavior_user_stats (user_id, risky_clicks_7d, risky_clicks_30d, total_clicks_30d, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			risky_clicks_7d = excluded.risky_clicks_7d,
			risky_clicks_30d = excluded.risky_clicks_30d,
			total_clicks_30d = excluded.total_clicks_30d,
			last_updated = excluded.last_updated
	`, userID, risky7d, risky30d, total30d, now)
	if err != nil {
		s.logger.Warn("Failed to refresh behavior summary",
			zap.String("user_id", userID), zap.Error(err))
	}

	raw := float64(risky7d)*0.2 + float64(risky30d)*0.05
	risk := math.Min(100.0, math.Round(raw*1000.0)/10.0)

	return &core.BehaviorStats{
		RiskyClicks7d:  risky7d,
		RiskyClicks30d: risky30d,
		TotalClicks30d: total30d,
		BehaviorRisk:   risk,
	}, nil
}

func (s *Service) Close() error {
	return s.db.Close()
}
