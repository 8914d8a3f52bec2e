package behavior

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(filepath.Join(t.TempDir(), "behavior.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("opening service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestScoresEmptyUser(t *testing.T) {
	svc := newTestService(t)
	stats, err := svc.Scores(context.Background(), "u1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if stats.BehaviorRisk != 0.0 || stats.RiskyClicks7d != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestScoresWeighting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// Two risky clicks this week.
	for i := 0; i < 2; i++ {
		if err := svc.LogEvent(ctx, Event{
			UserID: "u1", URL: "https://phishy.example/login",
			RiskHint: "High", Action: ActionClick,
		}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	// One risky click three weeks ago.
	svc.now = func() time.Time { return now.Add(-21 * 24 * time.Hour) }
	if err := svc.LogEvent(ctx, Event{
		UserID: "u1", URL: "https://phishy.example/verify",
		RiskHint: "Malicious", Action: ActionClick,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	// One safe click this week.
	svc.now = func() time.Time { return now }
	if err := svc.LogEvent(ctx, Event{
		UserID: "u1", URL: "https://news.example/article",
		RiskHint: "Safe", Action: ActionClick,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	stats, err := svc.Scores(ctx, "u1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if stats.RiskyClicks7d != 2 {
		t.Fatalf("expected 2 risky clicks 7d, got %d", stats.RiskyClicks7d)
	}
	if stats.RiskyClicks30d != 3 {
		t.Fatalf("expected 3 risky clicks 30d, got %d", stats.RiskyClicks30d)
	}
	if stats.TotalClicks30d != 4 {
		t.Fatalf("expected 4 total clicks 30d, got %d", stats.TotalClicks30d)
	}
	// 2*0.2 + 3*0.05 = 0.55 -> 55.0
	if math.Abs(stats.BehaviorRisk-55.0) > 1e-9 {
		t.Fatalf("expected 55.0, got %v", stats.BehaviorRisk)
	}
}

func TestScoresCappedAtHundred(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := svc.LogEvent(ctx, Event{
			UserID: "u1", URL: "https://phishy.example/x",
			RiskHint: "High", Action: ActionClick,
		}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	stats, err := svc.Scores(ctx, "u1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	// 10*0.2 + 10*0.05 = 2.5 -> capped to 100
	if stats.BehaviorRisk != 100.0 {
		t.Fatalf("expected cap at 100, got %v", stats.BehaviorRisk)
	}
}

func TestNonClickActionsIgnored(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.LogEvent(ctx, Event{
		UserID: "u1", URL: "https://phishy.example/x",
		RiskHint: "High", Action: ActionBlocked,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	stats, err := svc.Scores(ctx, "u1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if stats.BehaviorRisk != 0.0 {
		t.Fatalf("blocked events must not raise risk, got %v", stats.BehaviorRisk)
	}
}

func TestEventWithoutURLDropped(t *testing.T) {
	svc := newTestService(t)
	if err := svc.LogEvent(context.Background(), Event{UserID: "u1", Action: ActionClick}); err != nil {
		t.Fatalf("log: %v", err)
	}
	stats, err := svc.Scores(context.Background(), "u1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if stats.TotalClicks30d != 0 {
		t.Fatalf("expected no recorded clicks, got %d", stats.TotalClicks30d)
	}
}

func TestUsersIsolated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.LogEvent(ctx, Event{
		UserID: "u1", URL: "https://phishy.example/x",
		RiskHint: "High", Action: ActionClick,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	stats, err := svc.Scores(ctx, "u2")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if stats.BehaviorRisk != 0.0 {
		t.Fatalf("users must be isolated, got %v", stats.BehaviorRisk)
	}
}
