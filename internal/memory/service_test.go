package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

type staticWeights struct{ m float64 }

func (w staticWeights) Multiplier(sender string, rules []string) float64 { return w.m }

func msg(from, subject string) *core.Message {
	return &core.Message{ID: "x", From: from, Subject: subject}
}

func newTestService(mult float64) (*Service, *time.Time) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewInMemoryStore(), staticWeights{m: mult}, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestScoreUnknownMessageIsZero(t *testing.T) {
	svc, _ := newTestService(1.0)
	score, known, err := svc.Score(context.Background(), msg("a@b.com", "hi"), "u@x.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.0 || known {
		t.Fatalf("expected (0,false), got (%v,%v)", score, known)
	}
}

func TestRecordThenScore(t *testing.T) {
	svc, _ := newTestService(1.0)
	ctx := context.Background()
	m := msg("phish@evil.com", "Verify account")

	for i := 0; i < 3; i++ {
		if err := svc.Record(ctx, m, "u@x.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	score, known, err := svc.Score(ctx, m, "u@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !known {
		t.Fatal("expected community to know the signature")
	}
	// personal 3/10 + community 3/10 (no decay, same instant) = 0.6
	if math.Abs(score-0.6) > 1e-9 {
		t.Fatalf("expected 0.6, got %v", score)
	}
}

func TestScoreClampsToOne(t *testing.T) {
	svc, _ := newTestService(1.0)
	ctx := context.Background()
	m := msg("phish@evil.com", "Verify account")

	for i := 0; i < 20; i++ {
		if err := svc.Record(ctx, m, "u@x.com", true); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	score, _, err := svc.Score(ctx, m, "u@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 1.0 {
		t.Fatalf("expected clamp at 1.0, got %v", score)
	}
}

func TestQuarantineBoost(t *testing.T) {
	svc, _ := newTestService(1.0)
	ctx := context.Background()
	m := msg("phish@evil.com", "Invoice")

	if err := svc.Record(ctx, m, "u@x.com", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	score, _, err := svc.Score(ctx, m, "u@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// personal 0.1+0.3 + community 0.1+0.3 = 0.8
	if math.Abs(score-0.8) > 1e-9 {
		t.Fatalf("expected 0.8, got %v", score)
	}
}

func TestDecayHalvesAtHalfLife(t *testing.T) {
	svc, now := newTestService(1.0)
	ctx := context.Background()
	m := msg("phish@evil.com", "Reset password")

	for i := 0; i < 10; i++ {
		if err := svc.Record(ctx, m, "other@x.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	// 60 days later, 10 sightings decay to 5 and community contributes 0.5.
	// Scoring for a different user keeps the personal side at zero.
	*now = now.Add(60 * 24 * time.Hour)
	score, known, err := svc.Score(ctx, m, "fresh@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !known {
		t.Fatal("expected community hit")
	}
	if math.Abs(score-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 after one half-life, got %v", score)
	}
}

func TestCommunityMultiplier(t *testing.T) {
	svc, _ := newTestService(2.0)
	ctx := context.Background()
	m := msg("phish@evil.com", "Prize")

	for i := 0; i < 2; i++ {
		if err := svc.Record(ctx, m, "other@x.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	score, _, err := svc.Score(ctx, m, "fresh@x.com", []string{"urgent_language"})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// community base 0.2, multiplier 2.0 -> 0.4
	if math.Abs(score-0.4) > 1e-9 {
		t.Fatalf("expected 0.4, got %v", score)
	}
}

func TestFuzzyPersonalMatch(t *testing.T) {
	svc, _ := newTestService(1.0)
	ctx := context.Background()

	orig := msg("phish@evil.com", "Your account needs verification today")
	for i := 0; i < 5; i++ {
		if err := svc.Record(ctx, orig, "u@x.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	// Slight subject variation still matches the personal entry.
	variant := msg("phish@evil.com", "Your account needs verification now")
	score, _, err := svc.Score(ctx, variant, "u@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score < 0.5 {
		t.Fatalf("expected fuzzy personal contribution, got %v", score)
	}

	// A completely different signature does not match.
	other := msg("someone@else.com", "Lunch on Friday?")
	score, _, err = svc.Score(ctx, other, "u@x.com", nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 0.0 {
		t.Fatalf("expected no contribution, got %v", score)
	}
}

func TestFuzzyDedupOnRecord(t *testing.T) {
	svc, _ := newTestService(1.0)
	ctx := context.Background()

	a := msg("phish@evil.com", "Your account needs verification today")
	b := msg("phish@evil.com", "Your account needs verification today!")
	if err := svc.Record(ctx, a, "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, b, "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := svc.store.Entries(ctx, UserBucket("u@x.com"))
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected near-duplicates folded into one record, got %d", len(entries))
	}
	if entries[0].Count != 2 {
		t.Fatalf("expected count 2, got %d", entries[0].Count)
	}
}

func TestPrune(t *testing.T) {
	svc, now := newTestService(1.0)
	ctx := context.Background()

	old := msg("old@evil.com", "Ancient scam")
	if err := svc.Record(ctx, old, "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	*now = now.Add(181 * 24 * time.Hour)
	recent := msg("new@evil.com", "Fresh scam")
	if err := svc.Record(ctx, recent, "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := svc.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := svc.store.Entries(ctx, CommunityBucket)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Signature != recent.Signature() {
		t.Fatalf("expected only the fresh record to survive, got %v", entries)
	}
}

func TestRecordPrunesOpportunistically(t *testing.T) {
	svc, now := newTestService(1.0)
	ctx := context.Background()

	stale := msg("old@evil.com", "Ancient scam")
	if err := svc.Record(ctx, stale, "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Past the retention window, a plain write must evict the stale record
	// without anyone calling Prune.
	*now = now.Add(200 * 24 * time.Hour)
	if err := svc.Record(ctx, msg("new@evil.com", "Fresh scam"), "u@x.com", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := svc.store.Entries(ctx, CommunityBucket)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	for _, e := range entries {
		if e.Signature == stale.Signature() {
			t.Fatal("stale record survived a write")
		}
	}
}

func TestAlertsOrderedAndLimited(t *testing.T) {
	svc, now := newTestService(1.0)
	ctx := context.Background()

	for i, subj := range []string{"first", "second", "third"} {
		*now = now.Add(time.Duration(i) * time.Hour)
		if err := svc.Record(ctx, msg("a@b.com", subj), "u@x.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	alerts, err := svc.Alerts(ctx, CommunityBucket, 2)
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Signature != "a@b.com|third" {
		t.Fatalf("expected newest first, got %s", alerts[0].Signature)
	}
}

func TestSimilarityRatio(t *testing.T) {
	if r := similarityRatio("abc", "abc"); r != 1.0 {
		t.Fatalf("identical strings: got %v", r)
	}
	if r := similarityRatio("abc", "xyz"); r != 0.0 {
		t.Fatalf("disjoint strings: got %v", r)
	}
	if r := similarityRatio("", "abc"); r != 0.0 {
		t.Fatalf("empty string: got %v", r)
	}
	if r := similarityRatio("abcd", "abce"); math.Abs(r-0.75) > 1e-9 {
		t.Fatalf("expected 0.75, got %v", r)
	}
}
