package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

type noopClassifier struct{}

func (noopClassifier) Classify(ctx context.Context, msg *core.Message) (*core.SignalResult, error) {
	return &core.SignalResult{Source: core.SourceLexical, Score: 10}, nil
}

type noopReputation struct{}

func (noopReputation) Enrich(ctx context.Context, msg *core.Message) (*core.ReputationReport, error) {
	return &core.ReputationReport{Verdict: core.VerdictUnknown}, nil
}

type noopAttachments struct{}

func (noopAttachments) Analyze(ctx context.Context, msg *core.Message) (*core.AttachmentReport, error) {
	return &core.AttachmentReport{Verdict: core.VerdictNone}, nil
}

type noopSimilarity struct{}

func (noopSimilarity) Query(ctx context.Context, msg *core.Message) (*core.SimilarityMatch, error) {
	return &core.SimilarityMatch{}, nil
}
func (noopSimilarity) Add(ctx context.Context, msg *core.Message, tier core.RiskTier) error {
	return nil
}

type noopBehavior struct{}

func (noopBehavior) Scores(ctx context.Context, userID string) (*core.BehaviorStats, error) {
	return &core.BehaviorStats{}, nil
}

type noopMemory struct{}

func (noopMemory) Record(ctx context.Context, msg *core.Message, userEmail string, quarantined bool) error {
	return nil
}
func (noopMemory) Score(ctx context.Context, msg *core.Message, userEmail string, rules []string) (float64, bool, error) {
	return 0, false, nil
}

type noopWeights struct{}

func (noopWeights) Multiplier(sender string, rules []string) float64 { return 1.0 }

type countingHistory struct {
	mu      sync.Mutex
	inserts int
}

func (h *countingHistory) Insert(ctx context.Context, rec *core.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inserts++
	return nil
}
func (h *countingHistory) SenderStats(ctx context.Context) ([]core.GroupStats, error) { return nil, nil }
func (h *countingHistory) RuleStats(ctx context.Context) ([]core.GroupStats, error) { return nil, nil }
func (h *countingHistory) UpdateTier(ctx context.Context, messageID string, tier core.RiskTier, reason string) error {
	return nil
}
func (h *countingHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
func (h *countingHistory) Close() error { return nil }

func (h *countingHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inserts
}

type noopOverride struct{}

func (noopOverride) Apply(ctx context.Context, msg *core.Message, res *core.FusedResult, user core.UserContext) bool {
	return false
}

type noopAnomaly struct{}

func (noopAnomaly) Detect(msg *core.Message, locale string) []core.Bonus { return nil }

type stubFetcher struct {
	msgs []*core.Message
}

func (f *stubFetcher) FetchRecent(ctx context.Context, user core.UserContext, max int) ([]*core.Message, error) {
	return f.msgs, nil
}

func newScanService(history core.HistoryStore) *core.ScanService {
	deps := core.ScanDeps{
		Content:     noopClassifier{},
		Lexical:     noopClassifier{},
		Reputation:  noopReputation{},
		Attachments: noopAttachments{},
		Similarity:  noopSimilarity{},
		Behavior:    noopBehavior{},
		Memory:      noopMemory{},
		Weights:     noopWeights{},
		History:     history,
		Override:    noopOverride{},
		Anomaly:     noopAnomaly{},
	}
	return core.NewScanService(deps, zap.NewNop(), time.Second, 2, 50.0)
}

func TestScanLoopRecordsOutcomes(t *testing.T) {
	history := &countingHistory{}
	fetcher := &stubFetcher{msgs: []*core.Message{
		{ID: "m1", From: "a@b.example", Subject: "s1", Body: "b1"},
		{ID: "m2", From: "a@b.example", Subject: "s2", Body: "b2"},
	}}

	sched := New(newScanService(history), fetcher, nil, nil, zap.NewNop(),
		10*time.Millisecond, 0, 0, 2, 10)
	sched.Register(core.UserContext{UserID: "u1", Email: "u1@x.example"})

	sched.Start()
	deadline := time.Now().Add(2 * time.Second)
	for history.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sched.Stop()

	if history.count() < 2 {
		t.Fatalf("expected both messages recorded, got %d", history.count())
	}
}

func TestUnregisterStopsScans(t *testing.T) {
	history := &countingHistory{}
	fetcher := &stubFetcher{msgs: []*core.Message{
		{ID: "m1", From: "a@b.example", Subject: "s1", Body: "b1"},
	}}

	sched := New(newScanService(history), fetcher, nil, nil, zap.NewNop(),
		10*time.Millisecond, 0, 0, 2, 10)
	sched.Register(core.UserContext{UserID: "u1", Email: "u1@x.example"})
	sched.Unregister("u1")

	sched.Start()
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if history.count() != 0 {
		t.Fatalf("expected no scans for unregistered account, got %d", history.count())
	}
}
