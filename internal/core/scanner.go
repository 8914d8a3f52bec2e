package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// A non-zero memory contribution ([0,1]) is surfaced as a flat bonus on the
// 0-100 scale, like an anomaly hit.
const memoryBonusScale = 10.0

// A similarity match at or above this ratio is treated as template reuse.
const templateReuseThreshold = 0.85

// ScanDeps bundles the collaborators a ScanService needs. Transformer is
// optional; every other provider must be non-nil (use a noop implementation
// to disable one).
type ScanDeps struct {
	Content     ContentClassifier
	Transformer ContentClassifier
	Lexical     ContentClassifier
	Reputation  ReputationClient
	Attachments AttachmentAnalyzer
	Similarity  SimilarityIndex
	Behavior    BehaviorProvider
	Memory      MemoryScorer
	Weights     WeightProvider
	History     HistoryStore
	Override    OverridePolicy
	Anomaly     AnomalyDetector
}

// ScanService is the single-message and batch entry point of the risk
// pipeline: signal fan-out, fusion, trusted-sender override, behavioral
// adjustment, correlation.
type ScanService struct {
	deps          ScanDeps
	fusion        *FusionEngine
	logger        *zap.Logger
	signalTimeout time.Duration
	batchWorkers  int
	priorScore    float64

	mu   sync.Mutex
	seen map[string]map[string]struct{} // userID -> processed message IDs
}

// NewScanService creates a scan service.
func NewScanService(
	deps ScanDeps,
	logger *zap.Logger,
	signalTimeout time.Duration,
	batchWorkers int,
	priorScore float64,
) *ScanService {
	if batchWorkers <= 0 {
		batchWorkers = 4
	}
	if signalTimeout <= 0 {
		signalTimeout = 15 * time.Second
	}
	return &ScanService{
		deps:          deps,
		fusion:        NewFusionEngine(deps.Weights, logger),
		logger:        logger,
		signalTimeout: signalTimeout,
		batchWorkers:  batchWorkers,
		priorScore:    priorScore,
		seen:          make(map[string]map[string]struct{}),
	}
}

// signalSet holds the raw provider outputs for one message. Fields written by
// exactly one goroutine each; the degraded list is guarded by mu.
type signalSet struct {
	mu sync.Mutex

	content     *float64
	transformer *float64
	lexical     *float64
	rules       []string
	degraded    []string

	reputation  *ReputationReport
	attachments *AttachmentReport
	similarity  *SimilarityMatch
	behavior    *BehaviorStats

	memoryScore    float64
	communityAlert bool
}

func (ss *signalSet) degrade(reason string) {
	ss.mu.Lock()
	ss.degraded = append(ss.degraded, reason)
	ss.mu.Unlock()
}

// Scan runs the full pipeline for one message and returns its verdict. The
// scan itself has no side effects; use RecordOutcome to feed the memory store
// and the historical record. A failing provider degrades the result, it never
// fails the scan; the only returned error is context cancellation.
func (s *ScanService) Scan(ctx context.Context, msg *Message, user UserContext) (*FusedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig := s.collectSignals(ctx, msg, user)

	bonuses := s.deps.Anomaly.Detect(msg, user.Locale)
	if sig.memoryScore > 0 {
		bonuses = append(bonuses, Bonus{
			Points: sig.memoryScore * memoryBonusScale,
			Reason: "Recurring campaign fingerprint in memory",
		})
	}

	score, tier, reasons := s.fusion.Fuse(FusionInput{
		Content:     sig.content,
		Transformer: sig.transformer,
		Lexical:     sig.lexical,
		Prior:       s.priorScore,
		Bonuses:     bonuses,
		Sender:      msg.From,
		Rules:       sig.rules,
	})

	malicious := false
	if sig.reputation != nil && sig.reputation.Verdict == VerdictMalicious {
		malicious = true
		reasons = append(reasons, "OSINT reputation reports malicious infrastructure")
	}
	if sig.attachments != nil && sig.attachments.Verdict == VerdictMalicious {
		malicious = true
		reasons = append(reasons, "Attachment analysis reports malicious content")
	}
	reasons = append(reasons, sig.degraded...)

	res := &FusedResult{
		ScanID:         uuid.NewString(),
		MessageID:      msg.ID,
		Score:          score,
		Tier:           tier,
		Quarantine:     tier == TierHigh && malicious,
		Reasons:        reasons,
		MatchedRules:   sig.rules,
		CommunityAlert: sig.communityAlert,
		Behavior:       sig.behavior,
		ScannedAt:      time.Now().UTC(),
	}

	if s.deps.Override != nil {
		s.deps.Override.Apply(ctx, msg, res, user)
	}

	behaviorRisk := 0.0
	if sig.behavior != nil {
		behaviorRisk = sig.behavior.BehaviorRisk
	}
	res.Tier = AdjustTierForBehavior(res.Tier, behaviorRisk)

	osintVerdict := VerdictUnknown
	if sig.reputation != nil {
		osintVerdict = sig.reputation.Verdict
	}
	corr := Correlate(res.MatchedRules, res.Score, osintVerdict, behaviorRisk)
	res.Confidence = corr.Tier
	res.CorrelationScore = corr.FusedScore

	s.logger.Info("Message scanned",
		zap.String("scan_id", res.ScanID),
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.From),
		zap.Float64("score", res.Score),
		zap.String("tier", string(res.Tier)),
		zap.Bool("quarantine", res.Quarantine))

	return res, nil
}

// ScanBatch scans messages concurrently with a bounded worker pool, skipping
// message IDs this service already processed for the account, and records
// each outcome. Results keep the input order; skipped messages are omitted.
func (s *ScanService) ScanBatch(ctx context.Context, msgs []*Message, user UserContext) []*FusedResult {
	results := make([]*FusedResult, len(msgs))
	sem := make(chan struct{}, s.batchWorkers)
	var wg sync.WaitGroup

	for i, msg := range msgs {
		if !s.markProcessed(user.UserID, msg.ID) {
			s.logger.Debug("Skipping already processed message",
				zap.String("message_id", msg.ID),
				zap.String("user_id", user.UserID))
			continue
		}

		wg.Add(1)
		go func(i int, msg *Message) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			res, err := s.Scan(ctx, msg, user)
			if err != nil {
				s.logger.Warn("Scan cancelled", zap.String("message_id", msg.ID), zap.Error(err))
				return
			}
			results[i] = res
			if err := s.RecordOutcome(ctx, msg, res, user); err != nil {
				s.logger.Error("Failed to record scan outcome",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}(i, msg)
	}
	wg.Wait()

	out := make([]*FusedResult, 0, len(msgs))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// RecordOutcome feeds the memory stores and the historical record used by
// weight recomputation, and indexes risky messages for template-reuse
// matching. Persistence is best effort: failures are logged and the verdict
// already returned to the caller stays authoritative.
func (s *ScanService) RecordOutcome(ctx context.Context, msg *Message, res *FusedResult, user UserContext) error {
	var firstErr error

	if err := s.deps.Memory.Record(ctx, msg, user.Email, res.Quarantine); err != nil {
		s.logger.Error("Memory store write failed", zap.String("message_id", msg.ID), zap.Error(err))
		firstErr = err
	}

	if err := s.deps.History.Insert(ctx, &HistoryRecord{
		MessageID:    msg.ID,
		UserID:       user.UserID,
		Sender:       msg.From,
		Subject:      msg.Subject,
		Score:        res.Score,
		Tier:         res.Tier,
		Quarantine:   res.Quarantine,
		MatchedRules: res.MatchedRules,
		Timestamp:    res.ScannedAt,
	}); err != nil {
		s.logger.Error("History store write failed", zap.String("message_id", msg.ID), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if res.Tier == TierHigh || res.Quarantine {
		if err := s.deps.Similarity.Add(ctx, msg, res.Tier); err != nil {
			s.logger.Warn("Similarity index update failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return firstErr
}

// markProcessed records a message ID in the per-account dedup set and reports
// whether it was new.
func (s *ScanService) markProcessed(userID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.seen[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.seen[userID] = ids
	}
	if _, dup := ids[messageID]; dup {
		return false
	}
	ids[messageID] = struct{}{}
	return true
}

// collectSignals fans out to the signal providers. Network-bound providers
// run concurrently under the signal timeout; the memory score runs after the
// classifier wave because it depends on the matched rules.
func (s *ScanService) collectSignals(ctx context.Context, msg *Message, user UserContext) *signalSet {
	sig := &signalSet{}
	var wg sync.WaitGroup

	classify := func(c ContentClassifier, name string, dst **float64) {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		r, err := c.Classify(cctx, msg)
		if err != nil {
			s.logger.Warn("Signal provider unavailable",
				zap.String("provider", name),
				zap.String("message_id", msg.ID),
				zap.Error(err))
			sig.degrade("Signal degraded: " + name + " unavailable")
			return
		}
		score := r.Score
		*dst = &score
		if len(r.Labels) > 0 {
			sig.mu.Lock()
			sig.rules = append(sig.rules, r.Labels...)
			sig.mu.Unlock()
		}
	}

	wg.Add(1)
	go classify(s.deps.Content, string(SourceContent), &sig.content)
	if s.deps.Transformer != nil {
		wg.Add(1)
		go classify(s.deps.Transformer, string(SourceTransformer), &sig.transformer)
	}
	wg.Add(1)
	go classify(s.deps.Lexical, string(SourceLexical), &sig.lexical)

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		rep, err := s.deps.Reputation.Enrich(cctx, msg)
		if err != nil {
			s.logger.Warn("Reputation lookup failed", zap.String("message_id", msg.ID), zap.Error(err))
			sig.degrade("Signal degraded: reputation unavailable")
			return
		}
		sig.reputation = rep
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		rep, err := s.deps.Attachments.Analyze(cctx, msg)
		if err != nil {
			s.logger.Warn("Attachment analysis failed", zap.String("message_id", msg.ID), zap.Error(err))
			sig.degrade("Signal degraded: attachment analysis unavailable")
			return
		}
		sig.attachments = rep
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		match, err := s.deps.Similarity.Query(cctx, msg)
		if err != nil {
			s.logger.Warn("Similarity lookup failed", zap.String("message_id", msg.ID), zap.Error(err))
			return
		}
		sig.similarity = match
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		stats, err := s.deps.Behavior.Scores(cctx, user.UserID)
		if err != nil {
			s.logger.Warn("Behavior scoring failed", zap.String("user_id", user.UserID), zap.Error(err))
			return
		}
		sig.behavior = stats
	}()

	wg.Wait()

	if sig.similarity != nil && sig.similarity.Found && sig.similarity.Similarity >= templateReuseThreshold {
		sig.rules = append(sig.rules, "template_reuse")
	}

	mctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
	defer cancel()
	memScore, known, err := s.deps.Memory.Score(mctx, msg, user.Email, sig.rules)
	if err != nil {
		s.logger.Warn("Memory scoring failed", zap.String("message_id", msg.ID), zap.Error(err))
	} else {
		sig.memoryScore = memScore
		sig.communityAlert = known
	}

	return sig
}
