package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

const (
	// Fuzzy-match thresholds for the personal scope. Scoring is looser than
	// deduplication so near-copies of a known campaign still count.
	scoreMatchThreshold = 0.85
	dedupMatchThreshold = 0.90

	halfLife = 60 * 24 * time.Hour

	// Roughly ten decayed sightings saturate the base score.
	countNormalizer = 10.0

	quarantineBoost = 0.3

	pruneMaxAge     = 180 * 24 * time.Hour
	pruneMaxRecords = 50000

	// Minimum gap between write-triggered prunes.
	pruneWriteInterval = 5 * time.Minute
)

// Service implements core.MemoryScorer over a fingerprint store, blending the
// personal and community scopes into one bounded contribution.
type Service struct {
	store   Store
	weights core.WeightProvider
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

func NewService(store Store, weights core.WeightProvider, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		weights: weights,
		logger:  logger,
		now:     time.Now,
	}
}

// Record upserts the message fingerprint in the personal and community
// scopes. In the personal scope a near-duplicate signature folds into the
// existing record instead of creating a new one.
func (s *Service) Record(ctx context.Context, msg *core.Message, userEmail string, quarantined bool) error {
	now := s.now().UTC()
	sig := msg.Signature()

	personalSig := sig
	entries, err := s.store.Entries(ctx, UserBucket(userEmail))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Signature == sig || similarityRatio(e.Signature, sig) >= dedupMatchThreshold {
			personalSig = e.Signature
			break
		}
	}

	if err := s.store.Upsert(ctx, UserBucket(userEmail), personalSig, quarantined, now); err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, CommunityBucket, sig, quarantined, now); err != nil {
		return err
	}

	s.pruneAfterWrite(ctx, now)
	return nil
}

// pruneAfterWrite keeps the community bucket bounded without waiting for a
// background sweep. Rate-limited so a burst of writes does not rescan the
// bucket on every message.
func (s *Service) pruneAfterWrite(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneWriteInterval {
		s.mu.Unlock()
		return
	}
	s.lastPrune = now
	s.mu.Unlock()

	if err := s.Prune(ctx); err != nil && s.logger != nil {
		s.logger.Warn("Prune after write failed", zap.Error(err))
	}
}

// Score returns the combined memory contribution in [0,1] and whether the
// community scope already knows this exact fingerprint.
//
// Personal side: strongest fuzzy match, count/10 capped at 1, +0.3 if
// quarantined. Community side: time-decayed count/10 capped at 1, +0.3 if
// quarantined, scaled by the adaptive weight multiplier. The sum clamps to 1.
func (s *Service) Score(ctx context.Context, msg *core.Message, userEmail string, rules []string) (float64, bool, error) {
	now := s.now().UTC()
	sig := msg.Signature()

	personal, err := s.personalScore(ctx, sig, userEmail)
	if err != nil {
		return 0, false, err
	}

	community, known, err := s.communityScore(ctx, sig, msg.From, rules, now)
	if err != nil {
		return 0, false, err
	}

	return math.Min(personal+community, 1.0), known, nil
}

func (s *Service) personalScore(ctx context.Context, sig, userEmail string) (float64, error) {
	entries, err := s.store.Entries(ctx, UserBucket(userEmail))
	if err != nil {
		return 0, err
	}
	score := 0.0
	for _, e := range entries {
		if e.Signature != sig && similarityRatio(e.Signature, sig) < scoreMatchThreshold {
			continue
		}
		entryScore := math.Min(float64(e.Count)/countNormalizer, 1.0)
		if e.Quarantined {
			entryScore += quarantineBoost
		}
		score = math.Max(score, math.Min(entryScore, 1.0))
	}
	return score, nil
}

func (s *Service) communityScore(ctx context.Context, sig, sender string, rules []string, now time.Time) (float64, bool, error) {
	entries, err := s.store.Entries(ctx, CommunityBucket)
	if err != nil {
		return 0, false, err
	}

	base := 0.0
	known := false
	for _, e := range entries {
		if e.Signature != sig {
			continue
		}
		known = true
		base = math.Min(decayedCount(e.Count, e.LastSeen, now)/countNormalizer, 1.0)
		if e.Quarantined {
			base += quarantineBoost
		}
		break
	}
	if !known {
		return 0, false, nil
	}

	multiplier := 1.0
	if s.weights != nil {
		multiplier = math.Min(s.weights.Multiplier(sender, rules), 2.5)
	}
	return math.Max(0.0, math.Min(base*multiplier, 1.0)), true, nil
}

// Prune drops stale community records and enforces the soft size cap.
func (s *Service) Prune(ctx context.Context) error {
	byAge, bySize, err := s.store.Prune(ctx, CommunityBucket, pruneMaxAge, pruneMaxRecords, s.now().UTC())
	if err != nil {
		return err
	}
	if (byAge > 0 || bySize > 0) && s.logger != nil {
		s.logger.Info("Pruned community memory",
			zap.Int("removed_by_age", byAge),
			zap.Int("removed_by_size", bySize))
	}
	return nil
}

// Alerts returns the most recently seen fingerprints in a bucket, newest
// first, for dashboards.
func (s *Service) Alerts(ctx context.Context, bucket string, limit int) ([]core.MemoryRecord, error) {
	entries, err := s.store.Entries(ctx, bucket)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// decayedCount halves a sighting count for every half-life elapsed since the
// record was last seen.
func decayedCount(count int, lastSeen, now time.Time) float64 {
	age := now.Sub(lastSeen)
	if age <= 0 {
		return float64(count)
	}
	return float64(count) * math.Pow(0.5, age.Hours()/halfLife.Hours())
}
