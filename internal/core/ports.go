package core

import (
	"context"
	"time"
)

// ContentClassifier scores a message for phishing probability. Implementations
// wrap remote or local models and must normalize scores to [0,100].
type ContentClassifier interface {
	Classify(ctx context.Context, msg *Message) (*SignalResult, error)
}

// ReputationClient looks up domain/IP reputation for the links in a message.
type ReputationClient interface {
	Enrich(ctx context.Context, msg *Message) (*ReputationReport, error)
}

// AttachmentAnalyzer inspects a message's attachments.
type AttachmentAnalyzer interface {
	Analyze(ctx context.Context, msg *Message) (*AttachmentReport, error)
}

// SimilarityIndex finds template reuse against previously seen risky messages.
type SimilarityIndex interface {
	// Query returns the closest prior risky message, if any.
	Query(ctx context.Context, msg *Message) (*SimilarityMatch, error)

	// Add indexes a message that ended up risky so later scans can match it.
	Add(ctx context.Context, msg *Message, tier RiskTier) error
}

// BehaviorProvider computes a user's behavior-risk score from their recent
// click history.
type BehaviorProvider interface {
	Scores(ctx context.Context, userID string) (*BehaviorStats, error)
}

// MemoryScorer tracks message fingerprints across personal and community
// scopes and converts recurrence into a bounded risk contribution.
type MemoryScorer interface {
	// Record upserts the message fingerprint in both scopes.
	Record(ctx context.Context, msg *Message, userEmail string, quarantined bool) error

	// Score returns the decayed, weighted contribution in [0,1] and whether
	// the community scope already knows this fingerprint.
	Score(ctx context.Context, msg *Message, userEmail string, rules []string) (float64, bool, error)
}

// WeightProvider exposes the current adaptive weight snapshot to fusion.
type WeightProvider interface {
	// Multiplier returns max(sender weight, strongest rule weight) clamped to
	// [1.0, 2.5].
	Multiplier(sender string, rules []string) float64
}

// TrustChecker decides whether a sender address belongs to a verified
// high-trust domain. Lookup failures must report not-trusted.
type TrustChecker interface {
	IsTrusted(ctx context.Context, email string, plan string) bool
}

// HistoryStore persists fused outcomes and serves the aggregations the weight
// trainer needs.
type HistoryStore interface {
	Insert(ctx context.Context, rec *HistoryRecord) error
	SenderStats(ctx context.Context) ([]GroupStats, error)
	RuleStats(ctx context.Context) ([]GroupStats, error)

	// UpdateTier rewrites a persisted verdict and appends a reason tag, used
	// by the trusted-sender override and by later manual overrides.
	UpdateTier(ctx context.Context, messageID string, tier RiskTier, reason string) error

	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// AnomalyDetector runs the linguistic/Unicode anomaly checks over a message
// and returns one flat score bonus per triggered check.
type AnomalyDetector interface {
	Detect(msg *Message, locale string) []Bonus
}

// OverridePolicy is the post-fusion trusted-sender downgrade. Apply may
// mutate the result's tier and reasons; it reports whether it did.
type OverridePolicy interface {
	Apply(ctx context.Context, msg *Message, res *FusedResult, user UserContext) bool
}

// InboxFetcher pulls recent messages for a monitored account. The concrete
// connector (IMAP, Gmail API) lives outside this module.
type InboxFetcher interface {
	FetchRecent(ctx context.Context, user UserContext, max int) ([]*Message, error)
}
