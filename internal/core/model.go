package core

import (
	"fmt"
	"time"
)

// RiskTier is the categorical risk level derived from a fused score.
type RiskTier string

const (
	TierSafe       RiskTier = "Safe"
	TierSuspicious RiskTier = "Suspicious"
	TierHigh       RiskTier = "High"
)

// Rank returns the tier's position on the escalation ladder (Safe=0, High=2).
func (t RiskTier) Rank() int {
	switch t {
	case TierSuspicious:
		return 1
	case TierHigh:
		return 2
	default:
		return 0
	}
}

// TierForRank is the inverse of Rank, clamped to the ladder bounds.
func TierForRank(rank int) RiskTier {
	switch {
	case rank >= 2:
		return TierHigh
	case rank == 1:
		return TierSuspicious
	default:
		return TierSafe
	}
}

// TierForScore maps a fused score to a tier using the fixed thresholds:
// score < 20 is Safe, 20 <= score < 60 is Suspicious, score >= 60 is High.
func TierForScore(score float64) RiskTier {
	switch {
	case score >= 60.0:
		return TierHigh
	case score >= 20.0:
		return TierSuspicious
	default:
		return TierSafe
	}
}

// ConfidenceTier is the advisory confidence level from the correlation module.
type ConfidenceTier string

const (
	ConfidenceLow    ConfidenceTier = "Low"
	ConfidenceMedium ConfidenceTier = "Medium"
	ConfidenceHigh   ConfidenceTier = "High"
)

// Verdict is a coarse reputation verdict from an external lookup.
type Verdict string

const (
	VerdictNone       Verdict = "none"
	VerdictClean      Verdict = "clean"
	VerdictSuspicious Verdict = "suspicious"
	VerdictMalicious  Verdict = "malicious"
	VerdictUnknown    Verdict = "unknown"
)

// Attachment describes a single attachment on a message.
type Attachment struct {
	Filename string
	Path     string
	Size     int64
}

// Message is one unit of scan work. Immutable once fetched.
type Message struct {
	ID          string
	From        string
	To          []string
	Subject     string
	Body        string
	Headers     map[string][]string
	Attachments []Attachment
	ReceivedAt  time.Time
}

// Signature returns the deterministic sender+subject fingerprint used by the
// memory stores. Collisions between resent campaign copies are intentional.
func (m *Message) Signature() string {
	return fmt.Sprintf("%s|%s", m.From, m.Subject)
}

// SignalSource identifies which provider produced a signal.
type SignalSource string

const (
	SourceContent     SignalSource = "content"
	SourceTransformer SignalSource = "transformer"
	SourceLexical     SignalSource = "lexical"
	SourceMemory      SignalSource = "memory"
	SourceReputation  SignalSource = "reputation"
	SourceAttachment  SignalSource = "attachment"
	SourceSimilarity  SignalSource = "similarity"
	SourceBehavior    SignalSource = "behavior"
)

// SignalResult is one provider's normalized output, consumed immediately by
// the fusion engine and never persisted on its own.
type SignalResult struct {
	Source  SignalSource
	Score   float64 // normalized to [0,100]
	Labels  []string
	Reasons []string
}

// ReputationReport is the output of an OSINT domain/IP reputation lookup.
type ReputationReport struct {
	Verdict   Verdict
	Available bool
	Reasons   []string
}

// AttachmentReport aggregates per-attachment verdicts for one message.
type AttachmentReport struct {
	Verdict Verdict
	Details []AttachmentDetail
}

// AttachmentDetail is the verdict for a single attachment.
type AttachmentDetail struct {
	Filename string
	Verdict  Verdict
	Reasons  []string
}

// SimilarityMatch is the best template-reuse match for a message.
type SimilarityMatch struct {
	Found      bool
	From       string
	Subject    string
	Similarity float64 // [0,1]
}

// BehaviorStats summarizes a user's recent risky click behavior.
type BehaviorStats struct {
	RiskyClicks7d  int
	RiskyClicks30d int
	TotalClicks30d int
	BehaviorRisk   float64 // [0,100]
}

// UserContext identifies the account a scan runs on behalf of.
type UserContext struct {
	UserID string
	Email  string
	Plan   string
	Locale string
}

// FusedResult is the final verdict for one message.
type FusedResult struct {
	ScanID           string
	MessageID        string
	Score            float64
	Tier             RiskTier
	Quarantine       bool
	Reasons          []string
	MatchedRules     []string
	CommunityAlert   bool
	Confidence       ConfidenceTier
	CorrelationScore float64
	Behavior         *BehaviorStats
	ScannedAt        time.Time
}

// MemoryRecord is a decayed-frequency fingerprint entry in a memory store.
// Count never decreases and LastSeen never precedes FirstSeen.
type MemoryRecord struct {
	Signature   string
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int
	Quarantined bool
}

// HistoryRecord is a persisted fused outcome, the raw material for adaptive
// weight recomputation.
type HistoryRecord struct {
	MessageID    string
	UserID       string
	Sender       string
	Subject      string
	Score        float64
	Tier         RiskTier
	Quarantine   bool
	MatchedRules []string
	Timestamp    time.Time
}

// GroupStats is an aggregated score/frequency row for one sender or rule.
type GroupStats struct {
	Key      string
	AvgScore float64
	Count    int
}
