package trust

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

// OverrideRuleTag marks results downgraded by the trusted-sender policy.
const OverrideRuleTag = "TrustedSenderOverride"

// Scores at or above this are never overridden regardless of sender trust.
const overrideMaxScore = 80.0

// Matched rules containing any of these stems block the override.
var blockRuleStems = []string{"malware", "phishing", "credential", "ransom", "exploit"}

// Policy implements core.OverridePolicy: verified-trusted senders get their
// verdict downgraded to Safe unless the scan shows hard malicious indicators.
// Applied downgrades are written back to the history store.
type Policy struct {
	checker core.TrustChecker
	history core.HistoryStore
	logger  *zap.Logger
}

func NewPolicy(checker core.TrustChecker, history core.HistoryStore, logger *zap.Logger) *Policy {
	return &Policy{checker: checker, history: history, logger: logger}
}

func hasBlockRule(rules []string) bool {
	for _, r := range rules {
		lower := strings.ToLower(r)
		for _, stem := range blockRuleStems {
			if strings.Contains(lower, stem) {
				return true
			}
		}
	}
	return false
}

// Apply downgrades the result for a trusted sender and reports whether it
// did. The hybrid score itself is kept for transparency; only the tier and
// quarantine decision change.
func (p *Policy) Apply(ctx context.Context, msg *core.Message, res *core.FusedResult, user core.UserContext) bool {
	if res.Score >= overrideMaxScore || hasBlockRule(res.MatchedRules) {
		return false
	}
	if !p.checker.IsTrusted(ctx, msg.From, user.Plan) {
		return false
	}

	res.Tier = core.TierSafe
	res.Quarantine = false
	res.MatchedRules = append(res.MatchedRules, OverrideRuleTag)
	res.Reasons = append(res.Reasons, "Sender domain verified trusted, risk downgraded")

	if p.history != nil {
		if err := p.history.UpdateTier(ctx, msg.ID, core.TierSafe, OverrideRuleTag); err != nil {
			p.logger.Debug("Override not persisted",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	p.logger.Info("Trusted sender override applied",
		zap.String("sender", msg.From),
		zap.Float64("score", res.Score))
	return true
}
