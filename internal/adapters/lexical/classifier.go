// Package lexical is the offline pattern-bank classifier. It needs no
// network or model and anchors the ensemble when the LLM providers are
// unavailable.
package lexical

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

// intentPatterns maps a phishing intent to the phrase patterns that signal
// it. Matching is case-insensitive over subject plus body.
var intentPatterns = map[string][]*regexp.Regexp{
	"credential_harvest": compile(
		`(verify|confirm|validate).{0,20}(account|password|login)`,
		`single[- ]sign[- ]on|sso`,
		`(mfa|2fa).{0,20}(reset|disable|re[- ]enroll)`,
	),
	"payment_fraud": compile(
		`(invoice|payment|wire|bank).{0,20}(due|overdue|failed|problem)`,
		`(gift\s?card|crypto|bitcoin)`,
	),
	"malware_delivery": compile(
		`(download|install|attachment).{0,20}(update|patch|viewer|driver)`,
		`\.(cab|js|vbs|scr|exe|iso|img)(\b|$)`,
	),
	"support_impersonation": compile(
		`(it|help ?desk|security|support).{0,10}(team|desk|dept)`,
		`(microsoft|google|apple|adobe|paypal|bank|dhl|ups)`,
	),
	"urgency_coercion": compile(
		`(urgent|immediately|now|24\s?hours|final notice|last warning|suspend(ed)?)`,
		`(compromised|suspicious activity|unusual login)`,
	),
}

// tacticLabels gives the human-readable tactics behind each intent, used in
// the reason list.
var tacticLabels = map[string][]string{
	"credential_harvest":    {"Fake login", "Password reset bait"},
	"payment_fraud":         {"Invoice scam", "Advance-fee"},
	"malware_delivery":      {"Attachment malware", "Drive-by download"},
	"support_impersonation": {"Brand impersonation", "Internal IT spoof"},
	"urgency_coercion":      {"Urgency", "Fear / pressure"},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// Classifier implements core.ContentClassifier over the pattern bank.
type Classifier struct {
	logger *zap.Logger
}

func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify counts pattern hits per intent. Three hits on one intent saturate
// the score; matched intents become rule labels.
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SignalResult, error) {
	text := strings.ToLower(msg.Subject + "\n" + msg.Body)

	type intentHits struct {
		intent string
		hits   int
	}
	var matched []intentHits
	for intent, patterns := range intentPatterns {
		hits := 0
		for _, p := range patterns {
			if p.MatchString(text) {
				hits++
			}
		}
		if hits > 0 {
			matched = append(matched, intentHits{intent: intent, hits: hits})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].hits != matched[j].hits {
			return matched[i].hits > matched[j].hits
		}
		return matched[i].intent < matched[j].intent
	})

	if len(matched) == 0 {
		return &core.SignalResult{Source: core.SourceLexical, Score: 0}, nil
	}

	score := math.Min(100.0, float64(matched[0].hits)/3.0*100.0)

	labels := make([]string, 0, len(matched))
	var reasons []string
	for _, m := range matched {
		labels = append(labels, m.intent)
	}
	// Tactics of the top two intents only, mirroring the explainability payload.
	for _, m := range matched[:min(2, len(matched))] {
		reasons = append(reasons, tacticLabels[m.intent]...)
	}

	c.logger.Debug("Lexical patterns matched",
		zap.String("message_id", msg.ID),
		zap.Strings("intents", labels),
		zap.Float64("score", score))

	return &core.SignalResult{
		Source:  core.SourceLexical,
		Score:   math.Round(score*100.0) / 100.0,
		Labels:  labels,
		Reasons: reasons,
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
