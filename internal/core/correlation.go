package core

import "math"

// Fixed correlation weights over the four signal categories. Advisory only;
// this fusion never feeds back into the primary hybrid score.
const (
	corrRuleWeight     = 0.3
	corrAIWeight       = 0.4
	corrOSINTWeight    = 0.2
	corrBehaviorWeight = 0.1
)

// A component counts as a strong signal once it clears this threshold.
const strongSignalThreshold = 0.5

// CorrelationResult is the explainability-oriented second opinion for one
// message.
type CorrelationResult struct {
	FusedScore float64 // [0,100]
	Components map[string]float64
	Tier       ConfidenceTier
}

// Correlate fuses rule-hit density, AI score, OSINT verdict, and behavior
// risk into a weighted 0-100 score and derives a confidence tier from the
// number of individually strong components.
func Correlate(ruleHits []string, aiScore float64, osintVerdict Verdict, behaviorRisk float64) CorrelationResult {
	ruleNorm := clamp(float64(len(ruleHits))/5.0, 0.0, 1.0)
	aiNorm := clamp(aiScore/100.0, 0.0, 1.0)
	behNorm := clamp(behaviorRisk/100.0, 0.0, 1.0)

	osintNorm := 0.0
	switch osintVerdict {
	case VerdictMalicious:
		osintNorm = 1.0
	case VerdictSuspicious:
		osintNorm = 0.5
	}

	fused := ruleNorm*corrRuleWeight +
		aiNorm*corrAIWeight +
		osintNorm*corrOSINTWeight +
		behNorm*corrBehaviorWeight

	strong := 0
	for _, v := range []float64{ruleNorm, aiNorm, osintNorm, behNorm} {
		if v > strongSignalThreshold {
			strong++
		}
	}

	tier := ConfidenceLow
	switch {
	case strong >= 3:
		tier = ConfidenceHigh
	case strong == 2:
		tier = ConfidenceMedium
	}

	return CorrelationResult{
		FusedScore: round2(fused * 100.0),
		Components: map[string]float64{
			"rules":    round3(ruleNorm),
			"ai":       round3(aiNorm),
			"osint":    round3(osintNorm),
			"behavior": round3(behNorm),
		},
		Tier: tier,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000.0) / 1000.0
}
