package core

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Fixed relative weights for the three core model signals. They sum to 1.0;
// when a source is unavailable its weight is redistributed proportionally
// among the sources that are present.
const (
	contentWeight     = 0.4
	transformerWeight = 0.4
	lexicalWeight     = 0.2
)

// Bonus is a flat score addition from a triggered anomaly detector or memory
// contribution. Bonuses stack additively and are only bounded by the final
// clamp.
type Bonus struct {
	Points float64
	Reason string
}

// FusionInput carries everything the fusion engine needs for one message.
// Model scores are nil when the source was unavailable; they may arrive on
// either a [0,1] or [0,100] scale.
type FusionInput struct {
	Content     *float64
	Transformer *float64
	Lexical     *float64

	// Prior is the fallback score used when no model source is available.
	Prior float64

	Bonuses []Bonus
	Sender  string
	Rules   []string
}

// FusionEngine combines independent signals into one hybrid score. It is a
// pure function of its inputs and the current weight-table snapshot.
type FusionEngine struct {
	weights WeightProvider
	logger  *zap.Logger
}

// NewFusionEngine creates a fusion engine backed by the given weight snapshot
// provider.
func NewFusionEngine(weights WeightProvider, logger *zap.Logger) *FusionEngine {
	return &FusionEngine{
		weights: weights,
		logger:  logger,
	}
}

// Fuse produces the hybrid score, tier, and reason list for one message.
// Canonical order: weighted mean, anomaly bonuses, adaptive multiplier,
// probability rescale, clamp, round.
func (e *FusionEngine) Fuse(in FusionInput) (float64, RiskTier, []string) {
	score := e.weightedMean(in)
	reasons := make([]string, 0, len(in.Bonuses)+1)

	for _, b := range in.Bonuses {
		score += b.Points
		reasons = append(reasons, b.Reason)
	}

	multiplier := 1.0
	if e.weights != nil {
		multiplier = clampMultiplier(e.weights.Multiplier(in.Sender, in.Rules))
	}
	if multiplier != 1.0 {
		score *= multiplier
		reasons = append(reasons, fmt.Sprintf("Adaptive weight applied (x%.2f, cap 2.5)", multiplier))
	}

	// Models disagree on scale: some return probabilities, some percentages.
	// A running score at or below 1.0 is treated as a probability.
	if score <= 1.0 {
		score *= 100.0
	}

	score = round2(clamp(score, 0.0, 100.0))
	return score, TierForScore(score), reasons
}

// weightedMean computes the weighted mean of the present core signals,
// redistributing absent weights proportionally. With no sources at all it
// falls back to the prior.
func (e *FusionEngine) weightedMean(in FusionInput) float64 {
	sum := 0.0
	weightTotal := 0.0
	if in.Content != nil {
		sum += *in.Content * contentWeight
		weightTotal += contentWeight
	}
	if in.Transformer != nil {
		sum += *in.Transformer * transformerWeight
		weightTotal += transformerWeight
	}
	if in.Lexical != nil {
		sum += *in.Lexical * lexicalWeight
		weightTotal += lexicalWeight
	}

	if weightTotal == 0 {
		if e.logger != nil {
			e.logger.Warn("No model signals available, falling back to prior score",
				zap.String("sender", in.Sender),
				zap.Float64("prior", in.Prior))
		}
		return in.Prior
	}
	return sum / weightTotal
}

func clampMultiplier(m float64) float64 {
	return clamp(m, 1.0, 2.5)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100.0) / 100.0
}
