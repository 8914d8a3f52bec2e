package core

// AdjustTierForBehavior escalates a tier based on the recipient's behavior
// risk score. The adjustment is one-directional: a tier is never lowered.
func AdjustTierForBehavior(tier RiskTier, behaviorRisk float64) RiskTier {
	bump := 0
	switch {
	case behaviorRisk >= 70.0:
		bump = 2
	case behaviorRisk >= 40.0:
		bump = 1
	}
	if bump == 0 {
		return tier
	}
	return TierForRank(tier.Rank() + bump)
}
