package core

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

type fixedWeights struct {
	m float64
}

func (f fixedWeights) Multiplier(sender string, rules []string) float64 {
	return f.m
}

func fptr(v float64) *float64 { return &v }

func TestFuseWeightedMeanAllSources(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	score, tier, reasons := e.Fuse(FusionInput{
		Content:     fptr(50.0),
		Transformer: fptr(70.0),
		Lexical:     fptr(30.0),
	})

	// 50*0.4 + 70*0.4 + 30*0.2 = 54
	if score != 54.0 {
		t.Fatalf("expected score 54.00, got %v", score)
	}
	if tier != TierSuspicious {
		t.Fatalf("expected Suspicious, got %s", tier)
	}
	if len(reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", reasons)
	}
}

func TestFuseRedistributesAbsentWeights(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	// transformer missing: weights renormalize to 0.4/0.6 and 0.2/0.6
	score, _, _ := e.Fuse(FusionInput{
		Content: fptr(60.0),
		Lexical: fptr(30.0),
	})
	want := round2((60.0*0.4 + 30.0*0.2) / 0.6)
	if score != want {
		t.Fatalf("expected %v, got %v", want, score)
	}
}

func TestFuseSingleSourceIsIdentity(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	for _, v := range []float64{0.0, 19.99, 20.0, 42.5, 59.99, 60.0, 100.0} {
		score, _, _ := e.Fuse(FusionInput{Content: fptr(v)})
		want := v
		if v <= 1.0 {
			want = v * 100.0
		}
		if score != round2(want) {
			t.Fatalf("single source %v: expected %v, got %v", v, want, score)
		}
	}
}

func TestFuseFallsBackToPrior(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	score, tier, _ := e.Fuse(FusionInput{Prior: 35.0})
	if score != 35.0 {
		t.Fatalf("expected prior 35.00, got %v", score)
	}
	if tier != TierSuspicious {
		t.Fatalf("expected Suspicious, got %s", tier)
	}
}

func TestFuseProbabilityRescale(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	// All sources report on the [0,1] scale.
	score, tier, _ := e.Fuse(FusionInput{
		Content:     fptr(0.9),
		Transformer: fptr(0.8),
		Lexical:     fptr(0.7),
	})
	// (0.9*0.4 + 0.8*0.4 + 0.7*0.2) = 0.82 -> 82
	if score != 82.0 {
		t.Fatalf("expected 82.00, got %v", score)
	}
	if tier != TierHigh {
		t.Fatalf("expected High, got %s", tier)
	}
}

func TestFuseBonusesBeforeMultiplier(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 2.0}, zap.NewNop())

	score, _, reasons := e.Fuse(FusionInput{
		Content: fptr(20.0),
		Bonuses: []Bonus{{Points: 10.0, Reason: "Mixed scripts detected"}},
	})
	// (20 + 10) * 2.0 = 60, not 20*2 + 10 = 50
	if score != 60.0 {
		t.Fatalf("expected 60.00, got %v", score)
	}
	found := false
	for _, r := range reasons {
		if r == "Mixed scripts detected" {
			found = true
		}
	}
	if !found {
		t.Fatalf("bonus reason missing from %v", reasons)
	}
}

func TestFuseMultiplierClampedAndReported(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 9.0}, zap.NewNop())

	score, _, reasons := e.Fuse(FusionInput{Content: fptr(30.0)})
	if score != 75.0 {
		t.Fatalf("expected 30*2.5=75.00, got %v", score)
	}
	if len(reasons) != 1 || reasons[0] != "Adaptive weight applied (x2.50, cap 2.5)" {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestFuseClampsToHundred(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 2.5}, zap.NewNop())

	score, tier, _ := e.Fuse(FusionInput{
		Content: fptr(90.0),
		Bonuses: []Bonus{{Points: 15.0, Reason: "Homoglyph domain"}},
	})
	if score != 100.0 {
		t.Fatalf("expected clamp at 100.00, got %v", score)
	}
	if tier != TierHigh {
		t.Fatalf("expected High, got %s", tier)
	}
}

func TestFuseNeverNegative(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	score, tier, _ := e.Fuse(FusionInput{Content: fptr(0.0)})
	if score != 0.0 {
		t.Fatalf("expected 0.00, got %v", score)
	}
	if tier != TierSafe {
		t.Fatalf("expected Safe, got %s", tier)
	}
}

func TestFuseRoundsToTwoDecimals(t *testing.T) {
	e := NewFusionEngine(fixedWeights{m: 1.0}, zap.NewNop())

	score, _, _ := e.Fuse(FusionInput{
		Content: fptr(33.333),
		Lexical: fptr(33.333),
	})
	if score != round2(score) {
		t.Fatalf("score %v not rounded", score)
	}
	if math.Abs(score-33.33) > 0.001 {
		t.Fatalf("expected 33.33, got %v", score)
	}
}

func TestFuseNilWeightProvider(t *testing.T) {
	e := NewFusionEngine(nil, zap.NewNop())

	score, _, _ := e.Fuse(FusionInput{Content: fptr(40.0)})
	if score != 40.0 {
		t.Fatalf("expected 40.00, got %v", score)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskTier
	}{
		{0.0, TierSafe},
		{19.99, TierSafe},
		{20.0, TierSuspicious},
		{59.99, TierSuspicious},
		{60.0, TierHigh},
		{100.0, TierHigh},
	}
	for _, c := range cases {
		if got := TierForScore(c.score); got != c.want {
			t.Fatalf("score %v: expected %s, got %s", c.score, c.want, got)
		}
	}
}
