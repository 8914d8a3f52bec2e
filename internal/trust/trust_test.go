package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

type fakeResolver struct {
	txt   map[string][]string
	err   error
	calls int
}

func (r *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	records, ok := r.txt[name]
	if !ok {
		return nil, errors.New("NXDOMAIN")
	}
	return records, nil
}

func newTestChecker(r Resolver) *Checker {
	return NewChecker(r, NewMemoryCache(), zap.NewNop())
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in          string
		want        string
		wantChanged bool
	}{
		{"PayPal.com", "paypal.com", false},
		{"www.paypal.com", "paypal.com", false},
		{"münchen.de", "xn--mnchen-3ya.de", false},
		{"ｐａｙｐａｌ.com", "paypal.com", true}, // fullwidth, NFKC-unstable
		{"", "", false},
	}
	for _, c := range cases {
		got, changed := NormalizeDomain(c.in)
		if got != c.want || changed != c.wantChanged {
			t.Fatalf("NormalizeDomain(%q) = (%q, %v), want (%q, %v)",
				c.in, got, changed, c.want, c.wantChanged)
		}
	}
}

func TestAllowlistTrustedForFreePlan(t *testing.T) {
	r := &fakeResolver{}
	c := newTestChecker(r)

	if !c.IsTrusted(context.Background(), "security@paypal.com", "Free") {
		t.Fatal("allowlisted domain must be trusted")
	}
	if r.calls != 0 {
		t.Fatal("allowlist hit must not touch DNS")
	}
}

func TestFreePlanSkipsDNS(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"_dmarc.legit.example": {"v=DMARC1; p=reject"},
	}}
	c := newTestChecker(r)

	if c.IsTrusted(context.Background(), "a@legit.example", "Free") {
		t.Fatal("free plan must not trust via DNS")
	}
	if r.calls != 0 {
		t.Fatal("free plan must not query DNS")
	}
}

func TestProPlanDMARC(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"_dmarc.legit.example": {"v=DMARC1; p=reject"},
	}}
	c := newTestChecker(r)

	if !c.IsTrusted(context.Background(), "a@legit.example", "Pro") {
		t.Fatal("DMARC-publishing domain must be trusted for Pro")
	}
}

func TestProPlanSPFFallback(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"spfonly.example": {"v=spf1 include:_spf.example.com ~all"},
	}}
	c := newTestChecker(r)

	if !c.IsTrusted(context.Background(), "a@spfonly.example", "Enterprise") {
		t.Fatal("SPF-publishing domain must be trusted for Enterprise")
	}
}

func TestLookupFailureIsNotTrusted(t *testing.T) {
	r := &fakeResolver{err: errors.New("timeout")}
	c := newTestChecker(r)

	if c.IsTrusted(context.Background(), "a@unknown.example", "Pro") {
		t.Fatal("failed lookups must fail closed")
	}
}

func TestNFKCUnstableDomainNeverTrusted(t *testing.T) {
	c := newTestChecker(&fakeResolver{})
	if c.IsTrusted(context.Background(), "a@ｐａｙｐａｌ.com", "Enterprise") {
		t.Fatal("NFKC-unstable domain must never be trusted")
	}
}

func TestVerdictCached(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"_dmarc.legit.example": {"v=DMARC1; p=none"},
	}}
	c := newTestChecker(r)
	ctx := context.Background()

	c.IsTrusted(ctx, "a@legit.example", "Pro")
	calls := r.calls
	c.IsTrusted(ctx, "b@legit.example", "Pro")
	if r.calls != calls {
		t.Fatal("second check must hit the cache")
	}
}

func TestCacheExpires(t *testing.T) {
	r := &fakeResolver{txt: map[string][]string{
		"_dmarc.legit.example": {"v=DMARC1; p=none"},
	}}
	c := newTestChecker(r)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.IsTrusted(ctx, "a@legit.example", "Pro")
	calls := r.calls

	now = now.Add(31 * 24 * time.Hour)
	c.IsTrusted(ctx, "a@legit.example", "Pro")
	if r.calls == calls {
		t.Fatal("expired cache entry must revalidate")
	}
}

func TestOverrideAndRevoke(t *testing.T) {
	c := newTestChecker(&fakeResolver{err: errors.New("down")})
	ctx := context.Background()

	if err := c.OverrideTrust(ctx, "internal.corp", true); err != nil {
		t.Fatalf("override: %v", err)
	}
	if !c.IsTrusted(ctx, "a@internal.corp", "Free") {
		t.Fatal("pinned domain must be trusted")
	}
	if err := c.RevokeTrust(ctx, "internal.corp"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if c.IsTrusted(ctx, "a@internal.corp", "Free") {
		t.Fatal("revoked domain must not be trusted")
	}
}

type stubChecker struct{ trusted bool }

func (s stubChecker) IsTrusted(ctx context.Context, email, plan string) bool { return s.trusted }

type recordingHistory struct {
	core.HistoryStore
	updated []string
}

func (h *recordingHistory) UpdateTier(ctx context.Context, messageID string, tier core.RiskTier, reason string) error {
	h.updated = append(h.updated, messageID)
	return nil
}

func TestPolicyDowngradesTrustedSender(t *testing.T) {
	hist := &recordingHistory{}
	p := NewPolicy(stubChecker{trusted: true}, hist, zap.NewNop())

	res := &core.FusedResult{
		Score:        45.0,
		Tier:         core.TierSuspicious,
		Quarantine:   true,
		MatchedRules: []string{"urgent_language"},
	}
	msg := &core.Message{ID: "m1", From: "alerts@google.com"}

	if !p.Apply(context.Background(), msg, res, core.UserContext{Plan: "Enterprise"}) {
		t.Fatal("expected override to apply")
	}
	if res.Tier != core.TierSafe || res.Quarantine {
		t.Fatalf("expected Safe/no-quarantine, got %s/%v", res.Tier, res.Quarantine)
	}
	if res.MatchedRules[len(res.MatchedRules)-1] != OverrideRuleTag {
		t.Fatalf("expected override tag, got %v", res.MatchedRules)
	}
	if len(hist.updated) != 1 || hist.updated[0] != "m1" {
		t.Fatalf("expected persisted override, got %v", hist.updated)
	}
}

func TestPolicyRespectsScoreCeiling(t *testing.T) {
	p := NewPolicy(stubChecker{trusted: true}, nil, zap.NewNop())
	res := &core.FusedResult{Score: 80.0, Tier: core.TierHigh}
	if p.Apply(context.Background(), &core.Message{From: "a@google.com"}, res, core.UserContext{}) {
		t.Fatal("score at ceiling must not be overridden")
	}
}

func TestPolicyBlockedByMaliciousRules(t *testing.T) {
	p := NewPolicy(stubChecker{trusted: true}, nil, zap.NewNop())
	for _, rule := range []string{"Malware_Signature", "phishing_url", "CredentialHarvest", "ransomware_note", "browser_exploit"} {
		res := &core.FusedResult{Score: 30.0, Tier: core.TierSuspicious, MatchedRules: []string{rule}}
		if p.Apply(context.Background(), &core.Message{From: "a@google.com"}, res, core.UserContext{}) {
			t.Fatalf("rule %q must block the override", rule)
		}
	}
}

func TestPolicySkipsUntrustedSender(t *testing.T) {
	p := NewPolicy(stubChecker{trusted: false}, nil, zap.NewNop())
	res := &core.FusedResult{Score: 30.0, Tier: core.TierSuspicious}
	if p.Apply(context.Background(), &core.Message{From: "a@evil.com"}, res, core.UserContext{}) {
		t.Fatal("untrusted sender must not be overridden")
	}
}
