package lexical

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

func classify(t *testing.T, subject, body string) *core.SignalResult {
	t.Helper()
	c := NewClassifier(zap.NewNop())
	res, err := c.Classify(context.Background(), &core.Message{
		ID:      "m1",
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return res
}

func TestCleanMessageScoresZero(t *testing.T) {
	res := classify(t, "Team offsite agenda", "See you at the offsite on Thursday.")
	if res.Score != 0 || len(res.Labels) != 0 {
		t.Fatalf("expected zero result, got %+v", res)
	}
}

func TestCredentialHarvestDetected(t *testing.T) {
	res := classify(t, "Action needed", "Please verify your account password before Friday.")
	if res.Score <= 0 {
		t.Fatalf("expected positive score, got %v", res.Score)
	}
	if !hasLabel(res, "credential_harvest") {
		t.Fatalf("expected credential_harvest label, got %v", res.Labels)
	}
}

func TestMultipleIntents(t *testing.T) {
	res := classify(t, "URGENT: invoice overdue",
		"Your payment is overdue. Act immediately or your account will be suspended. Verify your login now.")
	if !hasLabel(res, "payment_fraud") || !hasLabel(res, "urgency_coercion") || !hasLabel(res, "credential_harvest") {
		t.Fatalf("expected three intents, got %v", res.Labels)
	}
	if res.Score <= 30.0 {
		t.Fatalf("expected elevated score, got %v", res.Score)
	}
	if len(res.Reasons) == 0 {
		t.Fatal("expected tactic reasons")
	}
}

func TestScoreSaturation(t *testing.T) {
	// All three urgency patterns cannot hit (there are two), so saturate a
	// three-pattern intent instead.
	res := classify(t, "Reset your MFA",
		"Please verify your account login via SSO. Your 2FA needs a reset.")
	if !hasLabel(res, "credential_harvest") {
		t.Fatalf("expected credential_harvest, got %v", res.Labels)
	}
	if res.Score != 100.0 {
		t.Fatalf("expected saturation at 100, got %v", res.Score)
	}
}

func TestMatchingIsCaseInsensitive(t *testing.T) {
	res := classify(t, "FINAL NOTICE", "VERIFY YOUR ACCOUNT IMMEDIATELY")
	if res.Score <= 0 {
		t.Fatalf("expected match on uppercase text, got %v", res.Score)
	}
}

func hasLabel(res *core.SignalResult, label string) bool {
	for _, l := range res.Labels {
		if l == label {
			return true
		}
	}
	return false
}
