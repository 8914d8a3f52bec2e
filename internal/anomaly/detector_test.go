package anomaly

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

func TestMixedScripts(t *testing.T) {
	if hit, _ := MixedScripts("hello world"); hit {
		t.Fatal("plain Latin must not trigger")
	}
	if hit, _ := MixedScripts(""); hit {
		t.Fatal("empty text must not trigger")
	}
	hit, reason := MixedScripts("pаypal account") // Cyrillic а
	if !hit {
		t.Fatal("Latin/Cyrillic mix must trigger")
	}
	if !strings.Contains(reason, "Cyrillic") || !strings.Contains(reason, "Latin") {
		t.Fatalf("reason should name scripts, got %q", reason)
	}
	if hit, _ := MixedScripts("привет мир"); hit {
		t.Fatal("pure Cyrillic must not trigger")
	}
}

func TestInvisibleControls(t *testing.T) {
	if hit, _ := InvisibleControls("normal text"); hit {
		t.Fatal("clean text must not trigger")
	}
	if hit, _ := InvisibleControls("pay​pal"); !hit {
		t.Fatal("zero-width space must trigger")
	}
	hit, reason := InvisibleControls("abc‮def")
	if !hit {
		t.Fatal("RTL override must trigger")
	}
	if !strings.Contains(reason, "bidirectional") {
		t.Fatalf("expected bidi reason, got %q", reason)
	}
	if hit, _ := InvisibleControls("word⁠joiner"); !hit {
		t.Fatal("word joiner must trigger")
	}
}

func TestEmojiSpoofing(t *testing.T) {
	if hit, _ := EmojiSpoofing("quarterly report"); hit {
		t.Fatal("plain text must not trigger")
	}
	if hit, _ := EmojiSpoofing("urgent \U0001F512 verify now"); !hit {
		t.Fatal("lock emoji must trigger")
	}
	if hit, _ := EmojiSpoofing("from \U0001F1FA\U0001F1F8 office"); !hit {
		t.Fatal("flag sequence must trigger")
	}
}

func TestHomoglyphDomain(t *testing.T) {
	if hit, _ := HomoglyphDomain("billing@paypal.com"); hit {
		t.Fatal("ASCII domain must not trigger")
	}
	hit, reason := HomoglyphDomain("billing@pаypal.com") // Cyrillic а in domain
	if !hit {
		t.Fatal("Cyrillic in domain must trigger")
	}
	if !strings.Contains(reason, "Non-Latin") {
		t.Fatalf("unexpected reason %q", reason)
	}
	// Fullwidth letters normalize differently under NFKC.
	hit, reason = HomoglyphDomain("x@ｐａｙｐａｌ.com")
	if !hit {
		t.Fatal("NFKC-unstable domain must trigger")
	}
	if !strings.Contains(reason, "normalization") {
		t.Fatalf("unexpected reason %q", reason)
	}
	if hit, _ := HomoglyphDomain(""); hit {
		t.Fatal("empty sender must not trigger")
	}
}

func TestLanguageMismatch(t *testing.T) {
	if hit, _ := LanguageMismatch("please review the attached invoice", "en"); hit {
		t.Fatal("English text with en locale must not trigger")
	}
	if hit, _ := LanguageMismatch("veuillez consulter la facture", "en"); hit {
		t.Fatal("Latin-to-Latin differences must not trigger")
	}
	hit, reason := LanguageMismatch("срочно подтвердите ваш аккаунт сейчас", "en")
	if !hit {
		t.Fatal("Cyrillic body with en locale must trigger")
	}
	if !strings.Contains(reason, "Cyrillic") {
		t.Fatalf("unexpected reason %q", reason)
	}
	if hit, _ := LanguageMismatch("срочно подтвердите", "ru"); hit {
		t.Fatal("Cyrillic body with ru locale must not trigger")
	}
	if hit, _ := LanguageMismatch("whatever text", "xx"); hit {
		t.Fatal("unknown locale must skip the check")
	}
	if hit, _ := LanguageMismatch("text", ""); hit {
		t.Fatal("empty locale must skip the check")
	}
	// Region subtags are stripped.
	if hit, _ := LanguageMismatch("hello there friend", "en-US"); hit {
		t.Fatal("en-US must behave like en")
	}
}

func TestDetectorAggregatesBonuses(t *testing.T) {
	d := NewDetector(zap.NewNop())
	msg := &core.Message{
		ID:      "m1",
		From:    "support@pаypal.com", // Cyrillic а
		Subject: "Verify \U0001F512 your account",
		Body:    "click here​ now",
	}
	bonuses := d.Detect(msg, "en")

	var total float64
	hasHomoglyph := false
	for _, b := range bonuses {
		total += b.Points
		if b.Points == homoglyphDomainBonus {
			hasHomoglyph = true
		}
	}
	if !hasHomoglyph {
		t.Fatal("expected the 15-point domain bonus")
	}
	// emoji + invisible + homoglyph domain at minimum
	if total < 35.0 {
		t.Fatalf("expected at least 35 points, got %v", total)
	}
}

func TestDetectorCleanMessage(t *testing.T) {
	d := NewDetector(zap.NewNop())
	msg := &core.Message{
		ID:      "m2",
		From:    "newsletter@example.com",
		Subject: "Weekly digest",
		Body:    "Here is what happened this week.",
	}
	if got := d.Detect(msg, "en"); len(got) != 0 {
		t.Fatalf("expected no bonuses, got %v", got)
	}
}
