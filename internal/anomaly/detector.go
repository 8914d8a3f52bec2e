// Package anomaly implements the linguistic and Unicode anomaly checks that
// contribute flat score bonuses to fusion.
package anomaly

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/autoguardian/autoguardian/internal/core"
)

// Flat bonus points per triggered check.
const (
	standardBonus        = 10.0
	homoglyphDomainBonus = 15.0
)

// scriptTable covers the writing systems checked for mixed-script abuse,
// including historic scripts that are common homoglyph sources.
var scriptTable = map[string]*unicode.RangeTable{
	"Latin":    unicode.Latin,
	"Cyrillic": unicode.Cyrillic,
	"Greek":    unicode.Greek,

	"Arabic":   unicode.Arabic,
	"Hebrew":   unicode.Hebrew,
	"Armenian": unicode.Armenian,
	"Syriac":   unicode.Syriac,
	"Thaana":   unicode.Thaana,
	"Georgian": unicode.Georgian,

	"Devanagari": unicode.Devanagari,
	"Bengali":    unicode.Bengali,
	"Gurmukhi":   unicode.Gurmukhi,
	"Gujarati":   unicode.Gujarati,
	"Oriya":      unicode.Oriya,
	"Tamil":      unicode.Tamil,
	"Telugu":     unicode.Telugu,
	"Kannada":    unicode.Kannada,
	"Malayalam":  unicode.Malayalam,
	"Sinhala":    unicode.Sinhala,
	"Thai":       unicode.Thai,
	"Lao":        unicode.Lao,
	"Tibetan":    unicode.Tibetan,
	"Myanmar":    unicode.Myanmar,
	"Khmer":      unicode.Khmer,

	"Han":       unicode.Han,
	"Hiragana":  unicode.Hiragana,
	"Katakana":  unicode.Katakana,
	"Hangul":    unicode.Hangul,
	"Bopomofo":  unicode.Bopomofo,
	"Mongolian": unicode.Mongolian,

	"Ethiopic":            unicode.Ethiopic,
	"Nko":                 unicode.Nko,
	"Tifinagh":            unicode.Tifinagh,
	"Cherokee":            unicode.Cherokee,
	"Canadian_Aboriginal": unicode.Canadian_Aboriginal,
	"Osage":               unicode.Osage,
	"Vai":                 unicode.Vai,
	"Bamum":               unicode.Bamum,
	"Adlam":               unicode.Adlam,

	"Runic":      unicode.Runic,
	"Glagolitic": unicode.Glagolitic,
	"Old_Italic": unicode.Old_Italic,
	"Linear_B":   unicode.Linear_B,
	"Cuneiform":  unicode.Cuneiform,
	"Phoenician": unicode.Phoenician,
	"Ogham":      unicode.Ogham,
}

// localeScripts maps a BCP-47 language tag prefix to the script its text is
// expected to be written in. Unlisted locales skip the language check.
var localeScripts = map[string]string{
	"en": "Latin", "es": "Latin", "fr": "Latin", "de": "Latin",
	"it": "Latin", "pt": "Latin", "nl": "Latin", "pl": "Latin",
	"sv": "Latin", "tr": "Latin", "vi": "Latin", "id": "Latin",
	"ru": "Cyrillic", "uk": "Cyrillic", "bg": "Cyrillic", "sr": "Cyrillic",
	"el": "Greek",
	"ar": "Arabic", "fa": "Arabic", "ur": "Arabic",
	"he": "Hebrew",
	"hi": "Devanagari", "mr": "Devanagari", "ne": "Devanagari",
	"bn": "Bengali",
	"ta": "Tamil",
	"te": "Telugu",
	"th": "Thai",
	"ko": "Hangul",
	"zh": "Han",
}

// Detector runs every check over a message and emits one bonus per hit.
type Detector struct {
	logger *zap.Logger
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect implements core.AnomalyDetector. The subject and body are checked
// together; the sender address gets its own domain-level check.
func (d *Detector) Detect(msg *core.Message, locale string) []core.Bonus {
	text := msg.Subject + " " + msg.Body
	var bonuses []core.Bonus

	if hit, reason := MixedScripts(text); hit {
		bonuses = append(bonuses, core.Bonus{Points: standardBonus, Reason: reason})
	}
	if hit, reason := InvisibleControls(text); hit {
		bonuses = append(bonuses, core.Bonus{Points: standardBonus, Reason: reason})
	}
	if hit, reason := EmojiSpoofing(text); hit {
		bonuses = append(bonuses, core.Bonus{Points: standardBonus, Reason: reason})
	}
	if hit, reason := HomoglyphDomain(msg.From); hit {
		bonuses = append(bonuses, core.Bonus{Points: homoglyphDomainBonus, Reason: reason})
	}
	if hit, reason := LanguageMismatch(msg.Body, locale); hit {
		bonuses = append(bonuses, core.Bonus{Points: standardBonus, Reason: reason})
	}

	if len(bonuses) > 0 && d.logger != nil {
		d.logger.Debug("Anomaly checks triggered",
			zap.String("message_id", msg.ID),
			zap.Int("hits", len(bonuses)))
	}
	return bonuses
}

func countScripts(text string) map[string]int {
	counts := make(map[string]int)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		for name, table := range scriptTable {
			if unicode.Is(table, r) {
				counts[name]++
				break
			}
		}
	}
	return counts
}

// MixedScripts reports whether the text mixes more than one writing system.
func MixedScripts(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	counts := countScripts(text)
	if len(counts) <= 1 {
		return false, ""
	}
	active := make([]string, 0, len(counts))
	for name := range counts {
		active = append(active, name)
	}
	sort.Strings(active)
	return true, "Mixed character scripts detected: " + strings.Join(active, ", ")
}

// InvisibleControls reports zero-width, directional-mark, and bidirectional
// override characters.
func InvisibleControls(text string) (bool, string) {
	for _, r := range text {
		switch {
		case r >= 0x200B && r <= 0x200F, r == 0x2060, r >= 0x2066 && r <= 0x2069:
			return true, "Contains invisible Unicode control characters"
		case r >= 0x202A && r <= 0x202E:
			return true, "Contains bidirectional override characters"
		}
	}
	return false, ""
}

// EmojiSpoofing reports emoji or pictographic characters, which legitimate
// transactional mail rarely carries in the subject or sender-visible text.
func EmojiSpoofing(text string) (bool, string) {
	for _, r := range text {
		if (r >= 0x1F000 && r <= 0x1FAFF) || (r >= 0x1F1E6 && r <= 0x1F1FF) {
			return true, "Emoji or pictographic characters present (possible spoofing)"
		}
	}
	return false, ""
}

// HomoglyphDomain checks the sender's domain for characters that change under
// NFKC normalization or that fall outside the Latin script.
func HomoglyphDomain(sender string) (bool, string) {
	if sender == "" {
		return false, ""
	}
	domain := sender
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain = sender[at+1:]
	}
	if norm.NFKC.String(domain) != domain {
		return true, "Sender domain changes under Unicode normalization (homoglyph risk)"
	}
	counts := countScripts(domain)
	for name := range counts {
		if name != "Latin" {
			return true, "Non-Latin characters detected in sender domain (possible spoof)"
		}
	}
	return false, ""
}

// LanguageMismatch compares the dominant script of the text with the script
// expected for the account's locale. Latin-to-Latin differences are not
// distinguishable at this level and never trigger.
func LanguageMismatch(text, locale string) (bool, string) {
	if text == "" || locale == "" {
		return false, ""
	}
	lang := locale
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		lang = locale[:i]
	}
	expected, ok := localeScripts[strings.ToLower(lang)]
	if !ok {
		return false, ""
	}

	counts := countScripts(text)
	dominant := ""
	best := 0
	total := 0
	for name, n := range counts {
		total += n
		if n > best {
			best = n
			dominant = name
		}
	}
	// Require a clear majority before calling the text's script.
	if total == 0 || dominant == "" || best*2 < total {
		return false, ""
	}
	if dominant != expected {
		return true, "Language mismatch: expected " + expected + " script, message is predominantly " + dominant
	}
	return false, ""
}
