// Package platevalidator normalizes, classifies, and flags license-plate
// reads. It is deterministic and does no I/O beyond an optional rule load at
// construction time, matching spec §4.1.
package platevalidator

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/anpr/compliance-core/internal/anpr/domain"
)

// Rule is one active, ordered classification regex loaded from persistent
// storage.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Status   domain.ValidationStatus
	Priority int
}

// RuleSource loads the active rule set. Implemented by the Postgres-backed
// store in production; tests and the zero-value Validator use the built-in
// UK fallback table instead.
type RuleSource interface {
	LoadActiveRules(ctx context.Context) ([]Rule, error)
}

// builtinUKRules are the compiled-in fallback used when no persisted rule
// set exists, per spec §4.1 ("built-in UK fallbacks if none exist").
var builtinUKRules = []Rule{
	{Name: "uk-current", Pattern: regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z]{3}$`), Status: domain.ValidationUKValid, Priority: 0},
	{Name: "uk-prefix", Pattern: regexp.MustCompile(`^[A-Z][0-9]{1,3}[A-Z]{3}$`), Status: domain.ValidationUKValid, Priority: 1},
	{Name: "uk-suffix", Pattern: regexp.MustCompile(`^[A-Z]{3}[0-9]{1,3}[A-Z]$`), Status: domain.ValidationUKValid, Priority: 2},
	{Name: "uk-diplomatic", Pattern: regexp.MustCompile(`^[0-9]{3}[A-Z]{1,2}[0-9]{2,3}$`), Status: domain.ValidationUKValid, Priority: 3},
	{Name: "international", Pattern: regexp.MustCompile(`^[A-Z0-9]{2,10}$`), Status: domain.ValidationInternationalValid, Priority: 100},
}

var (
	confusedLeadingIOZ = regexp.MustCompile(`^[IOZ]{3,}`)
	confusedLeading012 = regexp.MustCompile(`^[0125]{3,}`)
	nonAlphaNumeric    = regexp.MustCompile(`[^A-Z0-9]`)
	allSameChar        = regexp.MustCompile(`^(.)\1*$`)
)

// Validation is the result of classifying a normalized plate.
type Validation struct {
	Status       domain.ValidationStatus
	MatchedRule  string
}

// Suspicion is the result of detectSuspicious.
type Suspicion struct {
	IsSuspicious bool
	Reasons      []string
}

// Suspicion reason tags.
const (
	ReasonLowConfidence    = "LOW_CONFIDENCE"
	ReasonNonAlphanumeric  = "NON_ALPHANUMERIC"
	ReasonAllSameChar      = "ALL_SAME_CHARACTER"
	ReasonBadLength        = "INVALID_LENGTH"
	ReasonConfusedLeading  = "CONFUSED_LEADING_CHARACTERS"
	ReasonInvalidFormat    = "INVALID_FORMAT"
	ReasonNonUKFormat      = "NON_UK_FORMAT"
)

// ocrSubstitutions are the single-character OCR confusions used by
// suggestCorrections, per spec §4.1.
var ocrSubstitutions = map[rune][]rune{
	'0': {'O'}, 'O': {'0'},
	'1': {'I'}, 'I': {'1'},
	'5': {'S'}, 'S': {'5'},
	'8': {'B'}, 'B': {'8'},
	'2': {'Z'}, 'Z': {'2'},
	'6': {'G'}, 'G': {'6'},
}

const (
	scoreUK    = 0.8
	scoreIntl  = 0.6
	maxSuggest = 5
)

// Validator normalizes and classifies plates against an ordered, active
// rule set.
type Validator struct {
	rules []Rule
}

// New builds a Validator with the built-in UK fallback rules. Call Load to
// replace them with a persisted rule set.
func New() *Validator {
	return &Validator{rules: append([]Rule(nil), builtinUKRules...)}
}

// Load fetches the active rule set from src. If src returns no rules, the
// built-in UK fallback remains in effect.
func (v *Validator) Load(ctx context.Context, src RuleSource) error {
	rules, err := src.LoadActiveRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	v.rules = rules
	return nil
}

// Normalize upper-cases and strips whitespace. Idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Validate classifies an already-normalized plate against the active rule
// set, first match wins.
func (v *Validator) Validate(normalized string) Validation {
	for _, r := range v.rules {
		if r.Pattern.MatchString(normalized) {
			return Validation{Status: r.Status, MatchedRule: r.Name}
		}
	}
	return Validation{Status: domain.ValidationInvalid}
}

// DetectSuspicious flags a normalized plate + optional OCR confidence for
// human review, per spec §4.1(c).
func (v *Validator) DetectSuspicious(normalized string, confidence *float64) Suspicion {
	var reasons []string

	if confidence != nil && *confidence < 0.8 {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if nonAlphaNumeric.MatchString(normalized) {
		reasons = append(reasons, ReasonNonAlphanumeric)
	}
	if len(normalized) > 0 && allSameChar.MatchString(normalized) {
		reasons = append(reasons, ReasonAllSameChar)
	}
	if l := len(normalized); l < 2 || l > 10 {
		reasons = append(reasons, ReasonBadLength)
	}
	if confusedLeadingIOZ.MatchString(normalized) || confusedLeading012.MatchString(normalized) {
		reasons = append(reasons, ReasonConfusedLeading)
	}

	val := v.Validate(normalized)
	switch val.Status {
	case domain.ValidationInvalid:
		reasons = append(reasons, ReasonInvalidFormat)
	case domain.ValidationInternationalValid:
		reasons = append(reasons, ReasonNonUKFormat)
	}

	return Suspicion{IsSuspicious: len(reasons) > 0, Reasons: reasons}
}

// suggestion is an internal scored candidate used while ranking corrections.
type suggestion struct {
	plate string
	score float64
}

// SuggestCorrections generates up to 5 single-character OCR-substitution
// alternatives for normalized, ranked by the validity class of the
// resulting plate (UK=0.8, international=0.6), per spec §4.1(d).
func (v *Validator) SuggestCorrections(normalized string) []string {
	seen := map[string]bool{normalized: true}
	var candidates []suggestion

	runes := []rune(normalized)
	for i, r := range runes {
		subs, ok := ocrSubstitutions[r]
		if !ok {
			continue
		}
		for _, s := range subs {
			altRunes := append([]rune(nil), runes...)
			altRunes[i] = s
			alt := string(altRunes)
			if seen[alt] {
				continue
			}
			seen[alt] = true

			val := v.Validate(alt)
			var score float64
			switch val.Status {
			case domain.ValidationUKValid:
				score = scoreUK
			case domain.ValidationInternationalValid:
				score = scoreIntl
			default:
				continue // invalid candidates are not suggested
			}
			candidates = append(candidates, suggestion{plate: alt, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].plate < candidates[j].plate
	})

	out := make([]string, 0, maxSuggest)
	for _, c := range candidates {
		if len(out) == maxSuggest {
			break
		}
		out = append(out, c.plate)
	}
	return out
}
