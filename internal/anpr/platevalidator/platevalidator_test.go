package platevalidator

import (
	"context"
	"regexp"
	"testing"

	"github.com/anpr/compliance-core/internal/anpr/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuleSource struct {
	rules []Rule
	err   error
}

func (f fakeRuleSource) LoadActiveRules(context.Context) ([]Rule, error) { return f.rules, f.err }

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"ab12 cde", " AB12CDE ", "ab\t12\ncde", "already-normal"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "normalize should be idempotent for %q", in)
	}
}

func TestNormalizeUppercasesAndStripsWhitespace(t *testing.T) {
	assert.Equal(t, "AB12CDE", Normalize("ab12 cde"))
	assert.Equal(t, "AB12CDE", Normalize(" Ab12Cde\n"))
}

func TestValidateUKFormats(t *testing.T) {
	v := New()

	cases := []struct {
		plate  string
		status domain.ValidationStatus
	}{
		{"AB12CDE", domain.ValidationUKValid},
		{"A123BCD", domain.ValidationUKValid},
		{"!!!", domain.ValidationInvalid},
	}

	for _, c := range cases {
		got := v.Validate(c.plate)
		assert.Equal(t, c.status, got.Status, "plate %q", c.plate)
	}
}

func TestDetectSuspiciousLowConfidence(t *testing.T) {
	v := New()
	conf := 0.5
	s := v.DetectSuspicious("AB12CDE", &conf)
	assert.True(t, s.IsSuspicious)
	assert.Contains(t, s.Reasons, ReasonLowConfidence)
}

func TestDetectSuspiciousConfusedLeadingChars(t *testing.T) {
	v := New()
	s := v.DetectSuspicious("IOZ1234", nil)
	assert.True(t, s.IsSuspicious)
	assert.Contains(t, s.Reasons, ReasonConfusedLeading)
}

func TestDetectSuspiciousAllSameCharacter(t *testing.T) {
	v := New()
	s := v.DetectSuspicious("AAAAAAA", nil)
	assert.Contains(t, s.Reasons, ReasonAllSameChar)
}

func TestDetectSuspiciousBadLength(t *testing.T) {
	v := New()
	assert.Contains(t, v.DetectSuspicious("A", nil).Reasons, ReasonBadLength)
	assert.Contains(t, v.DetectSuspicious("ABCDEFGHIJK", nil).Reasons, ReasonBadLength)
}

func TestDetectSuspiciousNonUKFormat(t *testing.T) {
	v := New()
	s := v.DetectSuspicious("1A2B3C4D", nil)
	assert.Contains(t, s.Reasons, ReasonNonUKFormat)
}

func TestDetectSuspiciousCleanUKPlate(t *testing.T) {
	v := New()
	conf := 0.95
	s := v.DetectSuspicious("AB12CDE", &conf)
	assert.False(t, s.IsSuspicious)
	assert.Empty(t, s.Reasons)
}

func TestSuggestCorrectionsRanksUKAboveInternational(t *testing.T) {
	v := New()
	// "AB1OCDE" only matches an international shape; substituting O->0
	// yields a valid UK plate, which must rank ahead of the international
	// candidates (B->8, 1->I substitutions).
	suggestions := v.SuggestCorrections("AB1OCDE")
	require.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions, "AB10CDE")
	assert.Equal(t, "AB10CDE", suggestions[0])
}

func TestSuggestCorrectionsCapsAtFive(t *testing.T) {
	v := New()
	suggestions := v.SuggestCorrections("0011225")
	assert.LessOrEqual(t, len(suggestions), maxSuggest)
}

func TestSuggestCorrectionsNeverReturnsInputPlate(t *testing.T) {
	v := New()
	suggestions := v.SuggestCorrections("AB12CDE")
	for _, s := range suggestions {
		assert.NotEqual(t, "AB12CDE", s)
	}
}

func TestLoadReplacesBuiltinRulesInPriorityOrder(t *testing.T) {
	v := New()
	src := fakeRuleSource{rules: []Rule{
		{Name: "custom-low-priority", Pattern: regexp.MustCompile(`^[A-Z0-9]{2,10}$`), Status: domain.ValidationInternationalValid, Priority: 10},
		{Name: "custom-high-priority", Pattern: regexp.MustCompile(`^Z{7}$`), Status: domain.ValidationUKValid, Priority: 0},
	}}

	require.NoError(t, v.Load(context.Background(), src))

	got := v.Validate("ZZZZZZZ")
	assert.Equal(t, "custom-high-priority", got.MatchedRule)
	assert.Equal(t, domain.ValidationUKValid, got.Status)

	got = v.Validate("AB12CDE")
	assert.Equal(t, "custom-low-priority", got.MatchedRule)
}

func TestLoadKeepsBuiltinRulesWhenSourceIsEmpty(t *testing.T) {
	v := New()
	require.NoError(t, v.Load(context.Background(), fakeRuleSource{}))
	got := v.Validate("AB12CDE")
	assert.Equal(t, domain.ValidationUKValid, got.Status)
}

func TestLoadPropagatesSourceError(t *testing.T) {
	v := New()
	err := v.Load(context.Background(), fakeRuleSource{err: assert.AnError})
	require.Error(t, err)
}
