package arabic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips harakat", "كَتَبَ", "كتب"},
		{"strips tanwin and shadda", "مُدَرِّسٌ", "مدرس"},
		{"folds hamza alef", "أكل", "اكل"},
		{"folds madda alef", "آمن", "امن"},
		{"folds alef wasla", "ٱلكتاب", "الكتاب"},
		{"removes tatweel", "كـتـاب", "كتاب"},
		{"trims whitespace", " بيت ", "بيت"},
		{"idempotent on bare form", "مدرسة", "مدرسة"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	// bare must be a fixed point: Normalize(Normalize(x)) == Normalize(x)
	for _, s := range []string{"أَكَلَ", "ٱلْمَدْرَسَةُ", "كِتَابٌ"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
}

func TestTokenize(t *testing.T) {
	toks := Tokenize("ذهبَ الولدُ إلى المدرسةِ.")
	assert.Equal(t, []string{"ذهبَ", "الولدُ", "إلى", "المدرسةِ"}, toks)

	toks = Tokenize("هل تحب القهوة؟ نعم، أحبها!")
	assert.Equal(t, []string{"هل", "تحب", "القهوة", "نعم", "أحبها"}, toks)

	assert.Empty(t, Tokenize("123 ... !"))
}

func TestCliticCandidates(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // stem that must be among the candidates
	}{
		{"wal prefix", "والكتاب", "كتاب"},
		{"al prefix", "المدرسة", "مدرسة"},
		{"bi prefix", "بالقلم", "قلم"},
		{"lil prefix", "للبيت", "بيت"},
		{"waw alone", "وذهب", "ذهب"},
		{"possessive ha", "كتابه", "كتاب"},
		{"object pronoun plural", "رايتهم", "رايت"},
		{"ta marbuta restoration", "مدرسته", "مدرسة"},
		{"prefix and suffix", "ومدرسته", "مدرسة"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, CliticCandidates(tt.in), tt.want)
		})
	}
}

func TestCliticCandidatesExcludesSelfAndShortStems(t *testing.T) {
	cands := CliticCandidates("له")
	assert.NotContains(t, cands, "له")
	for _, c := range cands {
		assert.GreaterOrEqual(t, len([]rune(c)), minStemRunes)
	}
}

func TestCliticCandidatesProcliticPriority(t *testing.T) {
	// The proclitic-only stem must come before the combined strip so the
	// first index hit prefers the lighter analysis.
	cands := CliticCandidates("والكتاب")
	require.NotEmpty(t, cands)
	assert.Equal(t, "كتاب", cands[0])
}

func TestFunctionWords(t *testing.T) {
	fw := DefaultFunctionWords()
	require.NotZero(t, fw.Len())

	// Conjugated copulas and existentials are function words and must match
	// directly so they are never clitic-split (كانت is not كان + ت, and
	// توجد is not ت + وجد).
	for _, w := range []string{"كانت", "توجد", "يوجد", "في", "هذا", "التي"} {
		assert.True(t, fw.Contains(w), "expected %q to be a function word", w)
	}

	// Diacritized surfaces normalize before lookup.
	assert.True(t, fw.Contains("فِي"))
	assert.True(t, fw.Contains("إلى"))

	assert.False(t, fw.Contains("مدرسة"))
	assert.False(t, fw.Contains("كتاب"))
}

func TestTaMarbutaRoundTrip(t *testing.T) {
	assert.Equal(t, "مدرست", TaMarbutaToTa("مدرسة"))
	assert.Equal(t, "مدرسة", TaToTaMarbuta("مدرست"))
	assert.Equal(t, "قلم", TaMarbutaToTa("قلم"))
	assert.Equal(t, "قلم", TaToTaMarbuta("قلم"))
}
