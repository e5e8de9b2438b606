// Package arabic provides the pure text functions the engine needs for
// Modern Standard Arabic: diacritic stripping, orthographic normalization,
// tokenization, clitic decomposition, and function-word classification.
package arabic

import "strings"

// harakat are the optional vowel and gemination marks plus the dagger alef
// and tatweel, all removed by StripDiacritics.
var harakatReplacer = strings.NewReplacer(
	"ً", "", // fathatan
	"ٌ", "", // dammatan
	"ٍ", "", // kasratan
	"َ", "", // fatha
	"ُ", "", // damma
	"ِ", "", // kasra
	"ّ", "", // shadda
	"ْ", "", // sukun
	"ٰ", "", // dagger alef
	"ـ", "", // tatweel
)

// alefReplacer folds the hamza-carrying and wasla alef variants to bare alef.
var alefReplacer = strings.NewReplacer(
	"أ", "ا", // alef with hamza above
	"إ", "ا", // alef with hamza below
	"آ", "ا", // alef with madda
	"ٱ", "ا", // alef wasla
)

// StripDiacritics removes all harakat, shadda, sukun, dagger alef, and
// tatweel from s.
func StripDiacritics(s string) string {
	return harakatReplacer.Replace(s)
}

// NormalizeAlef folds alef variants to the bare alef.
func NormalizeAlef(s string) string {
	return alefReplacer.Replace(s)
}

// Normalize returns the canonical bare form used for lemma lookup keys:
// diacritics stripped, then alef variants folded. The bare form of a lemma
// surface is deterministic under this function.
func Normalize(s string) string {
	return NormalizeAlef(StripDiacritics(strings.TrimSpace(s)))
}

// TaMarbutaToTa rewrites a final ta-marbuta as an open ta. Possessive
// enclitics force this spelling change (مدرسة + ه → مدرسته), so clitic
// stripping must undo it.
func TaMarbutaToTa(s string) string {
	if strings.HasSuffix(s, "ة") {
		return strings.TrimSuffix(s, "ة") + "ت"
	}
	return s
}

// TaToTaMarbuta is the reverse restoration applied to a stem after an
// enclitic was removed.
func TaToTaMarbuta(s string) string {
	if strings.HasSuffix(s, "ت") {
		return strings.TrimSuffix(s, "ت") + "ة"
	}
	return s
}
