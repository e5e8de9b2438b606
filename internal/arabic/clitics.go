package arabic

import "strings"

// Proclitics that attach to the front of a content word, longest first so a
// compound like وال is tried before و.
var proclitics = []string{
	"وال", "فال", "كال", "بال", "لل",
	"وب", "ول", "فب", "فل",
	"و", "ف", "ب", "ل", "ك",
	"ال",
}

// Enclitics are the possessive / object pronouns, longest first.
var enclitics = []string{
	"هما", "كما", "هم", "هن", "كم", "كن", "نا", "ها",
	"ه", "ك", "ي",
}

// minStemRunes guards against stripping a short word down to nothing.
const minStemRunes = 2

// CliticCandidates returns the candidate stems obtained by removing at most
// one proclitic and at most one enclitic from a normalized token, in priority
// order: proclitic-only first, then enclitic-only (with the ta-marbuta
// restoration variant), then both. The caller tries each against the lemma
// index and takes the first hit; the token itself is not included.
func CliticCandidates(bare string) []string {
	var out []string
	seen := map[string]bool{bare: true}
	add := func(s string) {
		if s != "" && !seen[s] && len([]rune(s)) >= minStemRunes {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, p := range proclitics {
		if rest, ok := strings.CutPrefix(bare, p); ok {
			add(rest)
		}
	}
	for _, stem := range encliticStems(bare) {
		add(stem)
	}
	// Both ends at once, using each proclitic-stripped form as the base.
	for _, p := range proclitics {
		if rest, ok := strings.CutPrefix(bare, p); ok {
			for _, stem := range encliticStems(rest) {
				add(stem)
			}
		}
	}
	return out
}

// encliticStems returns the stems produced by removing one enclitic,
// including the ta-marbuta restoration variant for each.
func encliticStems(s string) []string {
	var out []string
	for _, e := range enclitics {
		stem, ok := strings.CutSuffix(s, e)
		if !ok || stem == "" {
			continue
		}
		out = append(out, stem)
		if restored := TaToTaMarbuta(stem); restored != stem {
			out = append(out, restored)
		}
	}
	return out
}
