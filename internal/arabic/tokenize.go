package arabic

// isArabicLetter reports whether r falls in the Arabic letter blocks used by
// MSA text (basic block plus supplement, excluding digits and punctuation).
func isArabicLetter(r rune) bool {
	switch {
	case r >= 0x0621 && r <= 0x064A: // hamza..ya
		return true
	case r >= 0x064B && r <= 0x0652: // harakat (kept attached to tokens)
		return true
	case r == 0x0670 || r == 0x0640: // dagger alef, tatweel
		return true
	case r >= 0x0671 && r <= 0x06D3: // extended letters incl. alef wasla
		return true
	}
	return false
}

// Tokenize splits Arabic text into word tokens, dropping punctuation
// (including the Arabic comma, semicolon, and question mark) and digits.
// Diacritics stay attached to their token.
func Tokenize(text string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}
	for _, r := range text {
		if isArabicLetter(r) {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
