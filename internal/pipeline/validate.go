package pipeline

import (
	"context"

	"murajaa/internal/arabic"
	"murajaa/internal/types"
)

// Rejection reasons recorded on the event stream.
const (
	rejectTooShort      = "too_short"
	rejectTargetMissing = "target_missing"
	rejectUnknownWords  = "unknown_words"
	rejectNoDiacritics  = "no_diacritics"
)

// validation is the outcome of checking one candidate. reason is empty when
// the candidate is acceptable; words then carries a complete mapping where
// every non-function token has a lemma.
type validation struct {
	words    []types.SentenceWord
	targetID types.LemmaID
	unknown  []string
	reason   string
}

// validate tokenizes the candidate and classifies every token as target,
// function word, known word, or unknown. Candidates with a missing target
// or any unknown content token are rejected; mapping and validation are one
// pass, so an accepted candidate never carries unmapped content words.
func (p *Pipeline) validate(ctx context.Context, c *sentenceCandidate, targets map[types.LemmaID]*types.Lemma) validation {
	var v validation

	if c.ArabicDiacritized == "" {
		v.reason = rejectNoDiacritics
		return v
	}
	text := c.Arabic
	if text == "" {
		text = c.ArabicDiacritized
	}

	tokens := arabic.Tokenize(text)
	if len(tokens) < 2 {
		v.reason = rejectTooShort
		return v
	}

	targetFound := false
	for i, tok := range tokens {
		word := types.SentenceWord{Position: i, SurfaceForm: tok}
		if p.fw.Contains(tok) {
			v.words = append(v.words, word)
			continue
		}
		id, ok, err := p.store.LookupLemma(ctx, tok)
		if err != nil || !ok {
			v.unknown = append(v.unknown, tok)
			continue
		}
		lemmaID := id
		word.LemmaID = &lemmaID
		if _, isTarget := targets[id]; isTarget && !targetFound {
			v.targetID = id
			targetFound = true
		}
		v.words = append(v.words, word)
	}

	if len(v.unknown) > 0 {
		v.reason = rejectUnknownWords
		return v
	}
	if !targetFound {
		v.reason = rejectTargetMissing
		return v
	}
	for i := range v.words {
		if v.words[i].LemmaID != nil && *v.words[i].LemmaID == v.targetID {
			v.words[i].IsTarget = true
		}
	}
	return v
}
