package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"murajaa/internal/llm"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

const generationSystemPrompt = `You are a Modern Standard Arabic sentence writer for a vocabulary learner.
Write short, natural MSA sentences with full diacritics (tashkeel).
Use ONLY words from the learner's vocabulary list plus common function words.
Never use a content word outside the vocabulary list.
Respond with JSON only, no commentary.`

// manifest is the vocabulary contract sent with every generation request.
type manifest struct {
	vocab []string
	avoid []string
}

// buildManifest collects the learner's usable vocabulary and the over-used
// content words to steer away from. A word is over-used when its active
// sentence count exceeds max(4, 2 x median count).
func (p *Pipeline) buildManifest(ctx context.Context) (*manifest, error) {
	know, err := p.store.KnowledgeInStates(ctx,
		types.StateAcquiring, types.StateLearning, types.StateKnown, types.StateLapsed)
	if err != nil {
		return nil, err
	}
	lemmas, err := p.store.AllLemmas(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.LemmaID]*types.Lemma, len(lemmas))
	for _, l := range lemmas {
		byID[l.ID] = l
	}

	var vocab []string
	for _, k := range know {
		if l := byID[k.LemmaID]; l != nil && !l.IsVariant() {
			vocab = append(vocab, l.Surface)
		}
	}
	sort.Strings(vocab)

	freq, err := p.store.ContentWordFrequency(ctx)
	if err != nil {
		return nil, err
	}
	var avoid []string
	threshold := overuseThreshold(freq)
	for id, count := range freq {
		if count > threshold {
			if l := byID[id]; l != nil {
				avoid = append(avoid, l.Surface)
			}
		}
	}
	sort.Strings(avoid)

	return &manifest{vocab: vocab, avoid: avoid}, nil
}

// overuseThreshold returns max(4, 2 x median sentence count).
func overuseThreshold(freq map[types.LemmaID]int) int {
	if len(freq) == 0 {
		return 4
	}
	counts := make([]int, 0, len(freq))
	for _, c := range freq {
		counts = append(counts, c)
	}
	sort.Ints(counts)
	median := counts[len(counts)/2]
	if t := 2 * median; t > 4 {
		return t
	}
	return 4
}

// sentenceCandidate is the shape each generated sentence must arrive in.
type sentenceCandidate struct {
	Arabic            string   `json:"arabic"`
	ArabicDiacritized string   `json:"arabic_diacritized"`
	English           string   `json:"english"`
	Transliteration   string   `json:"transliteration"`
	Target            string   `json:"target"`
	GrammarFeatures   []string `json:"grammar_features"`
}

// generateForGroup runs the bounded generate-validate loop for one target
// group. Rejection feedback (unknown words seen so far) is carried into the
// next attempt's prompt. Returns accepted and rejected counts.
func (p *Pipeline) generateForGroup(ctx context.Context, group []gap, m *manifest, now time.Time) (int, int, error) {
	targets := make(map[types.LemmaID]*types.Lemma, len(group))
	needed := make(map[types.LemmaID]int, len(group))
	for _, g := range group {
		targets[g.lemma.ID] = g.lemma
		needed[g.lemma.ID] = g.needed
	}

	accepted, rejected := 0, 0
	carriedUnknown := make(map[string]bool)

	for attempt := 0; attempt <= p.config.MaxRetries && remaining(needed) > 0; attempt++ {
		obj, err := llm.GenerateStructured(ctx, p.llm, llm.StructuredRequest{
			SystemPrompt: generationSystemPrompt,
			Prompt:       p.buildPrompt(group, m, carriedUnknown),
			RequiredKeys: []string{"sentences"},
			TaskType:     "sentence_generation",
		})
		if err != nil {
			p.log.Warn("generation call failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if ctx.Err() != nil {
				return accepted, rejected, ctx.Err()
			}
			continue
		}
		candidates, err := parseCandidates(obj)
		if err != nil {
			p.log.Warn("generation response malformed", zap.Error(err))
			rejected++
			continue
		}

		for _, c := range candidates {
			if remaining(needed) == 0 {
				break
			}
			v := p.validate(ctx, &c, targets)
			for _, w := range v.unknown {
				carriedUnknown[w] = true
			}
			if v.reason != "" {
				rejected++
				if err := p.recordRejection(ctx, &c, v.reason, v.unknown, now); err != nil {
					return accepted, rejected, err
				}
				continue
			}
			if needed[v.targetID] <= 0 {
				continue
			}
			if err := p.persistSentence(ctx, &c, v, now); err != nil {
				return accepted, rejected, err
			}
			accepted++
			needed[v.targetID]--
		}
	}
	return accepted, rejected, nil
}

func remaining(needed map[types.LemmaID]int) int {
	total := 0
	for _, n := range needed {
		if n > 0 {
			total += n
		}
	}
	return total
}

// buildPrompt renders the generation request for one group.
func (p *Pipeline) buildPrompt(group []gap, m *manifest, carriedUnknown map[string]bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d Arabic sentences. Each sentence must feature exactly one of these target words:\n", p.config.CandidatesPerRequest)
	for _, g := range group {
		fmt.Fprintf(&b, "- %s (%s)\n", g.lemma.Surface, g.lemma.Gloss)
	}

	b.WriteString("\nVocabulary the learner knows (use only these content words):\n")
	b.WriteString(strings.Join(m.vocab, "، "))
	b.WriteString("\n")

	if len(m.avoid) > 0 {
		b.WriteString("\nAvoid these over-used words:\n")
		b.WriteString(strings.Join(m.avoid, "، "))
		b.WriteString("\n")
	}

	if len(carriedUnknown) > 0 {
		unknown := make([]string, 0, len(carriedUnknown))
		for w := range carriedUnknown {
			unknown = append(unknown, w)
		}
		sort.Strings(unknown)
		b.WriteString("\nYour previous attempt used these words the learner does NOT know; do not use them:\n")
		b.WriteString(strings.Join(unknown, "، "))
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with this JSON shape:
{"sentences": [{"arabic": "...", "arabic_diacritized": "...", "english": "...", "transliteration": "...", "target": "<target word>", "grammar_features": ["..."]}]}`)
	return b.String()
}

// parseCandidates extracts the sentence list from a structured response.
func parseCandidates(obj map[string]any) ([]sentenceCandidate, error) {
	raw, err := json.Marshal(obj["sentences"])
	if err != nil {
		return nil, fmt.Errorf("re-encode sentences: %w", err)
	}
	var candidates []sentenceCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, fmt.Errorf("decode sentences: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("empty sentence list")
	}
	return candidates, nil
}

// persistSentence commits one validated sentence with its word mapping and
// the acceptance event in a single transaction.
func (p *Pipeline) persistSentence(ctx context.Context, c *sentenceCandidate, v validation, now time.Time) error {
	target := v.targetID
	s := &types.Sentence{
		ArabicRaw:         c.Arabic,
		ArabicDiacritized: c.ArabicDiacritized,
		English:           c.English,
		Transliteration:   c.Transliteration,
		TargetLemmaID:     &target,
		IsActive:          true,
		Source:            "llm",
		GrammarFeatures:   c.GrammarFeatures,
		CreatedAt:         now,
	}
	err := p.store.WithTx(ctx, func(q *store.Queries) error {
		id, err := q.InsertSentence(ctx, s, v.words)
		if err != nil {
			return err
		}
		return q.AppendEvent(ctx, "sentence_accepted", map[string]any{
			"sentence_id": int64(id),
			"target":      int64(target),
		}, now)
	})
	if err != nil {
		return fmt.Errorf("persist sentence: %w", err)
	}
	return nil
}

// recordRejection emits the rejection event; nothing else is persisted.
func (p *Pipeline) recordRejection(ctx context.Context, c *sentenceCandidate, reason string, unknown []string, now time.Time) error {
	attrs := map[string]any{
		"arabic": c.Arabic,
		"reason": reason,
	}
	if len(unknown) > 0 {
		attrs["unknown_words"] = strings.Join(unknown, " ")
	}
	return p.store.AppendEvent(ctx, "sentence_rejected", attrs, now)
}
