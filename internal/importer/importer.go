// Package importer seeds the knowledge store from dictionary export files:
// a phase pipeline over roots, lemmas, and the function-word list, with
// per-phase results and per-record error resilience.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"murajaa/internal/arabic"
	"murajaa/internal/store"
	"murajaa/internal/types"
)

// PhaseResult is the outcome of one import phase.
type PhaseResult struct {
	Phase    string
	Inserted int
	Skipped  int
	Errors   []string
	Duration time.Duration
}

// Importer loads dictionary exports into the store.
type Importer struct {
	store *store.Store
	log   *zap.Logger
}

func New(st *store.Store, log *zap.Logger) *Importer {
	return &Importer{store: st, log: log}
}

// rootRecord is one line of roots.jsonl.
type rootRecord struct {
	Radicals string `json:"radicals"`
	Gloss    string `json:"gloss"`
}

// lemmaRecord is one line of lemmas.jsonl. Variants are alternate surface
// spellings that resolve to this entry.
type lemmaRecord struct {
	Surface       string            `json:"surface"`
	Gloss         string            `json:"gloss"`
	POS           string            `json:"pos"`
	Root          string            `json:"root"`
	RootGloss     string            `json:"root_gloss"`
	FrequencyRank *int              `json:"frequency_rank"`
	Forms         map[string]string `json:"forms"`
	Variants      []string          `json:"variants"`
}

// Run executes the import phases in dependency order: roots before the
// lemmas that reference them, then the function-word list check. A missing
// input file skips its phase; a bad record is logged into the phase result
// and the rest of the file still imports.
func (im *Importer) Run(ctx context.Context, dir string) ([]PhaseResult, error) {
	results := make([]PhaseResult, 0, 3)

	roots, err := im.importRoots(ctx, filepath.Join(dir, "roots.jsonl"))
	if err != nil {
		return results, err
	}
	results = append(results, roots)

	lemmas, err := im.importLemmas(ctx, filepath.Join(dir, "lemmas.jsonl"))
	if err != nil {
		return results, err
	}
	results = append(results, lemmas)

	fw, err := im.checkFunctionWords(filepath.Join(dir, "function_words.yaml"))
	if err != nil {
		return results, err
	}
	results = append(results, fw)

	for _, r := range results {
		im.log.Info("import phase complete",
			zap.String("phase", r.Phase),
			zap.Int("inserted", r.Inserted),
			zap.Int("skipped", r.Skipped),
			zap.Int("errors", len(r.Errors)),
			zap.Duration("duration", r.Duration))
	}
	return results, nil
}

func (im *Importer) importRoots(ctx context.Context, path string) (PhaseResult, error) {
	res := PhaseResult{Phase: "roots"}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	err := eachJSONLine(path, func(line int, data []byte) {
		var rec rootRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			return
		}
		if rec.Radicals == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: missing radicals", line))
			return
		}
		if _, err := im.store.InsertRoot(ctx, rec.Radicals, rec.Gloss); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			return
		}
		res.Inserted++
	})
	if os.IsNotExist(err) {
		return res, nil
	}
	return res, err
}

func (im *Importer) importLemmas(ctx context.Context, path string) (PhaseResult, error) {
	res := PhaseResult{Phase: "lemmas"}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	existing, err := im.existingBareForms(ctx)
	if err != nil {
		return res, err
	}

	err = eachJSONLine(path, func(line int, data []byte) {
		var rec lemmaRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			return
		}
		if rec.Surface == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: missing surface", line))
			return
		}
		bare := arabic.Normalize(rec.Surface)
		if existing[bare] {
			res.Skipped++
			return
		}

		l := &types.Lemma{
			Surface:       rec.Surface,
			Gloss:         rec.Gloss,
			POS:           types.PartOfSpeech(rec.POS),
			FrequencyRank: rec.FrequencyRank,
			Forms:         rec.Forms,
		}
		if rec.Root != "" {
			rootID, err := im.store.InsertRoot(ctx, rec.Root, rec.RootGloss)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: root: %v", line, err))
				return
			}
			l.RootID = &rootID
		}
		id, err := im.store.InsertLemma(ctx, l)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			return
		}
		existing[bare] = true
		res.Inserted++

		for _, variant := range rec.Variants {
			vbare := arabic.Normalize(variant)
			if vbare == "" || existing[vbare] {
				continue
			}
			canonical := id
			if _, err := im.store.InsertLemma(ctx, &types.Lemma{
				Surface:     variant,
				Gloss:       rec.Gloss,
				POS:         types.PartOfSpeech(rec.POS),
				CanonicalID: &canonical,
			}); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: variant %s: %v", line, variant, err))
				continue
			}
			existing[vbare] = true
			res.Inserted++
		}
	})
	im.store.InvalidateLemmaIndex()
	if os.IsNotExist(err) {
		return res, nil
	}
	return res, err
}

// checkFunctionWords validates an optional supplemental function-word list.
// The list itself is loaded at runtime; the phase reports its size.
func (im *Importer) checkFunctionWords(path string) (PhaseResult, error) {
	res := PhaseResult{Phase: "function-words"}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return res, nil
	}
	fw, err := arabic.LoadFunctionWords(path)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	res.Inserted = fw.Len()
	return res, nil
}

// existingBareForms loads the bare forms already in the store for dedup.
func (im *Importer) existingBareForms(ctx context.Context) (map[string]bool, error) {
	lemmas, err := im.store.AllLemmas(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(lemmas))
	for _, l := range lemmas {
		out[l.Bare] = true
	}
	return out, nil
}

// eachJSONLine streams a JSONL file line by line. Blank lines are ignored.
func eachJSONLine(path string, fn func(line int, data []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		fn(n, line)
	}
	return sc.Err()
}
