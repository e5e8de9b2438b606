package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"murajaa/internal/arabic"
	"murajaa/internal/types"
)

// InsertLemma stores a lemma, deriving the bare form from the surface. The
// canonical target of a variant must itself be non-variant.
func (q *Queries) InsertLemma(ctx context.Context, l *types.Lemma) (types.LemmaID, error) {
	if l.Bare == "" {
		l.Bare = arabic.Normalize(l.Surface)
	}
	if l.CanonicalID != nil {
		canon, err := q.GetLemma(ctx, *l.CanonicalID)
		if err != nil {
			return 0, fmt.Errorf("resolve canonical lemma: %w", err)
		}
		if canon.IsVariant() {
			return 0, fmt.Errorf("canonical_lemma_id %d is itself a variant", canon.ID)
		}
	}
	var formsJSON any
	if len(l.Forms) > 0 {
		b, err := json.Marshal(l.Forms)
		if err != nil {
			return 0, fmt.Errorf("encode forms: %w", err)
		}
		formsJSON = string(b)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO lemmas (surface, bare, gloss, pos, root_id, frequency_rank, forms_json, canonical_lemma_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Surface, l.Bare, l.Gloss, string(l.POS), l.RootID, l.FrequencyRank, formsJSON, l.CanonicalID, l.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert lemma: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("lemma insert id: %w", err)
	}
	l.ID = types.LemmaID(id)
	return l.ID, nil
}

// UpdateLemmaGloss fixes the gloss of an existing lemma.
func (q *Queries) UpdateLemmaGloss(ctx context.Context, id types.LemmaID, gloss string) error {
	res, err := q.q.ExecContext(ctx, `UPDATE lemmas SET gloss = ? WHERE id = ?`, gloss, id)
	if err != nil {
		return fmt.Errorf("update gloss: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLemmaNotFound
	}
	return nil
}

// MarkVariant relinks a lemma as a variant of canonical. Lemmas are never
// deleted; retiring one means pointing it at its canonical entry.
func (q *Queries) MarkVariant(ctx context.Context, id, canonical types.LemmaID) error {
	canon, err := q.GetLemma(ctx, canonical)
	if err != nil {
		return err
	}
	if canon.IsVariant() {
		return fmt.Errorf("canonical lemma %d is itself a variant", canonical)
	}
	res, err := q.q.ExecContext(ctx, `UPDATE lemmas SET canonical_lemma_id = ? WHERE id = ?`, canonical, id)
	if err != nil {
		return fmt.Errorf("mark variant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLemmaNotFound
	}
	return nil
}

const lemmaColumns = `id, surface, bare, gloss, pos, root_id, frequency_rank, forms_json, canonical_lemma_id, created_at`

func scanLemma(row interface{ Scan(...any) error }) (*types.Lemma, error) {
	var l types.Lemma
	var rootID sql.NullInt64
	var freq sql.NullInt64
	var formsJSON sql.NullString
	var canonical sql.NullInt64
	if err := row.Scan(&l.ID, &l.Surface, &l.Bare, &l.Gloss, (*string)(&l.POS),
		&rootID, &freq, &formsJSON, &canonical, &l.CreatedAt); err != nil {
		return nil, err
	}
	if rootID.Valid {
		v := rootID.Int64
		l.RootID = &v
	}
	if freq.Valid {
		v := int(freq.Int64)
		l.FrequencyRank = &v
	}
	if canonical.Valid {
		v := types.LemmaID(canonical.Int64)
		l.CanonicalID = &v
	}
	if formsJSON.Valid && formsJSON.String != "" {
		forms, err := types.FormsFromJSON([]byte(formsJSON.String))
		if err != nil {
			return nil, fmt.Errorf("lemma %d forms: %w", l.ID, err)
		}
		l.Forms = forms
	}
	return &l, nil
}

// GetLemma fetches one lemma by ID.
func (q *Queries) GetLemma(ctx context.Context, id types.LemmaID) (*types.Lemma, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+lemmaColumns+` FROM lemmas WHERE id = ?`, id)
	l, err := scanLemma(row)
	if err == sql.ErrNoRows {
		return nil, ErrLemmaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lemma: %w", err)
	}
	return l, nil
}

// AllLemmas returns every lemma, variants included. The lookup index and the
// word selector both consume this.
func (q *Queries) AllLemmas(ctx context.Context) ([]*types.Lemma, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+lemmaColumns+` FROM lemmas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lemmas: %w", err)
	}
	defer rows.Close()
	var out []*types.Lemma
	for rows.Next() {
		l, err := scanLemma(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lemma: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LemmasByRoot returns the non-variant lemmas sharing a root.
func (q *Queries) LemmasByRoot(ctx context.Context, rootID int64) ([]*types.Lemma, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+lemmaColumns+` FROM lemmas
		WHERE root_id = ? AND canonical_lemma_id IS NULL ORDER BY id`, rootID)
	if err != nil {
		return nil, fmt.Errorf("lemmas by root: %w", err)
	}
	defer rows.Close()
	var out []*types.Lemma
	for rows.Next() {
		l, err := scanLemma(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lemma: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertRoot stores a morphological root, returning the existing ID when the
// radicals are already present.
func (q *Queries) InsertRoot(ctx context.Context, radicals, gloss string) (int64, error) {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO roots (radicals, gloss) VALUES (?, ?)
		ON CONFLICT(radicals) DO UPDATE SET gloss = CASE WHEN excluded.gloss != '' THEN excluded.gloss ELSE roots.gloss END`,
		radicals, gloss)
	if err != nil {
		return 0, fmt.Errorf("insert root: %w", err)
	}
	var id int64
	if err := q.q.QueryRowContext(ctx, `SELECT id FROM roots WHERE radicals = ?`, radicals).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve root id: %w", err)
	}
	return id, nil
}

// GetRoot fetches one root by ID.
func (q *Queries) GetRoot(ctx context.Context, id int64) (*types.Root, error) {
	var r types.Root
	err := q.q.QueryRowContext(ctx, `SELECT id, radicals, gloss FROM roots WHERE id = ?`, id).
		Scan(&r.ID, &r.Radicals, &r.Gloss)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("root %d: %w", id, ErrLemmaNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get root: %w", err)
	}
	return &r, nil
}

// lemmaIndex maps normalized surface forms to canonical lemma IDs. It is
// derived state: rebuilt from committed lemma rows and dropped on mutation.
type lemmaIndex struct {
	byForm map[string]types.LemmaID
}

func buildLemmaIndex(lemmas []*types.Lemma) *lemmaIndex {
	idx := &lemmaIndex{byForm: make(map[string]types.LemmaID, len(lemmas)*2)}
	canonOf := func(l *types.Lemma) types.LemmaID {
		if l.CanonicalID != nil {
			return *l.CanonicalID
		}
		return l.ID
	}
	// First pass registers bare forms so form-derived keys never shadow a
	// real bare entry.
	for _, l := range lemmas {
		id := canonOf(l)
		bare := arabic.Normalize(l.Bare)
		idx.add(bare, id)
		// Al-prefixed and al-stripped variants of the bare form.
		if stripped, ok := strings.CutPrefix(bare, "ال"); ok {
			idx.add(stripped, id)
		} else {
			idx.add("ال"+bare, id)
		}
	}
	for _, l := range lemmas {
		id := canonOf(l)
		for _, form := range l.Forms {
			idx.add(arabic.Normalize(form), id)
		}
	}
	return idx
}

// add registers a key without overwriting an earlier entry; the first lemma
// to claim a form wins, matching insertion order.
func (ix *lemmaIndex) add(key string, id types.LemmaID) {
	if key == "" {
		return
	}
	if _, exists := ix.byForm[key]; !exists {
		ix.byForm[key] = id
	}
}

func (s *Store) index(ctx context.Context) (*lemmaIndex, error) {
	s.idxMu.RLock()
	idx := s.idx
	s.idxMu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	lemmas, err := s.AllLemmas(ctx)
	if err != nil {
		return nil, err
	}
	idx = buildLemmaIndex(lemmas)
	s.idxMu.Lock()
	s.idx = idx
	s.idxMu.Unlock()
	return idx, nil
}

// LookupLemma resolves a surface token to its canonical lemma ID. The order
// is fixed: direct index match first (bare forms, al-variants, inflected
// forms), then bounded clitic stripping. Function words are exempt from
// clitic analysis so a conjugated verb is never split as stem plus pronoun.
func (s *Store) LookupLemma(ctx context.Context, surface string) (types.LemmaID, bool, error) {
	idx, err := s.index(ctx)
	if err != nil {
		return 0, false, err
	}
	bare := arabic.Normalize(surface)
	if id, ok := idx.byForm[bare]; ok {
		return id, true, nil
	}
	if s.fw.Contains(bare) {
		return 0, false, nil
	}
	for _, cand := range arabic.CliticCandidates(bare) {
		if id, ok := idx.byForm[cand]; ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}
