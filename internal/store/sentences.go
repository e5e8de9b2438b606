package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"murajaa/internal/types"
)

const sentenceColumns = `id, arabic_raw, arabic_diacritized, english, transliteration,
	target_lemma_id, is_active, times_shown, source, grammar_features_json,
	last_shown_reading, last_shown_listening, last_comp_reading, last_comp_listening, created_at`

func scanSentence(row interface{ Scan(...any) error }) (*types.Sentence, error) {
	var s types.Sentence
	var target sql.NullInt64
	var featuresJSON sql.NullString
	var shownReading, shownListening sql.NullTime
	if err := row.Scan(&s.ID, &s.ArabicRaw, &s.ArabicDiacritized, &s.English, &s.Transliteration,
		&target, &s.IsActive, &s.TimesShown, &s.Source, &featuresJSON,
		&shownReading, &shownListening,
		(*string)(&s.LastCompReading), (*string)(&s.LastCompListening), &s.CreatedAt); err != nil {
		return nil, err
	}
	if target.Valid {
		v := types.LemmaID(target.Int64)
		s.TargetLemmaID = &v
	}
	if featuresJSON.Valid && featuresJSON.String != "" {
		features, err := types.StringsFromJSON([]byte(featuresJSON.String))
		if err != nil {
			return nil, fmt.Errorf("sentence %d features: %w", s.ID, err)
		}
		s.GrammarFeatures = features
	}
	assignTime(&s.LastShownReading, shownReading)
	assignTime(&s.LastShownListening, shownListening)
	return &s, nil
}

// InsertSentence persists a sentence together with its word mapping in one
// statement sequence. Every non-function word must already carry a lemma ID;
// the validator guarantees this, and the target must be a non-variant lemma.
func (q *Queries) InsertSentence(ctx context.Context, s *types.Sentence, words []types.SentenceWord) (types.SentenceID, error) {
	if len(words) < 2 {
		return 0, fmt.Errorf("sentence needs at least 2 tokens, got %d", len(words))
	}
	if s.TargetLemmaID != nil {
		target, err := q.GetLemma(ctx, *s.TargetLemmaID)
		if err != nil {
			return 0, fmt.Errorf("resolve target lemma: %w", err)
		}
		if target.IsVariant() {
			return 0, fmt.Errorf("target lemma %d is a variant", target.ID)
		}
	}
	var featuresJSON any
	if len(s.GrammarFeatures) > 0 {
		b, err := json.Marshal(s.GrammarFeatures)
		if err != nil {
			return 0, fmt.Errorf("encode grammar features: %w", err)
		}
		featuresJSON = string(b)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sentences (arabic_raw, arabic_diacritized, english, transliteration,
			target_lemma_id, is_active, times_shown, source, grammar_features_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		s.ArabicRaw, s.ArabicDiacritized, s.English, s.Transliteration,
		s.TargetLemmaID, s.IsActive, s.Source, featuresJSON, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert sentence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sentence insert id: %w", err)
	}
	s.ID = types.SentenceID(id)
	for i := range words {
		words[i].SentenceID = s.ID
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO sentence_words (sentence_id, position, surface_form, lemma_id, is_target)
			VALUES (?, ?, ?, ?, ?)`,
			words[i].SentenceID, words[i].Position, words[i].SurfaceForm,
			words[i].LemmaID, words[i].IsTarget); err != nil {
			return 0, fmt.Errorf("insert sentence word %d: %w", i, err)
		}
	}
	return s.ID, nil
}

// GetSentence fetches one sentence by ID.
func (q *Queries) GetSentence(ctx context.Context, id types.SentenceID) (*types.Sentence, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+sentenceColumns+` FROM sentences WHERE id = ?`, id)
	s, err := scanSentence(row)
	if err == sql.ErrNoRows {
		return nil, ErrSentenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sentence: %w", err)
	}
	return s, nil
}

// SentenceWords returns the word mapping of a sentence in position order.
func (q *Queries) SentenceWords(ctx context.Context, id types.SentenceID) ([]types.SentenceWord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT sentence_id, position, surface_form, lemma_id, is_target
		FROM sentence_words WHERE sentence_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("sentence words: %w", err)
	}
	defer rows.Close()
	var out []types.SentenceWord
	for rows.Next() {
		var w types.SentenceWord
		var lemmaID sql.NullInt64
		if err := rows.Scan(&w.SentenceID, &w.Position, &w.SurfaceForm, &lemmaID, &w.IsTarget); err != nil {
			return nil, fmt.Errorf("scan sentence word: %w", err)
		}
		if lemmaID.Valid {
			v := types.LemmaID(lemmaID.Int64)
			w.LemmaID = &v
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetSentenceWordLemma persists a backfilled lemma resolution for a token
// that was stored unmapped.
func (q *Queries) SetSentenceWordLemma(ctx context.Context, sentenceID types.SentenceID, position int, lemmaID types.LemmaID) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE sentence_words SET lemma_id = ? WHERE sentence_id = ? AND position = ?`,
		lemmaID, sentenceID, position)
	if err != nil {
		return fmt.Errorf("backfill sentence word: %w", err)
	}
	return nil
}

// ActiveSentencesWithLemmas returns active sentences containing at least one
// of the given lemmas at any position.
func (q *Queries) ActiveSentencesWithLemmas(ctx context.Context, lemmaIDs []types.LemmaID) ([]*types.Sentence, error) {
	if len(lemmaIDs) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, len(lemmaIDs))
	for i, id := range lemmaIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT DISTINCT `+prefixColumns("s", sentenceColumns)+`
		FROM sentences s
		JOIN sentence_words w ON w.sentence_id = s.id
		WHERE s.is_active = 1 AND w.lemma_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sentences with lemmas: %w", err)
	}
	defer rows.Close()
	var out []*types.Sentence
	for rows.Next() {
		s, err := scanSentence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveSentenceCount returns the number of active sentences.
func (q *Queries) ActiveSentenceCount(ctx context.Context) (int, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentences WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("active sentence count: %w", err)
	}
	return n, nil
}

// ActiveCountByTarget returns, per target lemma, the number of active
// sentences targeting it.
func (q *Queries) ActiveCountByTarget(ctx context.Context) (map[types.LemmaID]int, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT target_lemma_id, COUNT(*) FROM sentences
		WHERE is_active = 1 AND target_lemma_id IS NOT NULL
		GROUP BY target_lemma_id`)
	if err != nil {
		return nil, fmt.Errorf("active count by target: %w", err)
	}
	defer rows.Close()
	out := make(map[types.LemmaID]int)
	for rows.Next() {
		var id types.LemmaID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan target count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// AllActiveSentences returns every active sentence, used by rotation and the
// avoid-list computation.
func (q *Queries) AllActiveSentences(ctx context.Context) ([]*types.Sentence, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+sentenceColumns+` FROM sentences WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("all active sentences: %w", err)
	}
	defer rows.Close()
	var out []*types.Sentence
	for rows.Next() {
		s, err := scanSentence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sentence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RetireSentence marks a sentence inactive. Sentences are rotated, never
// deleted.
func (q *Queries) RetireSentence(ctx context.Context, id types.SentenceID) error {
	res, err := q.q.ExecContext(ctx, `UPDATE sentences SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("retire sentence: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSentenceNotFound
	}
	return nil
}

// TouchSentenceShown records a presentation: bumps times_shown and the
// per-mode last-shown instant and comprehension signal.
func (q *Queries) TouchSentenceShown(ctx context.Context, id types.SentenceID, mode types.ReviewMode, signal types.Comprehension, now time.Time) error {
	col, compCol := "last_shown_reading", "last_comp_reading"
	if mode == types.ModeListening {
		col, compCol = "last_shown_listening", "last_comp_listening"
	}
	_, err := q.q.ExecContext(ctx, `
		UPDATE sentences SET times_shown = times_shown + 1, `+col+` = ?, `+compCol+` = ?
		WHERE id = ?`, now.UTC(), string(signal), id)
	if err != nil {
		return fmt.Errorf("touch sentence: %w", err)
	}
	return nil
}

// ContentWordFrequency counts how often each lemma appears across active
// sentence words, feeding the generation avoid-list.
func (q *Queries) ContentWordFrequency(ctx context.Context) (map[types.LemmaID]int, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT w.lemma_id, COUNT(*)
		FROM sentence_words w
		JOIN sentences s ON s.id = w.sentence_id
		WHERE s.is_active = 1 AND w.lemma_id IS NOT NULL
		GROUP BY w.lemma_id`)
	if err != nil {
		return nil, fmt.Errorf("content word frequency: %w", err)
	}
	defer rows.Close()
	out := make(map[types.LemmaID]int)
	for rows.Next() {
		var id types.LemmaID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan word frequency: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
