package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"murajaa/internal/types"
)

// HasClientReviewID reports whether a per-lemma review with this client ID
// was already recorded. The unique index makes this the idempotency check.
func (q *Queries) HasClientReviewID(ctx context.Context, clientReviewID string) (bool, error) {
	if clientReviewID == "" {
		return false, nil
	}
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM review_logs WHERE client_review_id = ?`, clientReviewID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check client review id: %w", err)
	}
	return true, nil
}

// HasSentenceClientID is the sentence-level idempotency check.
func (q *Queries) HasSentenceClientID(ctx context.Context, clientReviewID string) (bool, error) {
	if clientReviewID == "" {
		return false, nil
	}
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM sentence_review_logs WHERE client_review_id = ?`, clientReviewID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check sentence client id: %w", err)
	}
	return true, nil
}

// AppendReviewLog writes one per-lemma review record.
func (q *Queries) AppendReviewLog(ctx context.Context, r *types.ReviewLog) error {
	var cardJSON any
	if r.CardBefore != nil {
		b, err := json.Marshal(r.CardBefore)
		if err != nil {
			return fmt.Errorf("encode card snapshot: %w", err)
		}
		cardJSON = string(b)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO review_logs (lemma_id, rating, reviewed_at, response_ms, review_mode,
			comprehension_signal, credit_type, sentence_id, session_id, client_review_id,
			is_acquisition, fsrs_log_json, box_before, box_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.LemmaID, int(r.Rating), r.ReviewedAt.UTC(), r.ResponseMs, string(r.Mode),
		string(r.Signal), string(r.Credit), r.SentenceID, r.SessionID, r.ClientReviewID,
		r.IsAcquisition, cardJSON, r.BoxBefore, r.BoxAfter)
	if err != nil {
		return fmt.Errorf("append review log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("review log id: %w", err)
	}
	r.ID = id
	return nil
}

const reviewLogColumns = `id, lemma_id, rating, reviewed_at, response_ms, review_mode,
	comprehension_signal, credit_type, sentence_id, session_id, client_review_id,
	is_acquisition, fsrs_log_json, box_before, box_after`

func scanReviewLog(row interface{ Scan(...any) error }) (*types.ReviewLog, error) {
	var r types.ReviewLog
	var responseMs sql.NullInt64
	var sentenceID sql.NullInt64
	var cardJSON sql.NullString
	if err := row.Scan(&r.ID, &r.LemmaID, (*int)(&r.Rating), &r.ReviewedAt, &responseMs,
		(*string)(&r.Mode), (*string)(&r.Signal), (*string)(&r.Credit),
		&sentenceID, &r.SessionID, &r.ClientReviewID,
		&r.IsAcquisition, &cardJSON, &r.BoxBefore, &r.BoxAfter); err != nil {
		return nil, err
	}
	r.ReviewedAt = r.ReviewedAt.UTC()
	if responseMs.Valid {
		v := int(responseMs.Int64)
		r.ResponseMs = &v
	}
	if sentenceID.Valid {
		v := types.SentenceID(sentenceID.Int64)
		r.SentenceID = &v
	}
	if cardJSON.Valid && cardJSON.String != "" {
		card, err := types.CardFromJSON([]byte(cardJSON.String))
		if err != nil {
			return nil, fmt.Errorf("review log %d snapshot: %w", r.ID, err)
		}
		r.CardBefore = card
	}
	return &r, nil
}

// ReviewLogsByClientPrefix returns the logs whose client ID equals the given
// ID or is prefixed "<id>:", the per-lemma sub-reviews of one sentence
// submission.
func (q *Queries) ReviewLogsByClientPrefix(ctx context.Context, clientReviewID string) ([]*types.ReviewLog, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+reviewLogColumns+` FROM review_logs
		WHERE client_review_id = ? OR client_review_id LIKE ? ESCAPE '\'
		ORDER BY id`, clientReviewID, escapeLike(clientReviewID)+":%")
	if err != nil {
		return nil, fmt.Errorf("logs by client prefix: %w", err)
	}
	defer rows.Close()
	var out []*types.ReviewLog
	for rows.Next() {
		r, err := scanReviewLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review log: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReviewLogs removes the given log rows by ID, used only by undo.
func (q *Queries) DeleteReviewLogs(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := q.q.ExecContext(ctx, `DELETE FROM review_logs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete review log %d: %w", id, err)
		}
	}
	return nil
}

// LatestReviewLogBefore returns the most recent log for a lemma strictly
// older than beforeID, or nil. Undo restores the card from its snapshot.
func (q *Queries) LatestReviewLogBefore(ctx context.Context, lemmaID types.LemmaID, beforeID int64) (*types.ReviewLog, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+reviewLogColumns+` FROM review_logs
		WHERE lemma_id = ? AND id < ? ORDER BY id DESC LIMIT 1`, lemmaID, beforeID)
	r, err := scanReviewLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest log before: %w", err)
	}
	return r, nil
}

// DistinctReviewDays counts the distinct UTC dates on which the lemma was
// reviewed, one of the graduation gates.
func (q *Queries) DistinctReviewDays(ctx context.Context, lemmaID types.LemmaID) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT date(reviewed_at)) FROM review_logs WHERE lemma_id = ?`, lemmaID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("distinct review days: %w", err)
	}
	return n, nil
}

// LastRating returns the rating of the most recent review for a lemma, or
// 0 when it has never been reviewed. Listening readiness consults this.
func (q *Queries) LastRating(ctx context.Context, lemmaID types.LemmaID) (types.Rating, error) {
	var r int
	err := q.q.QueryRowContext(ctx, `
		SELECT rating FROM review_logs WHERE lemma_id = ? ORDER BY id DESC LIMIT 1`, lemmaID).Scan(&r)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last rating: %w", err)
	}
	return types.Rating(r), nil
}

// AppendSentenceReviewLog writes the one sentence-level record of a review.
func (q *Queries) AppendSentenceReviewLog(ctx context.Context, r *types.SentenceReviewLog) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sentence_review_logs (sentence_id, primary_lemma_id, comprehension_signal,
			review_mode, response_ms, session_id, client_review_id, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SentenceID, r.PrimaryLemmaID, string(r.Signal), string(r.Mode),
		r.ResponseMs, r.SessionID, r.ClientReviewID, r.ReviewedAt.UTC())
	if err != nil {
		return fmt.Errorf("append sentence review log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sentence review log id: %w", err)
	}
	r.ID = id
	return nil
}

// DeleteSentenceReviewLog removes a sentence-level record by client ID,
// used only by undo.
func (q *Queries) DeleteSentenceReviewLog(ctx context.Context, clientReviewID string) error {
	if clientReviewID == "" {
		return nil
	}
	if _, err := q.q.ExecContext(ctx,
		`DELETE FROM sentence_review_logs WHERE client_review_id = ?`, clientReviewID); err != nil {
		return fmt.Errorf("delete sentence review log: %w", err)
	}
	return nil
}

// RecentAccuracy returns the share of ratings >= Good among the last n
// per-lemma reviews, and how many reviews that covered.
func (q *Queries) RecentAccuracy(ctx context.Context, n int) (float64, int, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT rating FROM review_logs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return 0, 0, fmt.Errorf("recent accuracy: %w", err)
	}
	defer rows.Close()
	total, correct := 0, 0
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return 0, 0, fmt.Errorf("scan rating: %w", err)
		}
		total++
		if r >= int(types.RatingGood) {
			correct++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(correct) / float64(total), total, nil
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
