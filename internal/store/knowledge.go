package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"murajaa/internal/types"
)

const knowledgeColumns = `lemma_id, state, acquisition_box, acquisition_next_due, fsrs_card_json,
	times_seen, times_correct, total_encounters,
	last_reviewed, introduced_at, entered_acquiring_at, graduated_at, source`

func scanKnowledge(row interface{ Scan(...any) error }) (*types.Knowledge, error) {
	var k types.Knowledge
	var box sql.NullInt64
	var cardJSON sql.NullString
	var nextDue, lastReviewed, introduced, entered, graduated sql.NullTime
	if err := row.Scan(&k.LemmaID, (*string)(&k.State), &box, &nextDue, &cardJSON,
		&k.TimesSeen, &k.TimesCorrect, &k.TotalEncounters,
		&lastReviewed, &introduced, &entered, &graduated, &k.Source); err != nil {
		return nil, err
	}
	if box.Valid {
		k.AcquisitionBox = int(box.Int64)
	}
	if cardJSON.Valid && cardJSON.String != "" {
		card, err := types.CardFromJSON([]byte(cardJSON.String))
		if err != nil {
			return nil, fmt.Errorf("knowledge %d card: %w", k.LemmaID, err)
		}
		k.Card = card
	}
	assignTime(&k.AcquisitionNextDue, nextDue)
	assignTime(&k.LastReviewed, lastReviewed)
	assignTime(&k.IntroducedAt, introduced)
	assignTime(&k.EnteredAcquiringAt, entered)
	assignTime(&k.GraduatedAt, graduated)
	return &k, nil
}

func assignTime(dst **time.Time, v sql.NullTime) {
	if v.Valid {
		t := v.Time.UTC()
		*dst = &t
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// GetKnowledge fetches the learner state for one lemma.
func (q *Queries) GetKnowledge(ctx context.Context, id types.LemmaID) (*types.Knowledge, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge WHERE lemma_id = ?`, id)
	k, err := scanKnowledge(row)
	if err == sql.ErrNoRows {
		return nil, ErrKnowledgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return k, nil
}

// PutKnowledge upserts a knowledge row after validating the state-machine
// invariants. An invalid row is rejected, never coerced.
func (q *Queries) PutKnowledge(ctx context.Context, k *types.Knowledge) error {
	if err := k.CheckInvariants(); err != nil {
		return err
	}
	var box any
	if k.AcquisitionBox != 0 {
		box = k.AcquisitionBox
	}
	var cardJSON any
	if k.Card != nil {
		b, err := json.Marshal(k.Card)
		if err != nil {
			return fmt.Errorf("encode card: %w", err)
		}
		cardJSON = string(b)
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO knowledge (`+knowledgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lemma_id) DO UPDATE SET
			state = excluded.state,
			acquisition_box = excluded.acquisition_box,
			acquisition_next_due = excluded.acquisition_next_due,
			fsrs_card_json = excluded.fsrs_card_json,
			times_seen = excluded.times_seen,
			times_correct = excluded.times_correct,
			total_encounters = excluded.total_encounters,
			last_reviewed = excluded.last_reviewed,
			introduced_at = excluded.introduced_at,
			entered_acquiring_at = excluded.entered_acquiring_at,
			graduated_at = excluded.graduated_at,
			source = excluded.source`,
		k.LemmaID, string(k.State), box, nullableTime(k.AcquisitionNextDue), cardJSON,
		k.TimesSeen, k.TimesCorrect, k.TotalEncounters,
		nullableTime(k.LastReviewed), nullableTime(k.IntroducedAt),
		nullableTime(k.EnteredAcquiringAt), nullableTime(k.GraduatedAt), k.Source)
	if err != nil {
		return fmt.Errorf("put knowledge: %w", err)
	}
	return nil
}

// AllKnowledge returns every knowledge row.
func (q *Queries) AllKnowledge(ctx context.Context) ([]*types.Knowledge, error) {
	return q.knowledgeWhere(ctx, ``)
}

// KnowledgeInStates returns rows whose state is one of the given states.
func (q *Queries) KnowledgeInStates(ctx context.Context, states ...types.KnowledgeState) ([]*types.Knowledge, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, len(states))
	for i, st := range states {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = string(st)
	}
	return q.knowledgeWhere(ctx, `WHERE state IN (`+placeholders+`)`, args...)
}

func (q *Queries) knowledgeWhere(ctx context.Context, where string, args ...any) ([]*types.Knowledge, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()
	var out []*types.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// EnumerateDue returns every non-suspended knowledge row whose due instant
// (box timer while acquiring, card due otherwise) is at or before now.
func (q *Queries) EnumerateDue(ctx context.Context, now time.Time) ([]*types.Knowledge, error) {
	all, err := q.knowledgeWhere(ctx, `WHERE state != ?`, string(types.StateSuspended))
	if err != nil {
		return nil, err
	}
	var due []*types.Knowledge
	for _, k := range all {
		if k.IsDue(now) {
			due = append(due, k)
		}
	}
	return due, nil
}

// KnowledgeStateCounts returns the number of rows per state, for stats.
func (q *Queries) KnowledgeStateCounts(ctx context.Context) (map[types.KnowledgeState]int, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT state, COUNT(*) FROM knowledge GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("knowledge counts: %w", err)
	}
	defer rows.Close()
	out := make(map[types.KnowledgeState]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[types.KnowledgeState(st)] = n
	}
	return out, rows.Err()
}
