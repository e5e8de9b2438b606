package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"murajaa/internal/types"
)

// GetGrammarExposure fetches one feature's exposure counters, or nil when the
// feature has never been seen.
func (q *Queries) GetGrammarExposure(ctx context.Context, feature string) (*types.GrammarExposure, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT feature, times_seen, times_correct, times_confused,
			first_seen_at, last_seen_at, introduced_at
		FROM grammar_exposure WHERE feature = ?`, feature)
	g, err := scanGrammarExposure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get grammar exposure: %w", err)
	}
	return g, nil
}

// AllGrammarExposure returns every feature's counters.
func (q *Queries) AllGrammarExposure(ctx context.Context) ([]*types.GrammarExposure, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT feature, times_seen, times_correct, times_confused,
			first_seen_at, last_seen_at, introduced_at
		FROM grammar_exposure ORDER BY feature`)
	if err != nil {
		return nil, fmt.Errorf("list grammar exposure: %w", err)
	}
	defer rows.Close()
	var out []*types.GrammarExposure
	for rows.Next() {
		g, err := scanGrammarExposure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grammar exposure: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrammarExposure(row interface{ Scan(...any) error }) (*types.GrammarExposure, error) {
	var g types.GrammarExposure
	var first, last, introduced sql.NullTime
	if err := row.Scan(&g.Feature, &g.TimesSeen, &g.TimesCorrect, &g.TimesConfused,
		&first, &last, &introduced); err != nil {
		return nil, err
	}
	assignTime(&g.FirstSeenAt, first)
	assignTime(&g.LastSeenAt, last)
	assignTime(&g.IntroducedAt, introduced)
	return &g, nil
}

// BumpGrammarExposure records one presentation of a feature: seen always
// increments, correct or confused depending on the comprehension outcome.
// The row is created on first sight.
func (q *Queries) BumpGrammarExposure(ctx context.Context, feature string, correct, confused bool, now time.Time) error {
	c, cf := 0, 0
	if correct {
		c = 1
	}
	if confused {
		cf = 1
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO grammar_exposure (feature, times_seen, times_correct, times_confused, first_seen_at, last_seen_at)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(feature) DO UPDATE SET
			times_seen = times_seen + 1,
			times_correct = times_correct + excluded.times_correct,
			times_confused = times_confused + excluded.times_confused,
			last_seen_at = excluded.last_seen_at`,
		feature, c, cf, now.UTC(), now.UTC())
	if err != nil {
		return fmt.Errorf("bump grammar exposure: %w", err)
	}
	return nil
}

// MarkGrammarIntroduced stamps the instant a feature was deliberately
// introduced, once. Later calls are no-ops.
func (q *Queries) MarkGrammarIntroduced(ctx context.Context, feature string, now time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO grammar_exposure (feature, times_seen, introduced_at)
		VALUES (?, 0, ?)
		ON CONFLICT(feature) DO UPDATE SET
			introduced_at = COALESCE(grammar_exposure.introduced_at, excluded.introduced_at)`,
		feature, now.UTC())
	if err != nil {
		return fmt.Errorf("mark grammar introduced: %w", err)
	}
	return nil
}
