package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"murajaa/internal/types"
)

// AppendEvent records one lifecycle event (word introduced, graduated,
// sentence selected or rotated, generation accepted or rejected).
func (q *Queries) AppendEvent(ctx context.Context, kind string, attrs map[string]any, now time.Time) error {
	var attrsJSON any
	if len(attrs) > 0 {
		b, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode event attrs: %w", err)
		}
		attrsJSON = string(b)
	}
	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO events (kind, occurred_at, attrs_json) VALUES (?, ?, ?)`,
		kind, now.UTC(), attrsJSON); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents returns the latest n events, newest first. An empty kind
// matches all kinds.
func (q *Queries) RecentEvents(ctx context.Context, kind string, n int) ([]*types.Event, error) {
	query := `SELECT id, kind, occurred_at, attrs_json FROM events `
	args := []any{}
	if kind != "" {
		query += `WHERE kind = ? `
		args = append(args, kind)
	}
	query += `ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	var out []*types.Event
	for rows.Next() {
		var e types.Event
		var attrsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.OccurredAt, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		if attrsJSON.Valid && attrsJSON.String != "" {
			if err := json.Unmarshal([]byte(attrsJSON.String), &e.Attrs); err != nil {
				return nil, fmt.Errorf("event %d attrs: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
