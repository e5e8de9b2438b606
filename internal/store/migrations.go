package store

import (
	"context"
	"fmt"
)

// The schema is embedded DDL applied idempotently at startup. JSON-typed
// columns (forms_json, fsrs_card_json, fsrs_log_json, grammar_features_json,
// attrs_json) are read with the tolerant parser in internal/types.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS roots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		radicals TEXT NOT NULL UNIQUE,
		gloss TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS lemmas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		surface TEXT NOT NULL,
		bare TEXT NOT NULL,
		gloss TEXT NOT NULL DEFAULT '',
		pos TEXT NOT NULL DEFAULT 'other',
		root_id INTEGER REFERENCES roots(id),
		frequency_rank INTEGER,
		forms_json TEXT,
		canonical_lemma_id INTEGER REFERENCES lemmas(id),
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lemmas_bare ON lemmas(bare)`,
	`CREATE INDEX IF NOT EXISTS idx_lemmas_root ON lemmas(root_id)`,

	`CREATE TABLE IF NOT EXISTS sentences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		arabic_raw TEXT NOT NULL,
		arabic_diacritized TEXT NOT NULL DEFAULT '',
		english TEXT NOT NULL DEFAULT '',
		transliteration TEXT NOT NULL DEFAULT '',
		target_lemma_id INTEGER REFERENCES lemmas(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		times_shown INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'llm',
		grammar_features_json TEXT,
		last_shown_reading TIMESTAMP,
		last_shown_listening TIMESTAMP,
		last_comp_reading TEXT NOT NULL DEFAULT '',
		last_comp_listening TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sentences_target ON sentences(target_lemma_id, is_active)`,

	`CREATE TABLE IF NOT EXISTS sentence_words (
		sentence_id INTEGER NOT NULL REFERENCES sentences(id),
		position INTEGER NOT NULL,
		surface_form TEXT NOT NULL,
		lemma_id INTEGER REFERENCES lemmas(id),
		is_target INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (sentence_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sentence_words_lemma ON sentence_words(lemma_id)`,

	`CREATE TABLE IF NOT EXISTS knowledge (
		lemma_id INTEGER PRIMARY KEY REFERENCES lemmas(id),
		state TEXT NOT NULL,
		acquisition_box INTEGER,
		acquisition_next_due TIMESTAMP,
		fsrs_card_json TEXT,
		times_seen INTEGER NOT NULL DEFAULT 0,
		times_correct INTEGER NOT NULL DEFAULT 0,
		total_encounters INTEGER NOT NULL DEFAULT 0,
		last_reviewed TIMESTAMP,
		introduced_at TIMESTAMP,
		entered_acquiring_at TIMESTAMP,
		graduated_at TIMESTAMP,
		source TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_state ON knowledge(state)`,

	`CREATE TABLE IF NOT EXISTS review_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lemma_id INTEGER NOT NULL REFERENCES lemmas(id),
		rating INTEGER NOT NULL,
		reviewed_at TIMESTAMP NOT NULL,
		response_ms INTEGER,
		review_mode TEXT NOT NULL DEFAULT 'reading',
		comprehension_signal TEXT NOT NULL DEFAULT '',
		credit_type TEXT NOT NULL DEFAULT 'primary',
		sentence_id INTEGER REFERENCES sentences(id),
		session_id TEXT NOT NULL DEFAULT '',
		client_review_id TEXT NOT NULL DEFAULT '',
		is_acquisition INTEGER NOT NULL DEFAULT 0,
		fsrs_log_json TEXT,
		box_before INTEGER NOT NULL DEFAULT 0,
		box_after INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_review_logs_client
		ON review_logs(client_review_id) WHERE client_review_id != ''`,
	`CREATE INDEX IF NOT EXISTS idx_review_logs_lemma ON review_logs(lemma_id, reviewed_at)`,

	`CREATE TABLE IF NOT EXISTS sentence_review_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sentence_id INTEGER REFERENCES sentences(id),
		primary_lemma_id INTEGER NOT NULL,
		comprehension_signal TEXT NOT NULL,
		review_mode TEXT NOT NULL DEFAULT 'reading',
		response_ms INTEGER,
		session_id TEXT NOT NULL DEFAULT '',
		client_review_id TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sentence_review_logs_client
		ON sentence_review_logs(client_review_id) WHERE client_review_id != ''`,

	`CREATE TABLE IF NOT EXISTS grammar_exposure (
		feature TEXT PRIMARY KEY,
		times_seen INTEGER NOT NULL DEFAULT 0,
		times_correct INTEGER NOT NULL DEFAULT 0,
		times_confused INTEGER NOT NULL DEFAULT 0,
		first_seen_at TIMESTAMP,
		last_seen_at TIMESTAMP,
		introduced_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		attrs_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, occurred_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
