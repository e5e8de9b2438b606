// Package store is the knowledge store: typed persistence for lemmas, roots,
// sentences, per-lemma learner knowledge, review logs, grammar exposure, and
// the interaction event stream, all on a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"murajaa/internal/arabic"
)

// Sentinel errors surfaced to callers. Not-found conditions are
// caller-recoverable; duplicates are returned as stored outcomes upstream.
var (
	ErrLemmaNotFound       = fmt.Errorf("lemma not found")
	ErrSentenceNotFound    = fmt.Errorf("sentence not found")
	ErrKnowledgeNotFound   = fmt.Errorf("knowledge not found")
	ErrDuplicateSubmission = fmt.Errorf("duplicate submission")
)

// dbtx is the common surface of *sql.DB and *sql.Tx that all row operations
// are written against.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles every row operation over one database handle or one open
// transaction. Store embeds a Queries over the pooled handle; WithTx hands
// the callback a Queries over the transaction.
type Queries struct {
	q  dbtx
	fw *arabic.FunctionWords
}

// Store owns the SQLite database and the derived in-memory lemma index.
type Store struct {
	*Queries
	db *sql.DB
	fw *arabic.FunctionWords

	idxMu sync.RWMutex
	idx   *lemmaIndex
}

// Open initializes the database at path, creating the directory and schema
// as needed.
func Open(path string, fw *arabic.FunctionWords) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite permits one writer; a single connection avoids busy errors
	// between the request handlers and the background pipeline.
	db.SetMaxOpenConns(1)

	if fw == nil {
		fw = arabic.DefaultFunctionWords()
	}
	s := &Store{db: db, fw: fw, Queries: &Queries{q: db, fw: fw}}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside one transaction. Any error rolls back everything:
// no half-written review can survive.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Queries{q: tx, fw: s.fw}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InvalidateLemmaIndex drops the cached lookup index. Lemma mutations call
// this so the next lookup observes committed rows.
func (s *Store) InvalidateLemmaIndex() {
	s.idxMu.Lock()
	s.idx = nil
	s.idxMu.Unlock()
}
