// Package store implements the crawler's persistent state: a deduplicating
// FIFO queue of URLs, a monotonically-ordered visited set, and an
// append-only error log, all backed by a single embedded SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/sqlitecrawl/internal/crawlerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue (
	url        TEXT PRIMARY KEY,
	depth      INTEGER NOT NULL,
	enqueued_at TIMESTAMP DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);

CREATE TABLE IF NOT EXISTS visited (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	url        TEXT UNIQUE NOT NULL,
	depth      INTEGER NOT NULL,
	visited_at TIMESTAMP DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);

CREATE TABLE IF NOT EXISTS errors (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	error_type   TEXT NOT NULL,
	message      TEXT NOT NULL,
	occurred_at  TIMESTAMP DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
`

// QueueEntry is a row of the durable FIFO queue.
type QueueEntry struct {
	URL   string
	Depth int
}

// VisitedEntry is a row of the durable visited set, in insertion order.
type VisitedEntry struct {
	ID    int64
	URL   string
	Depth int
}

// Store is the exclusive owner of the crawler's SQLite file. All mutating
// operations are serialized by restricting the underlying connection pool
// to a single connection, the Go idiom for a single-writer embedded
// database — the same role a dedicated actor goroutine would play.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	batchSize int

	mu      sync.Mutex
	pending int
	closed  bool
}

// Options configures a Store.
type Options struct {
	// BatchSize is the number of mutations between forced WAL checkpoints.
	BatchSize int
}

// Open connects to (and, if necessary, creates) the SQLite file at path,
// applies the required pragmas, and creates the schema. Failure to open the
// file or create the schema is fatal and returned to the caller.
func Open(ctx context.Context, path string, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite file %q: %w", path, err)
	}
	// A single connection makes every statement against this *sql.DB
	// serialize through Go's own connection pool, giving us the "Store
	// operations atomic with respect to other Store operations" guarantee
	// without a hand-rolled lock.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:        db,
		logger:    logger.With("component", "store"),
		batchSize: opts.BatchSize,
	}

	if err := s.applyPragmas(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.logger.Info("store opened", "path", path, "batch_size", opts.BatchSize)
	return s, nil
}

func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Enqueue inserts (url, depth) into the queue if url is not already present.
// It is a no-op, not an error, if the URL is already queued or already
// visited — callers never need to pre-check.
func (s *Store) Enqueue(ctx context.Context, url string, depth int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO queue(url, depth)
		 SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM visited WHERE url = ?)`, url, depth, url)
	if err != nil {
		return &crawlerrors.StoreError{Op: "enqueue", Err: err}
	}
	s.markWrite(ctx)
	return nil
}

// Dequeue returns and removes the queue entry with the smallest insertion
// order, or (nil, nil) if the queue is empty. The read-then-delete pair runs
// inside one transaction so concurrent dequeuers never observe the same row.
func (s *Store) Dequeue(ctx context.Context) (*QueueEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &crawlerrors.StoreError{Op: "dequeue", Err: err}
	}
	defer tx.Rollback()

	var entry QueueEntry
	row := tx.QueryRowContext(ctx,
		`SELECT url, depth FROM queue ORDER BY rowid LIMIT 1`)
	if err := row.Scan(&entry.URL, &entry.Depth); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &crawlerrors.StoreError{Op: "dequeue", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE url = ?`, entry.URL); err != nil {
		return nil, &crawlerrors.StoreError{Op: "dequeue", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &crawlerrors.StoreError{Op: "dequeue", Err: err}
	}

	s.markWrite(ctx)
	return &entry, nil
}

// IsVisited reports whether url has already been marked visited.
func (s *Store) IsVisited(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM visited WHERE url = ? LIMIT 1`, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &crawlerrors.StoreError{Op: "is_visited", Err: err}
	}
	return true, nil
}

// MarkVisited inserts (url, depth) into visited if not already present.
// Idempotent: marking an already-visited URL again is a no-op.
func (s *Store) MarkVisited(ctx context.Context, url string, depth int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO visited(url, depth) VALUES (?, ?)`, url, depth)
	if err != nil {
		return &crawlerrors.StoreError{Op: "mark_visited", Err: err}
	}
	s.markWrite(ctx)
	return nil
}

// QueueSize returns an advisory count of rows currently in the queue. It may
// race with concurrent writers and is intended for reporting only.
func (s *Store) QueueSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, &crawlerrors.StoreError{Op: "queue_size", Err: err}
	}
	return n, nil
}

// LogError appends a row to the error log.
func (s *Store) LogError(ctx context.Context, url, kind, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO errors(url, error_type, message) VALUES (?, ?, ?)`, url, kind, message)
	if err != nil {
		return &crawlerrors.StoreError{Op: "log_error", Err: err}
	}
	s.markWrite(ctx)
	return nil
}

// FetchVisitedSince returns up to limit visited rows with id > lastID,
// ordered ascending by id — the ordering the export consumer depends on for
// resumable, gap-tolerant incremental export.
func (s *Store) FetchVisitedSince(ctx context.Context, lastID int64, limit int) ([]VisitedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, depth FROM visited WHERE id > ? ORDER BY id LIMIT ?`, lastID, limit)
	if err != nil {
		return nil, &crawlerrors.StoreError{Op: "fetch_visited_since", Err: err}
	}
	defer rows.Close()

	var out []VisitedEntry
	for rows.Next() {
		var v VisitedEntry
		if err := rows.Scan(&v.ID, &v.URL, &v.Depth); err != nil {
			return nil, &crawlerrors.StoreError{Op: "fetch_visited_since", Err: err}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// markWrite counts a mutation and forces a checkpoint once batchSize
// mutations have accumulated. Under WAL with relaxed synchronous writes,
// checkpointing is the durability point: it is the "commit" the spec
// requires every batchSize mutations, on a timer, and on shutdown.
func (s *Store) markWrite(ctx context.Context) {
	s.mu.Lock()
	s.pending++
	due := s.pending >= s.batchSize
	if due {
		s.pending = 0
	}
	s.mu.Unlock()

	if due {
		if err := s.commitLocked(ctx); err != nil {
			s.logger.Error("auto-commit failed", "error", err)
		}
	}
}

// Commit forces durability of buffered writes via a WAL checkpoint. Safe to
// call concurrently with mutating operations and on a timer (cmd/sqlitecrawl
// runs one).
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	s.pending = 0
	s.mu.Unlock()
	return s.commitLocked(ctx)
}

func (s *Store) commitLocked(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE);`)
	if err != nil {
		return &crawlerrors.StoreError{Op: "commit", Err: err}
	}
	return nil
}

// Close commits buffered writes and releases the underlying file handle.
// Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.commitLocked(ctx); err != nil {
		s.logger.Error("final commit failed", "error", err)
	}
	return s.db.Close()
}
