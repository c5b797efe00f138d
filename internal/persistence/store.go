// Package persistence provides the daemon's optional durable store: a
// SQLite database that survives restarts and is reconciled against the
// live filesystem rather than trusted blindly.
package persistence

import (
	"database/sql"
	"encoding/json"
	_ "embed"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ffind/ffind/internal/errors"
	"github.com/ffind/ffind/internal/index"
)

//go:embed schema.sql
var schemaSQL string

// flushThreshold and flushInterval are the two triggers from spec §4.5:
// a flush happens when pending changes reach flushThreshold or when
// flushInterval has elapsed since the last one, whichever comes first.
const (
	flushThreshold = 100
	flushInterval  = 30 * time.Second
)

// Store is the daemon's SQLite-backed durable index.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.Mutex
	lastSync time.Time
}

// Open creates the schema if absent and configures WAL mode for
// crash-consistent commits.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResource, "opening durable store")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, errors.CodeResource, "exec pragma %q", p)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeResource, "applying schema")
	}

	return &Store{db: db, log: log, lastSync: time.Now()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRoots reads the previously persisted root list, or nil if none
// was ever saved.
func (s *Store) LoadRoots() ([]string, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'roots'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransient, "loading persisted roots")
	}
	var roots []string
	if err := json.Unmarshal([]byte(raw), &roots); err != nil {
		return nil, errors.Wrap(err, errors.CodeTransient, "decoding persisted roots")
	}
	return roots, nil
}

// SaveRoots overwrites the persisted root list.
func (s *Store) SaveRoots(roots []string) error {
	encoded, err := json.Marshal(roots)
	if err != nil {
		return errors.Wrap(err, errors.CodeTransient, "encoding roots")
	}
	_, err = s.db.Exec(`INSERT INTO meta(key, value) VALUES ('roots', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(encoded))
	if err != nil {
		return errors.Wrap(err, errors.CodeTransient, "saving roots")
	}
	return nil
}

// LoadEntries returns every entry from the prior snapshot.
func (s *Store) LoadEntries() ([]index.Entry, error) {
	rows, err := s.db.Query(`SELECT path, size, mtime, is_dir, root_index FROM entries`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransient, "loading persisted entries")
	}
	defer rows.Close()

	var out []index.Entry
	for rows.Next() {
		var e index.Entry
		var isDir int
		if err := rows.Scan(&e.Path, &e.Size, &e.MTime, &isDir, &e.RootIndex); err != nil {
			return nil, errors.Wrap(err, errors.CodeTransient, "scanning persisted entry")
		}
		e.IsDir = isDir != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Flush replaces the entire entries table with store's current
// contents in one transaction, and updates sync_state. It is used both
// for periodic and shutdown flushes.
func (s *Store) Flush(store *index.Store) error {
	snapshot := store.Snapshot()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.CodeTransient, "beginning flush transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op if committed

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "clearing entries")
	}

	stmt, err := tx.Prepare(`INSERT INTO entries(path, size, mtime, is_dir, root_index) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.CodeTransient, "preparing entry insert")
	}
	defer stmt.Close()

	for _, e := range snapshot {
		isDir := 0
		if e.IsDir {
			isDir = 1
		}
		if _, err := stmt.Exec(e.Path, e.Size, e.MTime, isDir, e.RootIndex); err != nil {
			return errors.Wrap(err, errors.CodeTransient, "inserting entry")
		}
	}

	if _, err := tx.Exec(`UPDATE sync_state SET last_full_sync = ?, dirty = 0 WHERE id = 1`, time.Now().Unix()); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "updating sync state")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "committing flush")
	}
	return nil
}

// MarkDirty flips sync_state.dirty to 1, recording that reconciliation
// found differences between the persisted snapshot and the live
// filesystem that haven't yet been committed by a flush. Flush clears
// it back to 0 as part of the same transaction that writes the fresh
// snapshot.
func (s *Store) MarkDirty() error {
	if _, err := s.db.Exec(`UPDATE sync_state SET dirty = 1 WHERE id = 1`); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "marking sync state dirty")
	}
	return nil
}

// IsDirty reports whether the persisted snapshot is known to be stale
// relative to the filesystem, per the last MarkDirty/Flush call.
func (s *Store) IsDirty() (bool, error) {
	var dirty int
	err := s.db.QueryRow(`SELECT dirty FROM sync_state WHERE id = 1`).Scan(&dirty)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeTransient, "reading sync state")
	}
	return dirty != 0, nil
}

// Shutdown performs the unconditional final flush on clean termination.
func (s *Store) Shutdown(store *index.Store) {
	if err := s.Flush(store); err != nil {
		s.log.Warn("shutdown flush failed", "error", err)
	}
}

// Scheduler drives the periodic-flush policy from spec §4.5: a flush
// happens once pending changes reach flushThreshold or flushInterval
// has elapsed since the last one. It is owned by the event loop, which
// is the only goroutine that mutates the entry store and therefore the
// only one that can safely decide when a consistent snapshot exists.
type Scheduler struct {
	store   *Store
	pending int
	lastRun time.Time
}

// NewScheduler returns a Scheduler that flushes snapshots of index into
// store.
func NewScheduler(store *Store) *Scheduler {
	return &Scheduler{store: store, lastRun: time.Now()}
}

// RecordChange notes that a mutation happened, for the pending-change
// half of the flush trigger.
func (s *Scheduler) RecordChange() {
	s.pending++
}

// Tick checks the flush triggers and, if due, flushes index and resets
// the pending counter by the amount captured at the start of the
// flush — any RecordChange calls during the flush itself would remain
// pending, though in this single-threaded event loop none occur
// concurrently.
func (s *Scheduler) Tick(idx *index.Store) {
	if s.pending < flushThreshold && time.Since(s.lastRun) < flushInterval {
		return
	}
	captured := s.pending
	if err := s.store.Flush(idx); err != nil {
		s.store.log.Warn("periodic flush failed", "error", err)
		return
	}
	s.pending -= captured
	s.lastRun = time.Now()
}
