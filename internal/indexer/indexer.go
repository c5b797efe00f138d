// Package indexer performs the daemon's initial recursive walk of its
// configured roots, populating the entry store and registering watches
// before the event loop takes over.
package indexer

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/roots"
	"github.com/ffind/ffind/internal/watcher"
)

// progressInterval is N from spec §4.3: progress is reported every this
// many visited entries when running attached to a terminal.
const progressInterval = 10_000

// Indexer walks configured roots into a store, registering a watch on
// every directory it visits.
type Indexer struct {
	store      *index.Store
	watcher    watcher.Watcher
	log        *slog.Logger
	onProgress func(visited int)
}

// New returns an Indexer that populates store and registers watches on
// w. onProgress, if non-nil, is called every progressInterval entries;
// callers attach it only when stderr is a terminal.
func New(store *index.Store, w watcher.Watcher, log *slog.Logger, onProgress func(visited int)) *Indexer {
	return &Indexer{store: store, watcher: w, log: log, onProgress: onProgress}
}

// WalkRoots visits every root in order (each already resolved to an
// existing, canonical directory by package roots; it is not checked
// again here) and recursively walks it, skipping symlinks and permission-denied
// subtrees, inserting an entry per visited node and a watch per visited
// directory.
func (ix *Indexer) WalkRoots(rootList []string) error {
	visited := 0

	for rootIndex, root := range rootList {
		// root carries a trailing slash (package roots' convention); the
		// store's canonical form for the root entry itself has none.
		rootPath := root[:len(root)-1]
		if err := ix.walk(rootPath, rootIndex, &visited); err != nil {
			return err
		}
	}
	return nil
}

// AddSubtree recursively inserts path and everything beneath it into
// the store and registers a watch on every directory found, without
// progress reporting. It is the event loop's response to a CREATE of a
// new directory, or a MOVED_TO whose cookie does not match a pending
// move.
func (ix *Indexer) AddSubtree(path string, rootIndex int) error {
	return ix.walk(path, rootIndex, nil)
}

// WatchExisting registers a watch on a directory already present in
// the store, without walking or re-inserting it. It is the
// reconciliation path's counterpart to AddSubtree: the entries already
// came from the persisted snapshot, only the watch needs restoring.
func (ix *Indexer) WatchExisting(path string) error {
	_, err := ix.watcher.Watch(path)
	return err
}

func (ix *Indexer) walk(root string, rootIndex int, visited *int) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				ix.log.Warn("permission denied, skipping subtree", "path", path)
				return filepath.SkipDir
			}
			ix.log.Warn("walk error, skipping", "path", path, "error", err)
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			ix.log.Warn("stat failed during walk, skipping", "path", path, "error", err)
			return nil
		}

		ix.store.InsertOrUpdate(index.Entry{
			Path:      path,
			Size:      sizeOf(info),
			MTime:     info.ModTime().Unix(),
			IsDir:     d.IsDir(),
			RootIndex: rootIndex,
		})

		if d.IsDir() {
			if _, err := ix.watcher.Watch(path); err != nil {
				ix.log.Warn("failed to watch directory, indexed without live updates", "path", path, "error", err)
			}
		}

		if visited != nil {
			*visited++
			if ix.onProgress != nil && *visited%progressInterval == 0 {
				ix.onProgress(*visited)
			}
		}

		return nil
	})
}

func sizeOf(info fs.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

// RootIndexFor exposes roots.IndexOf, the longest-prefix root match
// (spec §4.4), under this package's name. The event loop calls
// roots.IndexOf directly.
func RootIndexFor(rootList []string, path string) int {
	return roots.IndexOf(rootList, path)
}
