package persistence

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/roots"
)

// Reconcile walks rootList and compares each visited path against
// snapshot (the entries loaded from a prior run), inserting added and
// updated entries into store, and removing from store any snapshot
// entry that isn't an exact, unchanged duplicate of something on disk
// now. Snapshot entries never visited during the walk are deleted.
//
// It is only called when LoadRoots returned exactly rootList, per
// §4.5's "compare roots" step — otherwise the caller performs a fresh
// indexer walk instead.
func Reconcile(store *index.Store, snapshot []index.Entry, rootList []string, log *slog.Logger) (changed int) {
	bySnapshotPath := make(map[string]index.Entry, len(snapshot))
	for _, e := range snapshot {
		bySnapshotPath[e.Path] = e
		store.InsertOrUpdate(e)
	}

	visited := make(map[string]bool, len(snapshot))

	for _, root := range rootList {
		rootPath := root[:len(root)-1]
		_ = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsPermission(err) {
					return filepath.SkipDir
				}
				log.Warn("reconcile walk error, skipping", "path", path, "error", err)
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}

			visited[path] = true
			rootIndex := roots.IndexOf(rootList, path)
			size := int64(0)
			if !d.IsDir() {
				size = info.Size()
			}
			mtime := info.ModTime().Unix()

			prior, existed := bySnapshotPath[path]
			switch {
			case !existed:
				store.InsertOrUpdate(index.Entry{Path: path, Size: size, MTime: mtime, IsDir: d.IsDir(), RootIndex: rootIndex})
				changed++
			case prior.Size != size || prior.MTime != mtime:
				store.InsertOrUpdate(index.Entry{Path: path, Size: size, MTime: mtime, IsDir: d.IsDir(), RootIndex: rootIndex})
				changed++
			}
			return nil
		})
	}

	for path := range bySnapshotPath {
		if !visited[path] {
			store.Remove(path, false)
			changed++
		}
	}

	return changed
}
