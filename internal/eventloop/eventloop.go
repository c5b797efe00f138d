// Package eventloop drains the watcher's raw kernel notifications,
// classifies them by mask bits, and mutates the entry store
// accordingly — including the rename-cookie pairing protocol that lets
// an intra-tree directory rename preserve its watch descriptors
// instead of triggering a re-walk.
package eventloop

import (
	"log/slog"
	"time"

	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/indexer"
	"github.com/ffind/ffind/internal/persistence"
	"github.com/ffind/ffind/internal/roots"
	"github.com/ffind/ffind/internal/watcher"
)

// pollTimeout is the short-poll interval from spec §4.2: small enough
// that shutdown and periodic maintenance are never starved.
const pollTimeout = 100 * time.Millisecond

// staleMoveAge is the window from the data model after which an
// unmatched MovedFrom is assumed to be a move out of the watched tree.
const staleMoveAge = 1 * time.Second

// pendingMove is one unmatched MovedFrom, keyed by its rename cookie.
type pendingMove struct {
	oldPath string
	at      time.Time
}

// Loop is the daemon's single event-processing goroutine.
type Loop struct {
	store   *index.Store
	watch   watcher.Watcher
	indexer *indexer.Indexer
	roots   []string
	log     *slog.Logger
	flush   *persistence.Scheduler

	pending map[uint32]pendingMove
	lastGC  time.Time

	shutdown chan struct{}
	done     chan struct{}
}

// New returns a Loop ready to Run. roots is the immutable, canonical
// root list established at startup. flush may be nil when persistence
// is disabled.
func New(store *index.Store, w watcher.Watcher, ix *indexer.Indexer, rootList []string, flush *persistence.Scheduler, log *slog.Logger) *Loop {
	return &Loop{
		store:    store,
		watch:    w,
		indexer:  ix,
		roots:    rootList,
		log:      log,
		flush:    flush,
		pending:  make(map[uint32]pendingMove),
		lastGC:   time.Now(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Stop requests a graceful exit from Run and blocks until it returns.
func (l *Loop) Stop() {
	close(l.shutdown)
	<-l.done
}

// Run processes events until Stop is called. It owns the watcher and
// is the sole mutator of the watch map, per the concurrency model.
func (l *Loop) Run() {
	defer close(l.done)

	for {
		select {
		case <-l.shutdown:
			return
		default:
		}

		if time.Since(l.lastGC) >= staleMoveAge {
			l.gcStaleMoves()
			l.lastGC = time.Now()
		}

		if l.flush != nil {
			l.flush.Tick(l.store)
		}

		events, err := l.watch.NextEvents(pollTimeout)
		if err != nil {
			l.log.Warn("watcher read failed", "error", err)
			continue
		}
		for _, ev := range events {
			l.handle(ev)
		}
	}
}

// gcStaleMoves demotes every pending move older than staleMoveAge to a
// recursive delete, per the data model's invariant that no pending-move
// entry survives longer than its stale threshold.
func (l *Loop) gcStaleMoves() {
	now := time.Now()
	for cookie, mv := range l.pending {
		if now.Sub(mv.at) >= staleMoveAge {
			l.store.Remove(mv.oldPath, true)
			l.recordChange()
			delete(l.pending, cookie)
		}
	}
}

func (l *Loop) handle(ev watcher.RawEvent) {
	dir, known := l.watch.PathOf(ev.Wd)

	switch {
	case ev.Mask&watcher.Ignored != 0:
		l.watch.Unwatch(ev.Wd)
		return

	case ev.Mask&watcher.DeleteSelf != 0:
		if known {
			l.store.Remove(dir, true)
			l.recordChange()
		}
		l.watch.Unwatch(ev.Wd)
		return

	case ev.Mask&watcher.MoveSelf != 0:
		// Handled via the parent directory's MovedFrom/MovedTo pair.
		return
	}

	if !known {
		return
	}
	path := joinPath(dir, ev.Name)
	rootIndex := roots.IndexOf(l.roots, path)

	switch {
	case ev.Mask&watcher.Create != 0 && ev.IsDir:
		if err := l.indexer.AddSubtree(path, rootIndex); err != nil {
			l.log.Warn("failed to index new directory", "path", path, "error", err)
		}
		l.recordChange()

	case ev.Mask&watcher.Create != 0:
		l.insertFile(path, rootIndex)

	case ev.Mask&watcher.MovedFrom != 0 && ev.IsDir:
		l.pending[ev.Cookie] = pendingMove{oldPath: path, at: time.Now()}

	case ev.Mask&watcher.MovedFrom != 0:
		l.store.Remove(path, false)
		l.recordChange()

	case ev.Mask&watcher.MovedTo != 0 && ev.IsDir:
		if mv, ok := l.pending[ev.Cookie]; ok && ev.Cookie != 0 {
			l.store.RenameSubtree(mv.oldPath, path)
			delete(l.pending, ev.Cookie)
		} else if err := l.indexer.AddSubtree(path, rootIndex); err != nil {
			l.log.Warn("failed to index moved-in directory", "path", path, "error", err)
		}
		l.recordChange()

	case ev.Mask&watcher.MovedTo != 0:
		l.insertFile(path, rootIndex)

	case ev.Mask&watcher.Delete != 0 && ev.IsDir:
		l.store.Remove(path, true)
		l.recordChange()

	case ev.Mask&watcher.Delete != 0:
		l.store.Remove(path, false)
		l.recordChange()

	case ev.Mask&(watcher.Modify|watcher.CloseWrite) != 0:
		l.insertFile(path, rootIndex)
	}
}

func (l *Loop) recordChange() {
	if l.flush != nil {
		l.flush.RecordChange()
	}
}

func (l *Loop) insertFile(path string, rootIndex int) {
	info, err := statFile(path)
	if err != nil {
		l.log.Warn("stat failed for event path, skipping", "path", path, "error", err)
		return
	}
	l.store.InsertOrUpdate(index.Entry{
		Path:      path,
		Size:      info.size,
		MTime:     info.mtime,
		IsDir:     false,
		RootIndex: rootIndex,
	})
	l.recordChange()
}

func joinPath(dir, name string) string {
	if name == "" {
		return dir
	}
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
