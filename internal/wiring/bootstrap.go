package wiring

import (
	"log/slog"
	"os"

	"github.com/samber/do/v2"
	"golang.org/x/term"

	"github.com/ffind/ffind/internal/errors"
	"github.com/ffind/ffind/internal/eventloop"
	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/indexer"
	"github.com/ffind/ffind/internal/lifecycle"
	"github.com/ffind/ffind/internal/persistence"
	"github.com/ffind/ffind/internal/search"
	"github.com/ffind/ffind/internal/server"
	"github.com/ffind/ffind/internal/watcher"
)

// Runtime is the fully wired, running daemon: the event loop is
// already processing notifications and the query socket is already
// accepting connections. Shutdown drains both in the order spec §4.8
// requires.
type Runtime struct {
	injector *do.RootScope
	loop     *eventloop.Loop
	srv      *server.Server
	pidFile  *lifecycle.PIDFile
	log      *slog.Logger
	serveErr chan error
}

// Bootstrap resolves roots, opens persistence if configured, performs
// the initial walk or reconciliation, and starts the event loop and
// query socket. socketPath and pidPath are pre-resolved by the caller
// (cmd/ffindd), which already knows the effective uid.
func Bootstrap(injector *do.RootScope, socketPath, pidPath string) (*Runtime, error) {
	log := do.MustInvoke[*slog.Logger](injector)

	pidFile, err := lifecycle.Acquire(pidPath)
	if err != nil {
		return nil, err
	}

	rootList := []string(do.MustInvoke[RootList](injector))
	store := do.MustInvoke[*index.Store](injector)
	w := do.MustInvoke[watcher.Watcher](injector)
	persist := do.MustInvoke[*PersistenceHandle](injector)
	scanner := do.MustInvoke[*search.Scanner](injector)

	onProgress := progressReporter(log)
	ix := indexer.New(store, w, log, onProgress)

	if err := initialIndex(store, ix, persist, rootList, log); err != nil {
		pidFile.Release()
		return nil, err
	}

	loop := eventloop.New(store, w, ix, rootList, persist.Scheduler, log)
	go loop.Run()

	srv := server.New(store, rootList, scanner, log)
	if err := srv.Listen(socketPath); err != nil {
		loop.Stop()
		pidFile.Release()
		return nil, errors.Wrap(err, errors.CodeResource, "binding query socket")
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	return &Runtime{
		injector: injector,
		loop:     loop,
		srv:      srv,
		pidFile:  pidFile,
		log:      log,
		serveErr: serveErr,
	}, nil
}

// initialIndex implements spec §4.5's "compare roots" step: reconcile
// against a matching persisted snapshot, or perform a fresh walk.
func initialIndex(store *index.Store, ix *indexer.Indexer, persist *PersistenceHandle, rootList []string, log *slog.Logger) error {
	if persist.Store != nil {
		priorRoots, err := persist.Store.LoadRoots()
		if err != nil {
			log.Warn("failed to load prior roots, falling back to fresh walk", "error", err)
		} else if sameRoots(priorRoots, rootList) {
			entries, err := persist.Store.LoadEntries()
			if err != nil {
				log.Warn("failed to load persisted entries, falling back to fresh walk", "error", err)
			} else {
				changed := persistence.Reconcile(store, entries, rootList, log)
				log.Info("reconciled against persisted snapshot", "changed", changed)
				if changed > 0 {
					if err := persist.Store.MarkDirty(); err != nil {
						log.Warn("failed to mark sync state dirty", "error", err)
					}
				}
				if err := watchAllDirs(store, ix); err != nil {
					log.Warn("failed to register watches after reconcile", "error", err)
				}
				return nil
			}
		}
	}

	if err := ix.WalkRoots(rootList); err != nil {
		return errors.Wrap(err, errors.CodeConfig, "initial filesystem walk")
	}
	if persist.Store != nil {
		if err := persist.Store.SaveRoots(rootList); err != nil {
			log.Warn("failed to persist root list", "error", err)
		}
	}
	return nil
}

func sameRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Stop drains the event loop, stops accepting connections, performs a
// final persistence flush, and releases the PID file — spec §4.8's
// graceful shutdown sequence.
func (r *Runtime) Stop() {
	_ = r.srv.Close()
	<-r.serveErr

	r.loop.Stop()

	if err := r.injector.Shutdown(); err != nil {
		r.log.Warn("error shutting down services", "error", err)
	}

	r.pidFile.Release()
}

func progressReporter(log *slog.Logger) func(int) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(visited int) {
		log.Info("indexing in progress", "visited", visited)
	}
}

func watchAllDirs(store *index.Store, ix *indexer.Indexer) error {
	var err error
	store.Each(func(e index.Entry) {
		if !e.IsDir {
			return
		}
		if watchErr := ix.WatchExisting(e.Path); watchErr != nil {
			err = watchErr
		}
	})
	return err
}
