//go:build !linux

package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ffind/ffind/internal/errors"
)

// fallbackWatcher adapts fsnotify to the Watcher interface for
// non-Linux platforms. fsnotify has no concept of a kernel rename
// cookie, so every RawEvent it produces carries Cookie 0: a directory
// rename on this backend is always seen as a MovedFrom with no
// matching MovedTo, and the event loop's stale-move garbage collector
// resolves it as a recursive delete followed by a fresh Create for the
// new name. This is strictly worse than the Linux backend's intra-tree
// rename preservation, and is the documented cost of running off
// inotify.
type fallbackWatcher struct {
	w *fsnotify.Watcher

	mu      sync.RWMutex
	wdPaths map[int]string
	paths   map[string]int
	nextWd  int32
}

// New opens the daemon's kernel notification handle for the current
// platform.
func New() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResource, "opening fsnotify watcher")
	}
	return &fallbackWatcher{
		w:       w,
		wdPaths: make(map[int]string),
		paths:   make(map[string]int),
	}, nil
}

func (w *fallbackWatcher) Watch(dir string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wd, ok := w.paths[dir]; ok {
		return wd, nil
	}
	if err := w.w.Add(dir); err != nil {
		return 0, errors.Wrapf(err, errors.CodeTransient, "watching %s", dir)
	}

	wd := int(atomic.AddInt32(&w.nextWd, 1))
	w.wdPaths[wd] = dir
	w.paths[dir] = wd
	return wd, nil
}

func (w *fallbackWatcher) Unwatch(wd int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, ok := w.wdPaths[wd]
	if !ok {
		return
	}
	_ = w.w.Remove(path)
	delete(w.wdPaths, wd)
	delete(w.paths, path)
}

func (w *fallbackWatcher) PathOf(wd int) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.wdPaths[wd]
	return p, ok
}

func (w *fallbackWatcher) NextEvents(timeout time.Duration) ([]RawEvent, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case ev, ok := <-w.w.Events:
		if !ok {
			return nil, errors.Resource("fsnotify event channel closed")
		}
		return w.drain(ev), nil
	case err, ok := <-w.w.Errors:
		if !ok {
			return nil, errors.Resource("fsnotify error channel closed")
		}
		return nil, errors.Wrap(err, errors.CodeTransient, "fsnotify")
	case <-deadline.C:
		return nil, nil
	}
}

// drain converts first and any immediately-queued fsnotify events into
// RawEvents without blocking further, so a burst of events (e.g. a
// large copy) is reported in one NextEvents call rather than trickling
// in one at a time.
func (w *fallbackWatcher) drain(first fsnotify.Event) []RawEvent {
	events := []fsnotify.Event{first}
collect:
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				break collect
			}
			events = append(events, ev)
		default:
			break collect
		}
	}

	out := make([]RawEvent, 0, len(events))
	for _, ev := range events {
		re, ok := w.toRawEvent(ev)
		if ok {
			out = append(out, re)
		}
	}
	return out
}

func (w *fallbackWatcher) toRawEvent(ev fsnotify.Event) (RawEvent, bool) {
	dir := filepath.Dir(ev.Name)
	name := filepath.Base(ev.Name)

	w.mu.RLock()
	wd, known := w.paths[dir]
	_, watchedDir := w.paths[ev.Name]
	w.mu.RUnlock()
	if !known {
		return RawEvent{}, false
	}

	// A renamed-away or removed path can no longer be stat'ed; a path we
	// hold a watch on is a directory.
	isDir := watchedDir
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var mask uint32
	switch {
	case ev.Has(fsnotify.Create):
		mask = Create
	case ev.Has(fsnotify.Remove):
		mask = Delete
	case ev.Has(fsnotify.Rename):
		mask = MovedFrom
	case ev.Has(fsnotify.Write):
		mask = Modify
	default:
		return RawEvent{}, false
	}

	return RawEvent{Wd: wd, Mask: mask, Cookie: 0, Name: name, IsDir: isDir}, true
}

func (w *fallbackWatcher) Close() error {
	if err := w.w.Close(); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "closing fsnotify watcher")
	}
	return nil
}
