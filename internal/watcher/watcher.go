// Package watcher wraps the platform's kernel change-notification
// facility, exposing raw, unclassified events with their mask bits and
// rename cookies intact. Classification into store mutations (the
// create/delete/rename decision table) belongs to the event loop, not
// here — this package's only job is to keep the descriptor-to-path
// mapping current and hand back whatever the kernel reported.
package watcher

import "time"

// Mask bits, aliased from the Linux inotify constants so that callers
// on every platform can test against the same values regardless of
// which backend produced the event. The fallback backend (fsnotify) can
// only approximate a subset of these; see watcher_fallback.go.
const (
	Create     uint32 = 0x00000100 // IN_CREATE
	Delete     uint32 = 0x00000200 // IN_DELETE
	DeleteSelf uint32 = 0x00000400 // IN_DELETE_SELF
	Modify     uint32 = 0x00000002 // IN_MODIFY
	MoveSelf   uint32 = 0x00000800 // IN_MOVE_SELF
	MovedFrom  uint32 = 0x00000040 // IN_MOVED_FROM
	MovedTo    uint32 = 0x00000080 // IN_MOVED_TO
	CloseWrite uint32 = 0x00000008 // IN_CLOSE_WRITE
	Ignored    uint32 = 0x00008000 // IN_IGNORED
	QOverflow  uint32 = 0x00004000 // IN_Q_OVERFLOW
	IsDirBit   uint32 = 0x40000000 // IN_ISDIR
)

// RawEvent is one kernel notification, unclassified. Wd identifies the
// watched directory it occurred in (meaningless for QOverflow, which
// carries no watch descriptor). Cookie pairs a MovedFrom with its
// matching MovedTo. Name is the child's base name, empty for
// self-directed events (DeleteSelf, MoveSelf, Ignored).
type RawEvent struct {
	Wd     int
	Mask   uint32
	Cookie uint32
	Name   string
	IsDir  bool
}

// Watcher is the interface both platform backends satisfy.
type Watcher interface {
	// Watch registers dir for notifications and returns its watch
	// descriptor. Calling it again on an already-watched path is a
	// no-op that returns the existing descriptor.
	Watch(dir string) (wd int, err error)

	// Unwatch removes a watch by descriptor. Unknown descriptors are
	// ignored.
	Unwatch(wd int)

	// PathOf returns the directory path currently associated with wd,
	// and whether it is still tracked.
	PathOf(wd int) (string, bool)

	// NextEvents blocks for up to timeout waiting for kernel events,
	// short-polling so the caller can check shutdown and run periodic
	// maintenance. A zero-length, nil-error result means the timeout
	// elapsed with nothing to report.
	NextEvents(timeout time.Duration) ([]RawEvent, error)

	// Close releases the underlying kernel handle.
	Close() error
}
