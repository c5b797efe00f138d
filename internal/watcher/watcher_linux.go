//go:build linux

package watcher

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ffind/ffind/internal/errors"
)

// watchMask covers every event the event loop's classification table
// (create, delete, modify, close-after-write, move-from, move-to,
// self-delete, self-move) needs to observe.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_MOVE_SELF | unix.IN_MOVED_FROM |
	unix.IN_MOVED_TO | unix.IN_CLOSE_WRITE

// linuxWatcher implements Watcher directly on inotify.
type linuxWatcher struct {
	fd int

	mu      sync.RWMutex
	wdPaths map[int]string
	paths   map[string]int

	buf []byte
}

// New opens the daemon's kernel notification handle for the current
// platform.
func New() (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeResource, "inotify_init1")
	}
	return &linuxWatcher{
		fd:      fd,
		wdPaths: make(map[int]string),
		paths:   make(map[string]int),
		buf:     make([]byte, 8192), // 8 KiB, per the daemon's documented event-buffer bound
	}, nil
}

func (w *linuxWatcher) Watch(dir string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wd, ok := w.paths[dir]; ok {
		return wd, nil
	}

	wd, err := unix.InotifyAddWatch(w.fd, dir, watchMask)
	if err != nil {
		return 0, errors.Wrapf(err, errors.CodeTransient, "inotify_add_watch %s", dir)
	}
	w.wdPaths[wd] = dir
	w.paths[dir] = wd
	return wd, nil
}

func (w *linuxWatcher) Unwatch(wd int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path, ok := w.wdPaths[wd]
	if !ok {
		return
	}
	//nolint:gosec // G115: wd is always a small non-negative int returned by the kernel
	_, _ = unix.InotifyRmWatch(w.fd, uint32(wd))
	delete(w.wdPaths, wd)
	delete(w.paths, path)
}

func (w *linuxWatcher) PathOf(wd int) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.wdPaths[wd]
	return p, ok
}

// NextEvents polls the inotify descriptor for up to timeout, then reads
// and parses whatever is queued. It never blocks past timeout: an idle
// descriptor returns a nil slice, not an error.
func (w *linuxWatcher) NextEvents(timeout time.Duration) ([]RawEvent, error) {
	pfd := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeTransient, "poll(inotify fd)")
	}
	if n == 0 {
		return nil, nil
	}

	read, err := unix.Read(w.fd, w.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CodeTransient, "reading inotify events")
	}

	return w.parse(w.buf[:read]), nil
}

// parse decodes raw inotify events from buf. Per §4.2, an event whose
// fixed header or variable-length name would run past the end of the
// buffer is discarded rather than causing a panic.
func (w *linuxWatcher) parse(buf []byte) []RawEvent {
	var out []RawEvent
	offset := 0

	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: required to interpret the kernel's inotify_event layout
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(buf) {
			break
		}

		name := ""
		if raw.Len > 0 {
			name = cString(buf[nameStart:nameEnd])
		}

		out = append(out, RawEvent{
			//nolint:gosec // G115: wd from the kernel always fits in an int
			Wd:     int(raw.Wd),
			Mask:   raw.Mask &^ unix.IN_ISDIR,
			Cookie: raw.Cookie,
			Name:   name,
			IsDir:  raw.Mask&unix.IN_ISDIR != 0,
		})

		offset = nameEnd
	}

	return out
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (w *linuxWatcher) Close() error {
	if err := unix.Close(w.fd); err != nil {
		return errors.Wrap(err, errors.CodeTransient, "closing inotify descriptor")
	}
	return nil
}
