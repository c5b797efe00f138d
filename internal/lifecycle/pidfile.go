// Package lifecycle implements the daemon's startup/shutdown
// discipline: single-instance guard via a PID file, listening-socket
// path selection, and cooperative signal handling described in spec
// §4.8 and §5.
package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ffind/ffind/internal/errors"
)

const daemonProcessName = "ffindd"

// PIDPath returns the PID-file path for uid: the system-wide path when
// running as root, otherwise a per-user path under /run/user.
func PIDPath(uid int) string {
	if uid == 0 {
		return "/run/ffind-daemon.pid"
	}
	return fmt.Sprintf("/run/user/%d/ffind-daemon.pid", uid)
}

// SocketPath returns the listening-socket path for uid.
func SocketPath(uid int) string {
	return fmt.Sprintf("/run/user/%d/ffind.sock", uid)
}

// PIDFile is the acquired single-instance guard; Release removes it.
type PIDFile struct {
	path string
}

// Acquire creates path exclusively and writes the current PID into it.
// If path already exists, it consults the OS process table: when the
// recorded PID is no longer running, or belongs to a process whose
// name doesn't match the daemon's, the file is treated as stale,
// removed, and recreated. A live peer is reported as a *errors.Error
// with CodePeer, which is fatal at startup.
func Acquire(path string) (*PIDFile, error) {
	if err := tryCreate(path); err != nil {
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, errors.CodeResource, "creating PID file")
		}
		if staleErr := checkStale(path); staleErr != nil {
			return nil, staleErr
		}
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrap(err, errors.CodeResource, "removing stale PID file")
		}
		if err := tryCreate(path); err != nil {
			return nil, errors.Wrap(err, errors.CodeResource, "recreating PID file")
		}
	}
	return &PIDFile{path: path}, nil
}

// Release removes the PID file. Safe to call more than once.
func (p *PIDFile) Release() {
	_ = os.Remove(p.path)
}

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

// checkStale returns a CodePeer error when path names a live,
// identically-named process, or nil when the file is stale and safe
// to remove.
func checkStale(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// The file vanished between our EXCL failure and this read; treat
		// it as stale and let the caller recreate it.
		return nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil
	}

	name, err := processName(pid)
	if err != nil {
		// No such process (or no /proc entry): stale.
		return nil
	}
	if name != daemonProcessName {
		return nil
	}
	return errors.Peer(fmt.Sprintf("another instance is already running (pid %d)", pid))
}

// processName reads the command name of a running process from
// /proc/<pid>/comm, trimmed of its trailing newline.
func processName(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
