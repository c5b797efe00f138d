package server

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// gatheredWriter batches small writes and flushes them with a single
// writev(2) call once maxBuffers accumulate, per spec §4.6's streaming
// requirement. Connections that don't expose a raw fd fall back to
// issuing conn.Write per buffer.
type gatheredWriter struct {
	conn       net.Conn
	raw        syscall.RawConn
	maxBuffers int
	bufs       [][]byte
}

func newGatheredWriter(conn net.Conn, maxBuffers int) *gatheredWriter {
	w := &gatheredWriter{conn: conn, maxBuffers: maxBuffers}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			w.raw = raw
		}
	}
	return w
}

// Write queues data for the next flush, flushing immediately once
// maxBuffers have accumulated.
func (w *gatheredWriter) Write(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	w.bufs = append(w.bufs, cp)
	if len(w.bufs) >= w.maxBuffers {
		return w.Flush()
	}
	return nil
}

// Flush writes every queued buffer and clears the queue.
func (w *gatheredWriter) Flush() error {
	if len(w.bufs) == 0 {
		return nil
	}
	bufs := w.bufs
	w.bufs = nil

	if w.raw != nil {
		return w.flushWritev(bufs)
	}
	return flushSequential(w.conn, bufs)
}

// flushWritev issues writev(2) against the batch, re-slicing the
// remaining buffers (including a partially-consumed one) after each
// short write, and retrying the whole batch on EINTR.
func (w *gatheredWriter) flushWritev(bufs [][]byte) error {
	for len(bufs) > 0 {
		batch := bufs
		if len(batch) > w.maxBuffers {
			batch = batch[:w.maxBuffers]
		}

		var n int
		var opErr error
		ctrlErr := w.raw.Write(func(fd uintptr) bool {
			n, opErr = writevRetryEINTR(int(fd), batch)
			return true
		})
		if ctrlErr != nil {
			return ctrlErr
		}
		if opErr != nil {
			return opErr
		}

		bufs = advance(bufs, n)
	}
	return nil
}

// advance drops n written bytes from the front of bufs, splitting the
// first buffer that was only partially written.
func advance(bufs [][]byte, n int) [][]byte {
	for n > 0 && len(bufs) > 0 {
		if n < len(bufs[0]) {
			bufs[0] = bufs[0][n:]
			return bufs
		}
		n -= len(bufs[0])
		bufs = bufs[1:]
	}
	return bufs
}

func writevRetryEINTR(fd int, bufs [][]byte) (int, error) {
	for {
		n, err := unix.Writev(fd, bufs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

func flushSequential(conn net.Conn, bufs [][]byte) error {
	for _, b := range bufs {
		if _, err := writeFullRetry(conn, b); err != nil {
			return err
		}
	}
	return nil
}

func writeFullRetry(conn net.Conn, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		total += n
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}
