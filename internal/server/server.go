// Package server accepts client connections on the daemon's unix
// socket, decodes one request per connection, runs it against the
// query engine and content scanner, and streams results back using
// gathered writes.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/ffind/ffind/internal/id"
	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/protocol"
	"github.com/ffind/ffind/internal/query"
	"github.com/ffind/ffind/internal/search"
)

// maxGatheredBuffers is the cap on buffers flushed per underlying
// write syscall, per spec §4.6's streaming requirement.
const maxGatheredBuffers = 1024

// Server listens on a unix socket and dispatches one goroutine per
// accepted connection.
type Server struct {
	store    *index.Store
	roots    []string
	scanner  *search.Scanner
	log      *slog.Logger
	listener net.Listener
}

// New constructs a Server. Listen must be called before Serve.
func New(store *index.Store, rootList []string, scanner *search.Scanner, log *slog.Logger) *Server {
	return &Server{store: store, roots: rootList, scanner: scanner, log: log}
}

// Listen unlinks any stale socket at path and binds a fresh one.
func (s *Server) Listen(path string) error {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	_ = os.Chmod(path, 0o600)
	s.listener = l
	return nil
}

// Addr returns the bound socket path, or empty before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until the listener is closed (typically by
// Close, invoked from the daemon's shutdown sequence).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connID, err := id.Generate("conn")
	if err != nil {
		connID = "conn-unknown"
	}
	log := s.log.With("conn", connID)

	req, err := protocol.Decode(conn)
	if err != nil {
		log.Info("rejecting request", "error", err)
		_, _ = io.WriteString(conn, err.Error()+"\n")
		return
	}

	m := query.New(req, s.roots, time.Now())
	candidates := m.Candidates(s.store)

	if !req.HasContentPattern() {
		s.streamPaths(conn, log, candidates)
		return
	}

	s.streamContentMatches(conn, log, req, candidates)
}

func (s *Server) streamPaths(conn net.Conn, log *slog.Logger, candidates []index.Entry) {
	w := newGatheredWriter(conn, maxGatheredBuffers)
	for _, e := range candidates {
		if err := w.Write([]byte(e.Path + "\n")); err != nil {
			if isClientGone(err) {
				return
			}
			log.Warn("write failed", "error", err)
			return
		}
	}
	if err := w.Flush(); err != nil && !isClientGone(err) {
		log.Warn("flush failed", "error", err)
	}
}

func (s *Server) streamContentMatches(conn net.Conn, log *slog.Logger, req *protocol.Request, candidates []index.Entry) {
	matcher, err := search.BuildMatcher(req)
	if err != nil {
		_, _ = io.WriteString(conn, "Invalid regex pattern\n")
		return
	}

	tasks := make([]search.Task, 0, len(candidates))
	for _, e := range candidates {
		tasks = append(tasks, search.Task{Path: e.Path})
	}

	results := s.scanner.Scan(tasks, matcher, req.BeforeContext, req.AfterContext)

	w := newGatheredWriter(conn, maxGatheredBuffers)
	for _, r := range results {
		if r.Err != nil {
			log.Warn("scan failed, skipping file", "path", r.Path, "error", r.Err)
			continue
		}
		for _, line := range r.Lines {
			if err := w.Write([]byte(formatMatchLine(line))); err != nil {
				if isClientGone(err) {
					return
				}
				log.Warn("write failed", "error", err)
				return
			}
		}
	}
	if err := w.Flush(); err != nil && !isClientGone(err) {
		log.Warn("flush failed", "error", err)
	}
}

func formatMatchLine(m search.Match) string {
	if m.Text == "--" && !m.IsMatch && m.Line == -1 {
		return "--\n"
	}
	sep := "-"
	if m.IsMatch {
		sep = ":"
	}
	return m.Path + ":" + strconv.Itoa(m.Line) + sep + m.Text + "\n"
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// isClientGone reports whether a write failure means the peer hung up
// mid-stream, which spec §4.6 says to terminate silently rather than log.
func isClientGone(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) || errors.Is(err, io.EOF)
}
