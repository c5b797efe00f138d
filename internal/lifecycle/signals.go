package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// ShutdownSignals are the signals that request an orderly shutdown.
var ShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP}

// CrashSignals are the signals that indicate a memory-safety trap: a
// best-effort cleanup of on-disk state runs before re-raising the
// default handler for a core dump.
//
// Go's signal delivery runs handlers as ordinary goroutines rather
// than true async-signal-safe interrupt context, so "async-signal-safe"
// here means only: touch no lock that a faulted goroutine might be
// holding, and keep the cleanup to unlinking two known paths.
var CrashSignals = []os.Signal{syscall.SIGSEGV, syscall.SIGABRT, syscall.SIGBUS}

// SignalHandler watches for shutdown and crash signals and drives the
// daemon's response to each, per spec §4.8's signal-discipline table.
type SignalHandler struct {
	log        *slog.Logger
	socketPath string
	pidPath    string
	shutdownFn func()
	shutdownAt atomic.Bool
	ch         chan os.Signal
}

// NewSignalHandler returns a handler that calls onShutdown once when a
// shutdown signal arrives, and cleans up socketPath/pidPath before
// re-raising a crash signal.
func NewSignalHandler(socketPath, pidPath string, onShutdown func(), log *slog.Logger) *SignalHandler {
	return &SignalHandler{
		log:        log,
		socketPath: socketPath,
		pidPath:    pidPath,
		shutdownFn: onShutdown,
		ch:         make(chan os.Signal, 4),
	}
}

// Start begins watching for signals in a background goroutine.
func (h *SignalHandler) Start() {
	all := append(append([]os.Signal{}, ShutdownSignals...), CrashSignals...)
	signal.Notify(h.ch, all...)
	go h.loop()
}

// Stop releases the signal subscription.
func (h *SignalHandler) Stop() {
	signal.Stop(h.ch)
}

// ShutdownRequested reports whether a shutdown signal has been seen.
func (h *SignalHandler) ShutdownRequested() bool {
	return h.shutdownAt.Load()
}

func (h *SignalHandler) loop() {
	for sig := range h.ch {
		if isCrash(sig) {
			h.handleCrash(sig)
			return
		}
		if !h.shutdownAt.CompareAndSwap(false, true) {
			continue
		}
		h.log.Info("received signal, shutting down", "signal", sig.String())
		h.shutdownFn()
	}
}

func (h *SignalHandler) handleCrash(sig os.Signal) {
	_ = os.Remove(h.socketPath)
	_ = os.Remove(h.pidPath)

	signal.Stop(h.ch)
	ssig, ok := sig.(syscall.Signal)
	if !ok {
		os.Exit(2)
	}
	signal.Reset(sig)
	_ = syscall.Kill(os.Getpid(), ssig)
}

func isCrash(sig os.Signal) bool {
	for _, c := range CrashSignals {
		if sig == c {
			return true
		}
	}
	return false
}
