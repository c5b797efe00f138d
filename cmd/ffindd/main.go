// Command ffindd is the filesystem-indexing daemon: it walks its
// configured roots, keeps the resulting index current via kernel
// change notifications, and serves queries over a unix socket.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ffind/ffind/internal/config"
	"github.com/ffind/ffind/internal/errors"
	"github.com/ffind/ffind/internal/lifecycle"
	"github.com/ffind/ffind/internal/logger"
	"github.com/ffind/ffind/internal/wiring"
)

func main() {
	os.Exit(run())
}

func run() int {
	var warnings []string
	cfg, err := config.Load(os.Args[1:], func(msg string) { warnings = append(warnings, msg) })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	log := logger.New(logger.Config{
		Level: slog.LevelInfo,
	})
	for _, w := range warnings {
		log.Warn(w)
	}

	if !cfg.Foreground {
		log.Info("daemonizing is not implemented on this platform; running in foreground")
	}

	uid := os.Getuid()
	socketPath := lifecycle.SocketPath(uid)
	pidPath := lifecycle.PIDPath(uid)

	injector := wiring.NewContainer(cfg, log.Logger)

	rt, err := wiring.Bootstrap(injector, socketPath, pidPath)
	if err != nil {
		log.Error("failed to start", "error", err)
		return exitCodeFor(err)
	}

	stopped := make(chan struct{})
	handler := lifecycle.NewSignalHandler(socketPath, pidPath, func() {
		rt.Stop()
		close(stopped)
	}, log.Logger)
	handler.Start()
	defer handler.Stop()

	log.Info("ffindd ready", "socket", socketPath)

	<-stopped
	return 0
}

func exitCodeFor(err error) int {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		if code := domainErr.Code.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
