package lifecycle

import (
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalHandler_ShutdownSignalInvokesCallback(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	called := make(chan struct{}, 1)

	h := NewSignalHandler("", "", func() { called <- struct{}{} }, log)
	h.Start()
	defer h.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
	assert.True(t, h.ShutdownRequested())
}

func TestSignalHandler_IgnoresSecondShutdownSignal(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	calls := make(chan struct{}, 4)

	h := NewSignalHandler("", "", func() { calls <- struct{}{} }, log)
	h.Start()
	defer h.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected first callback")
	}

	select {
	case <-calls:
		t.Fatal("callback invoked twice for repeated shutdown signals")
	case <-time.After(200 * time.Millisecond):
	}
}
