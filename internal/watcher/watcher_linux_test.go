//go:build linux

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinuxWatcher_CreateAndCloseWrite(t *testing.T) {
	dir := t.TempDir()

	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Watch(dir)
	require.NoError(t, err)

	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hi"), 0o644))

	events := collectEvents(t, w, 2*time.Second)

	var sawCreate, sawCloseWrite bool
	for _, e := range events {
		if e.Mask&Create != 0 {
			sawCreate = true
		}
		if e.Mask&CloseWrite != 0 {
			sawCloseWrite = true
		}
		assert.Equal(t, "a.txt", e.Name)
	}
	assert.True(t, sawCreate, "expected a Create event")
	assert.True(t, sawCloseWrite, "expected a CloseWrite event")
}

func TestLinuxWatcher_RenameCookiePairing(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	require.NoError(t, os.Mkdir(oldPath, 0o755))

	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Watch(dir)
	require.NoError(t, err)

	newPath := filepath.Join(dir, "new")
	require.NoError(t, os.Rename(oldPath, newPath))

	events := collectEvents(t, w, 2*time.Second)

	var from, to *RawEvent
	for i := range events {
		if events[i].Mask&MovedFrom != 0 {
			from = &events[i]
		}
		if events[i].Mask&MovedTo != 0 {
			to = &events[i]
		}
	}
	require.NotNil(t, from)
	require.NotNil(t, to)
	assert.Equal(t, from.Cookie, to.Cookie)
	assert.NotZero(t, from.Cookie)
}

func TestLinuxWatcher_UnwatchStopsEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	wd, err := w.Watch(dir)
	require.NoError(t, err)
	w.Unwatch(wd)

	_, known := w.PathOf(wd)
	assert.False(t, known)
}

func collectEvents(t *testing.T, w Watcher, overall time.Duration) []RawEvent {
	t.Helper()
	deadline := time.Now().Add(overall)
	var all []RawEvent
	for time.Now().Before(deadline) {
		evs, err := w.NextEvents(100 * time.Millisecond)
		require.NoError(t, err)
		all = append(all, evs...)
		if len(all) > 0 {
			// Give the kernel a moment to deliver the paired event
			// (e.g. MovedTo following MovedFrom) before returning.
			more, err := w.NextEvents(100 * time.Millisecond)
			require.NoError(t, err)
			all = append(all, more...)
			break
		}
	}
	return all
}
