package persistence

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffind/ffind/internal/index"
)

func TestReconcile_AddsUpdatesAndDeletes(t *testing.T) {
	dir := t.TempDir()
	unchanged := filepath.Join(dir, "unchanged.txt")
	updated := filepath.Join(dir, "updated.txt")
	added := filepath.Join(dir, "added.txt")

	require.NoError(t, os.WriteFile(unchanged, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(updated, []byte("new contents, different size"), 0o644))
	require.NoError(t, os.WriteFile(added, []byte("x"), 0o644))

	unchangedInfo, err := os.Stat(unchanged)
	require.NoError(t, err)
	updatedInfo, err := os.Stat(updated)
	require.NoError(t, err)

	snapshot := []index.Entry{
		{Path: unchanged, Size: unchangedInfo.Size(), MTime: unchangedInfo.ModTime().Unix()},
		{Path: updated, Size: 1, MTime: updatedInfo.ModTime().Unix() - 1000}, // stale
		{Path: filepath.Join(dir, "gone.txt")},                              // no longer on disk
	}

	store := index.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	changed := Reconcile(store, snapshot, []string{dir + "/"}, log)

	assert.Positive(t, changed)

	_, ok := store.Lookup(added)
	assert.True(t, ok, "added.txt should be inserted")

	e, ok := store.Lookup(updated)
	require.True(t, ok)
	assert.Equal(t, updatedInfo.Size(), e.Size, "updated.txt should reflect current size")

	_, ok = store.Lookup(filepath.Join(dir, "gone.txt"))
	assert.False(t, ok, "snapshot entries never visited must be deleted")
}
