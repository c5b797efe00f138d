package wiring

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffind/ffind/internal/config"
	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/search"
	"github.com/ffind/ffind/internal/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewContainer_ResolvesCoreSingletons(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Roots: []string{dir}}

	injector := NewContainer(cfg, testLogger())

	rootList := do.MustInvoke[RootList](injector)
	require.Len(t, rootList, 1)

	store := do.MustInvoke[*index.Store](injector)
	assert.Equal(t, 0, store.Len())

	w := do.MustInvoke[watcher.Watcher](injector)
	require.NotNil(t, w)
	defer w.Close()

	scanner := do.MustInvoke[*search.Scanner](injector)
	assert.NotNil(t, scanner)
}

func TestNewContainer_PersistenceDisabledWithoutDBPath(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Roots: []string{dir}}

	injector := NewContainer(cfg, testLogger())
	persist := do.MustInvoke[*PersistenceHandle](injector)

	assert.Nil(t, persist.Store)
	assert.Nil(t, persist.Scheduler)
	assert.NoError(t, persist.Shutdown())
}

func TestNewContainer_PersistenceEnabledWithDBPath(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ffind.db")
	cfg := &config.Config{Roots: []string{dir}, DBPath: dbPath}

	injector := NewContainer(cfg, testLogger())
	persist := do.MustInvoke[*PersistenceHandle](injector)

	require.NotNil(t, persist.Store)
	require.NotNil(t, persist.Scheduler)
	assert.NoError(t, persist.Shutdown())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
