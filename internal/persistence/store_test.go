package persistence

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffind/ffind/internal/index"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffind.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoots(t *testing.T) {
	s := newTestStore(t)

	want := []string{"/data/", "/music/"}
	require.NoError(t, s.SaveRoots(want))

	got, err := s.LoadRoots()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRoots_EmptyWhenNeverSaved(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LoadRoots()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFlushAndLoadEntries_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	idx := index.New()
	idx.InsertOrUpdate(index.Entry{Path: "/data/a.txt", Size: 10, MTime: 100, RootIndex: 0})
	idx.InsertOrUpdate(index.Entry{Path: "/data/dir", IsDir: true, RootIndex: 0})

	require.NoError(t, s.Flush(idx))

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestFlush_ReplacesPriorContents(t *testing.T) {
	s := newTestStore(t)

	idx := index.New()
	idx.InsertOrUpdate(index.Entry{Path: "/data/a.txt"})
	require.NoError(t, s.Flush(idx))

	idx2 := index.New()
	idx2.InsertOrUpdate(index.Entry{Path: "/data/b.txt"})
	require.NoError(t, s.Flush(idx2))

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "/data/b.txt", loaded[0].Path)
}

func TestIsDirty_DefaultsFalse(t *testing.T) {
	s := newTestStore(t)

	dirty, err := s.IsDirty()
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestMarkDirty_ThenFlushClearsIt(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.MarkDirty())
	dirty, err := s.IsDirty()
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, s.Flush(index.New()))
	dirty, err = s.IsDirty()
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestScheduler_FlushesAtThreshold(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(s)

	idx := index.New()
	for i := 0; i < flushThreshold; i++ {
		sched.RecordChange()
	}
	idx.InsertOrUpdate(index.Entry{Path: "/data/a.txt"})

	sched.Tick(idx)

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, 0, sched.pending)
}

func TestScheduler_DoesNotFlushBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(s)

	idx := index.New()
	idx.InsertOrUpdate(index.Entry{Path: "/data/a.txt"})
	sched.RecordChange()

	sched.Tick(idx)

	loaded, err := s.LoadEntries()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
