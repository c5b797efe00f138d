package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertOrUpdate_InsertsNew(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a", Size: 10, IsDir: false})

	e, ok := s.Lookup("/root/a")
	require.True(t, ok)
	assert.Equal(t, int64(10), e.Size)
	assert.Equal(t, 1, s.Len())
}

func TestInsertOrUpdate_OverwritesExisting(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a", Size: 10})
	s.InsertOrUpdate(Entry{Path: "/root/a", Size: 20})

	e, ok := s.Lookup("/root/a")
	require.True(t, ok)
	assert.Equal(t, int64(20), e.Size)
	assert.Equal(t, 1, s.Len())
}

func TestRemove_SingleEntry(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a"})
	s.InsertOrUpdate(Entry{Path: "/root/b"})

	s.Remove("/root/a", false)

	_, ok := s.Lookup("/root/a")
	assert.False(t, ok)
	_, ok = s.Lookup("/root/b")
	assert.True(t, ok)
}

func TestRemove_PreservesInsertionOrderOfSurvivors(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a"})
	s.InsertOrUpdate(Entry{Path: "/root/b"})
	s.InsertOrUpdate(Entry{Path: "/root/c"})

	s.Remove("/root/a", false)

	var order []string
	s.Each(func(e Entry) { order = append(order, e.Path) })
	assert.Equal(t, []string{"/root/b", "/root/c"}, order)
}

func TestRemove_Recursive(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/dir", IsDir: true})
	s.InsertOrUpdate(Entry{Path: "/root/dir/a"})
	s.InsertOrUpdate(Entry{Path: "/root/dir/sub/b"})
	s.InsertOrUpdate(Entry{Path: "/root/other"})

	s.Remove("/root/dir", true)

	assert.Equal(t, 1, s.Len())
	_, ok := s.Lookup("/root/other")
	assert.True(t, ok)
}

func TestRemove_RecursiveDoesNotMatchSiblingPrefix(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/dir", IsDir: true})
	s.InsertOrUpdate(Entry{Path: "/root/dir-other"})

	s.Remove("/root/dir", true)

	_, ok := s.Lookup("/root/dir-other")
	assert.True(t, ok, "a sibling whose name merely shares a prefix must survive")
}

func TestRenameSubtree_RewritesDirAndDescendants(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/old", IsDir: true})
	s.InsertOrUpdate(Entry{Path: "/root/old/a"})
	s.InsertOrUpdate(Entry{Path: "/root/old/sub/b"})

	s.RenameSubtree("/root/old", "/root/new")

	_, ok := s.Lookup("/root/old")
	assert.False(t, ok)

	e, ok := s.Lookup("/root/new")
	require.True(t, ok)
	assert.True(t, e.IsDir)

	_, ok = s.Lookup("/root/new/a")
	assert.True(t, ok)
	_, ok = s.Lookup("/root/new/sub/b")
	assert.True(t, ok)
}

func TestChildren_ReflectsPathIndex(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/dir", IsDir: true})
	s.InsertOrUpdate(Entry{Path: "/root/dir/a"})
	s.InsertOrUpdate(Entry{Path: "/root/dir/b"})

	children := s.Children("/root/dir")
	assert.ElementsMatch(t, []string{"/root/dir/a", "/root/dir/b"}, children)
}

func TestEach_VisitsEveryEntry(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a"})
	s.InsertOrUpdate(Entry{Path: "/root/b"})

	var seen []string
	s.Each(func(e Entry) { seen = append(seen, e.Path) })
	assert.ElementsMatch(t, []string{"/root/a", "/root/b"}, seen)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.InsertOrUpdate(Entry{Path: "/root/a", Size: 1})

	snap := s.Snapshot()
	snap[0].Size = 99

	e, _ := s.Lookup("/root/a")
	assert.Equal(t, int64(1), e.Size, "mutating a snapshot must not affect the store")
}
