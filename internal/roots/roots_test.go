package roots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CanonicalizesAndAddsTrailingSlash(t *testing.T) {
	dir := t.TempDir()

	resolved, err := Resolve([]string{dir}, nil)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.True(t, filepath.IsAbs(resolved[0]))
	assert.Equal(t, byte('/'), resolved[0][len(resolved[0])-1])
}

func TestResolve_RejectsMissingPath(t *testing.T) {
	_, err := Resolve([]string{"/does/not/exist/ffind-test"}, nil)
	require.Error(t, err)
}

func TestResolve_RejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Resolve([]string{file}, nil)
	require.Error(t, err)
}

func TestResolve_DeduplicatesAndWarns(t *testing.T) {
	dir := t.TempDir()

	var warnings []string
	resolved, err := Resolve([]string{dir, dir}, func(msg string) { warnings = append(warnings, msg) })
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "duplicate")
}

func TestResolve_WarnsOnOverlap(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "child")
	require.NoError(t, os.Mkdir(child, 0o755))

	var warnings []string
	resolved, err := Resolve([]string{parent, child}, func(msg string) { warnings = append(warnings, msg) })
	require.NoError(t, err)
	assert.Len(t, resolved, 2)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "overlapping")
}

func TestResolve_EmptyAfterDeduplicationErrors(t *testing.T) {
	// Unreachable through the public validation path in practice (Stat
	// would already have rejected duplicates' underlying non-existence),
	// but Resolve must still refuse to start with zero roots.
	_, err := Resolve(nil, nil)
	require.Error(t, err)
}

func TestIndexOf_LongestMatchWins(t *testing.T) {
	rs := []string{"/data/", "/data/nested/"}
	assert.Equal(t, 1, IndexOf(rs, "/data/nested/file.txt"))
	assert.Equal(t, 0, IndexOf(rs, "/data/file.txt"))
	assert.Equal(t, -1, IndexOf(rs, "/other/file.txt"))
}
