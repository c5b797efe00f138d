package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffind/ffind/internal/protocol"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestBuildMatcher_FixedCaseSensitive(t *testing.T) {
	m, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)
	assert.True(t, m([]byte("// TODO: fix this")))
	assert.False(t, m([]byte("// todo: fix this")))
}

func TestBuildMatcher_FixedCaseInsensitive(t *testing.T) {
	m, err := BuildMatcher(&protocol.Request{ContentPattern: "todo", CaseInsensitive: true})
	require.NoError(t, err)
	assert.True(t, m([]byte("// TODO: fix this")))
}

func TestBuildMatcher_Regex(t *testing.T) {
	m, err := BuildMatcher(&protocol.Request{ContentPattern: `func \w+\(`, ContentIsRegex: true})
	require.NoError(t, err)
	assert.True(t, m([]byte("func doThing(x int) {")))
	assert.False(t, m([]byte("var x = 1")))
}

func TestBuildMatcher_Glob(t *testing.T) {
	m, err := BuildMatcher(&protocol.Request{ContentPattern: "* error *", ContentIsGlob: true})
	require.NoError(t, err)
	assert.True(t, m([]byte("log.Warn error here")))
	assert.False(t, m([]byte("no issues")))
}

func TestScanFile_SkipsBinary(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bin.dat", "abc\x00def TODO")
	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	r := scanFile(Task{Path: path}, matcher, 0, 0)
	require.NoError(t, r.Err)
	assert.Empty(t, r.Lines)
}

func TestScanFile_EmptyFileHasNoMatches(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "")
	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	r := scanFile(Task{Path: path}, matcher, 0, 0)
	require.NoError(t, r.Err)
	assert.Empty(t, r.Lines)
}

func TestScanFile_NoContextReturnsOnlyMatches(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.go", "line1\nTODO here\nline3\n")
	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	r := scanFile(Task{Path: path}, matcher, 0, 0)
	require.NoError(t, r.Err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, 2, r.Lines[0].Line)
	assert.True(t, r.Lines[0].IsMatch)
}

func TestScanFile_ContextRangesMergeWhenAdjacent(t *testing.T) {
	dir := t.TempDir()
	contents := "a\nb\nTODO one\nd\ne\nTODO two\ng\n"
	path := writeFile(t, dir, "f.go", contents)
	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	r := scanFile(Task{Path: path}, matcher, 1, 1)
	require.NoError(t, r.Err)

	var hasSeparator bool
	for _, l := range r.Lines {
		if l.Text == "--" {
			hasSeparator = true
		}
	}
	assert.False(t, hasSeparator, "ranges [1,3] and [4,6] are adjacent and must merge without a separator")
}

func TestScanFile_DistantMatchesProduceSeparator(t *testing.T) {
	dir := t.TempDir()
	contents := "TODO first\nb\nc\nd\ne\nf\ng\nh\nTODO second\n"
	path := writeFile(t, dir, "f.go", contents)
	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	r := scanFile(Task{Path: path}, matcher, 1, 1)
	require.NoError(t, r.Err)

	var separators int
	for _, l := range r.Lines {
		if l.Text == "--" {
			separators++
		}
	}
	assert.Equal(t, 1, separators)
}

func TestScanner_Scan_IsolatesPerFileFailure(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.go", "TODO here\n")
	missing := filepath.Join(dir, "does-not-exist.go")

	matcher, err := BuildMatcher(&protocol.Request{ContentPattern: "TODO"})
	require.NoError(t, err)

	s := New()
	results := s.Scan([]Task{{Path: missing}, {Path: ok}}, matcher, 0, 0)

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Len(t, results[1].Lines, 1)
}

func TestMergeRanges_MergesOverlappingAndAdjacent(t *testing.T) {
	got := mergeRanges([][2]int{{0, 2}, {3, 4}, {10, 12}})
	assert.Equal(t, [][2]int{{0, 4}, {10, 12}}, got)
}

func TestIsBinary_DetectsNulInFirst1024Bytes(t *testing.T) {
	assert.True(t, isBinary([]byte("abc\x00def")))
	assert.False(t, isBinary([]byte("all text, no nulls here")))
}
