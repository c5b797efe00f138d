// Package query implements the candidate filter pipeline described in
// spec §4.6: the six ordered, short-circuiting predicates a stored
// entry must pass before it is emitted or handed to the content
// scanner, plus the path-index-accelerated candidate narrowing that
// avoids a full scan when the path pattern carries a static prefix.
package query

import (
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ffind/ffind/internal/index"
	"github.com/ffind/ffind/internal/protocol"
)

// Matcher evaluates one decoded request against stored entries.
type Matcher struct {
	req   *protocol.Request
	roots []string
	now   time.Time
}

// New builds a Matcher for req against the given canonical root list.
func New(req *protocol.Request, rootList []string, now time.Time) *Matcher {
	return &Matcher{req: req, roots: rootList, now: now}
}

// Candidates runs the filter pipeline over store and returns every
// surviving entry, narrowing the scan via the path index first when
// the path pattern has a usable static directory prefix.
func (m *Matcher) Candidates(store *index.Store) []index.Entry {
	var out []index.Entry

	if prefix, ok := staticPrefix(m.req.PathPattern); ok {
		seen := make(map[string]bool)
		for _, root := range m.roots {
			absPrefix := strings.TrimSuffix(root, "/") + "/" + prefix
			for _, e := range m.candidatesUnderPrefix(store, absPrefix) {
				if seen[e.Path] {
					continue
				}
				seen[e.Path] = true
				if m.Match(e) {
					out = append(out, e)
				}
			}
		}
		return out
	}

	store.Each(func(e index.Entry) {
		if m.Match(e) {
			out = append(out, e)
		}
	})
	return out
}

// Match applies the ordered pipeline from spec §4.6 to a single entry.
func (m *Matcher) Match(e index.Entry) bool {
	req := m.req

	switch req.TypeFilter {
	case protocol.TypeFile:
		if e.IsDir {
			return false
		}
	case protocol.TypeDir:
		if !e.IsDir {
			return false
		}
	}

	if req.HasContentPattern() && e.IsDir {
		return false
	}

	if req.SizeOp != protocol.OpNone && !compareInt64(e.Size, req.SizeOp, req.SizeVal) {
		return false
	}

	if req.MTimeOp != protocol.OpNone {
		ageDays := int32(m.now.Unix()-e.MTime) / 86400
		if !compareInt32(ageDays, req.MTimeOp, req.MTimeDays) {
			return false
		}
	}

	if req.NamePattern != "" && !matchGlob(req.NamePattern, baseName(e.Path), req.CaseInsensitive) {
		return false
	}

	if req.PathPattern != "" {
		rel := rootRelative(e.Path, m.roots, e.RootIndex)
		if !matchGlob(req.PathPattern, rel, req.CaseInsensitive) {
			return false
		}
	}

	return true
}

// candidatesUnderPrefix walks the path index breadth-first from prefix,
// collecting every entry whose directory equals, lies below, or (via
// the initial lookup) contains prefix. It falls back to every entry in
// the store whenever prefix cannot be located as a directory bucket,
// since the pattern may still match paths above the narrowed subtree.
func (m *Matcher) candidatesUnderPrefix(store *index.Store, prefix string) []index.Entry {
	var out []index.Entry
	if _, ok := store.Lookup(prefix); !ok && len(store.Children(prefix)) == 0 {
		store.Each(func(e index.Entry) { out = append(out, e) })
		return out
	}

	seen := make(map[string]bool)

	queue := []string{prefix}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		if seen[dir] {
			continue
		}
		seen[dir] = true

		for _, childPath := range store.Children(dir) {
			e, ok := store.Lookup(childPath)
			if !ok {
				continue
			}
			out = append(out, e)
			if e.IsDir {
				queue = append(queue, e.Path)
			}
		}
	}

	if e, ok := store.Lookup(prefix); ok {
		out = append(out, e)
	}

	return out
}

// staticPrefix extracts the directory portion of pattern that precedes
// its first glob metacharacter, split at the last '/' before that
// point. It reports false when no such prefix exists (pattern starts
// with a metacharacter, or is empty).
func staticPrefix(pattern string) (string, bool) {
	cut := strings.IndexAny(pattern, "*?[")
	if cut == -1 {
		cut = len(pattern)
	}
	static := pattern[:cut]
	slash := strings.LastIndexByte(static, '/')
	if slash <= 0 {
		return "", false
	}
	return static[:slash], true
}

func matchGlob(pattern, name string, caseInsensitive bool) bool {
	if caseInsensitive {
		pattern = strings.ToLower(pattern)
		name = strings.ToLower(name)
	}
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return ok
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	return path[i+1:]
}

// rootRelative strips the root directory's prefix from an absolute
// path, matching the path pattern's "root-relative path" semantics.
func rootRelative(path string, rootList []string, rootIndex int) string {
	if rootIndex < 0 || rootIndex >= len(rootList) {
		return path
	}
	return strings.TrimPrefix(path, rootList[rootIndex])
}

func compareInt64(v int64, op byte, want int64) bool {
	switch op {
	case protocol.OpLess:
		return v < want
	case protocol.OpEqual:
		return v == want
	case protocol.OpGreater:
		return v > want
	default:
		return true
	}
}

func compareInt32(v int32, op byte, want int32) bool {
	switch op {
	case protocol.OpLess:
		return v < want
	case protocol.OpEqual:
		return v == want
	case protocol.OpGreater:
		return v > want
	default:
		return true
	}
}
