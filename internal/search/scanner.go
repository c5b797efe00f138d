// Package search implements the daemon's content scanner: a
// fixed-size worker pool that memory-maps each candidate file, detects
// binary content, matches lines against the request's content
// pattern, and assembles merged context-line ranges.
package search

import (
	"bytes"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sys/unix"

	"github.com/ffind/ffind/internal/protocol"
)

// Match is one matching line, or one context line adjacent to a match.
type Match struct {
	Path    string
	Line    int // 1-based
	Text    string
	IsMatch bool // false for a context-only line
}

// Matcher decides whether a line matches the request's content pattern.
type Matcher func(line []byte) bool

// BuildMatcher compiles req's content pattern into a Matcher per its
// selected method: glob, regex, or fixed substring (case-sensitive or
// not). Regex and glob are mutually exclusive per the wire format;
// everything else falls back to fixed substring search.
func BuildMatcher(req *protocol.Request) (Matcher, error) {
	pattern := req.ContentPattern
	ci := req.CaseInsensitive

	switch {
	case req.ContentIsRegex:
		expr := pattern
		if ci {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return func(line []byte) bool { return re.Match(line) }, nil

	case req.ContentIsGlob:
		p := pattern
		return func(line []byte) bool {
			s := string(line)
			if ci {
				s = strings.ToLower(s)
				p = strings.ToLower(p)
			}
			ok, _ := doublestar.Match(p, s)
			return ok
		}, nil

	case ci:
		lowered := []byte(strings.ToLower(pattern))
		return func(line []byte) bool {
			return bytes.Contains(bytes.ToLower(line), lowered)
		}, nil

	default:
		needle := []byte(pattern)
		return func(line []byte) bool {
			return bytes.Contains(line, needle)
		}, nil
	}
}

// Scanner runs content-search tasks on a worker pool sized to the
// machine's logical-processor count.
type Scanner struct {
	workers int
}

// New returns a Scanner with NumCPU workers.
func New() *Scanner {
	return &Scanner{workers: runtime.NumCPU()}
}

// Task is one file queued for content search.
type Task struct {
	Path string
}

// Result carries one file's outcome: either a slice of emitted lines,
// or a skip/error reason that the caller logs but does not propagate,
// per the per-file isolation requirement.
type Result struct {
	Path  string
	Lines []Match
	Err   error
}

// Scan runs matcher over every task on the worker pool and returns one
// result per task, in task order. A failure scanning one file is
// reported only in that file's Result and never affects another's.
func (s *Scanner) Scan(tasks []Task, matcher Matcher, before, after byte) []Result {
	type job struct {
		idx  int
		task Task
	}

	jobs := make(chan job)
	out := make([]Result, len(tasks))

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for w := 0; w < s.workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.idx] = scanFile(j.task, matcher, before, after)
			}
		}()
	}

	for i, t := range tasks {
		jobs <- job{idx: i, task: t}
	}
	close(jobs)
	wg.Wait()

	return out
}

func scanFile(t Task, matcher Matcher, before, after byte) Result {
	data, err := mmapFile(t.Path)
	if err != nil {
		return Result{Path: t.Path, Err: err}
	}
	defer data.Close()

	if len(data.bytes) == 0 {
		return Result{Path: t.Path}
	}

	if isBinary(data.bytes) {
		return Result{Path: t.Path}
	}

	lines := splitLines(data.bytes)
	var matchedIdx []int
	for i, line := range lines {
		if matcher(line) {
			matchedIdx = append(matchedIdx, i)
		}
	}
	if len(matchedIdx) == 0 {
		return Result{Path: t.Path}
	}

	if before == 0 && after == 0 {
		out := make([]Match, 0, len(matchedIdx))
		for _, i := range matchedIdx {
			out = append(out, Match{Path: t.Path, Line: i + 1, Text: string(lines[i]), IsMatch: true})
		}
		return Result{Path: t.Path, Lines: out}
	}

	ranges := mergeRanges(buildRanges(matchedIdx, len(lines), int(before), int(after)))
	matchedSet := make(map[int]bool, len(matchedIdx))
	for _, i := range matchedIdx {
		matchedSet[i] = true
	}

	var out []Match
	for ri, rng := range ranges {
		if ri > 0 {
			out = append(out, Match{Path: t.Path, Text: "--", IsMatch: false, Line: -1})
		}
		for i := rng[0]; i <= rng[1]; i++ {
			out = append(out, Match{
				Path:    t.Path,
				Line:    i + 1,
				Text:    string(lines[i]),
				IsMatch: matchedSet[i],
			})
		}
	}
	return Result{Path: t.Path, Lines: out}
}

// isBinary reports whether any of the first 1024 bytes is a NUL.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	return bytes.IndexByte(data[:n], 0) != -1
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func buildRanges(matchedIdx []int, lineCount, before, after int) [][2]int {
	ranges := make([][2]int, len(matchedIdx))
	for i, idx := range matchedIdx {
		lo := idx - before
		if lo < 0 {
			lo = 0
		}
		hi := idx + after
		if hi > lineCount-1 {
			hi = lineCount - 1
		}
		ranges[i] = [2]int{lo, hi}
	}
	return ranges
}

// mergeRanges merges overlapping or adjacent (gap <= 1) ranges, per
// spec §4.7's context-assembly step.
func mergeRanges(ranges [][2]int) [][2]int {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })

	merged := [][2]int{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1]+2 {
			if r[1] > last[1] {
				last[1] = r[1]
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

type mapping struct {
	bytes []byte
}

func (m mapping) Close() error {
	if m.bytes == nil {
		return nil
	}
	return unix.Munmap(m.bytes)
}

// mmapFile memory-maps path read-only as a private mapping and advises
// sequential access, best-effort. Empty files return a zero-length
// mapping rather than an error.
func mmapFile(path string) (mapping, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return mapping{}, fmt.Errorf("open: %w", err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return mapping{}, fmt.Errorf("fstat: %w", err)
	}
	if st.Size == 0 {
		return mapping{}, nil
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return mapping{}, fmt.Errorf("mmap: %w", err)
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return mapping{bytes: data}, nil
}
