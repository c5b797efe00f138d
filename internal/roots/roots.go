// Package roots resolves the daemon's configured directory arguments
// into the canonical, deduplicated, ordered root list that the rest of
// the daemon treats as immutable for its lifetime.
package roots

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ffind/ffind/internal/errors"
)

// Resolve validates, canonicalizes, and deduplicates raw, in order,
// warning (via warn) on duplicates and overlaps rather than rejecting
// them. Each returned root is an absolute path with a trailing slash.
//
// warn may be nil, in which case warnings are discarded.
func Resolve(raw []string, warn func(string)) ([]string, error) {
	if warn == nil {
		warn = func(string) {}
	}

	canonical := make([]string, 0, len(raw))
	for _, root := range raw {
		if !utf8.ValidString(root) {
			return nil, errors.Configf("root path is not valid UTF-8: %q", root)
		}

		info, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeConfig, "root path does not exist: %s", root)
		}
		if !info.IsDir() {
			return nil, errors.Configf("root path is not a directory: %s", root)
		}

		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeConfig, "cannot canonicalize root path: %s", root)
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeConfig, "cannot canonicalize root path: %s", root)
		}
		canonical = append(canonical, withTrailingSlash(abs))
	}

	deduped := deduplicate(canonical, warn)
	if len(deduped) == 0 {
		return nil, errors.Config("no valid root directories after deduplication")
	}

	warnOverlaps(deduped, warn)

	return deduped, nil
}

func withTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func deduplicate(paths []string, warn func(string)) []string {
	seen := make(map[string]bool, len(paths))
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			warn("duplicate root ignored: " + p)
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}

func warnOverlaps(roots []string, warn func(string)) {
	for i := range roots {
		for j := i + 1; j < len(roots); j++ {
			if strings.HasPrefix(roots[i], roots[j]) || strings.HasPrefix(roots[j], roots[i]) {
				warn("overlapping roots: " + roots[i] + " and " + roots[j])
			}
		}
	}
}

// IndexOf returns the index of the longest root in roots that is a
// prefix of path, per the data model's "longest matching root wins"
// rule, or -1 if no root matches.
func IndexOf(roots []string, path string) int {
	best := -1
	bestLen := -1
	for i, r := range roots {
		if strings.HasPrefix(path, r) && len(r) > bestLen {
			best = i
			bestLen = len(r)
		}
	}
	return best
}
