package migrate

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// globMeta are the characters that make an exclude pattern a glob.
const globMeta = "*?[{"

// ExcludeFilter decides which source paths are skipped before transfer.
type ExcludeFilter struct {
	patterns []string
}

// NewExcludeFilter builds a filter from exclude patterns. Blank patterns
// are ignored.
func NewExcludeFilter(patterns []string) *ExcludeFilter {
	f := &ExcludeFilter{}

	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			f.patterns = append(f.patterns, p)
		}
	}

	return f
}

// Excluded reports whether p contains any pattern as a substring, or, for
// glob patterns, whether the pattern matches the base name or the whole
// normalized path.
func (f *ExcludeFilter) Excluded(p string) bool {
	if f == nil {
		return false
	}

	normalized := NormalizePath(p)
	base := path.Base("/" + normalized)

	for _, pattern := range f.patterns {
		if strings.Contains(p, pattern) {
			return true
		}

		if !strings.ContainsAny(pattern, globMeta) {
			continue
		}

		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}

		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), normalized); ok {
			return true
		}
	}

	return false
}

// Apply returns the entries that are not excluded, preserving order, and
// the number dropped.
func (f *ExcludeFilter) Apply(entries []SourceEntry) ([]SourceEntry, int) {
	kept := make([]SourceEntry, 0, len(entries))

	for i := range entries {
		if f.Excluded(entries[i].Path) {
			continue
		}

		kept = append(kept, entries[i])
	}

	return kept, len(entries) - len(kept)
}
