package watcher

import (
	"path/filepath"
)

// defaultIgnorePatterns are always ignored regardless of user configuration:
// hidden files, editor swap files and partial downloads never hold a
// finished export.
var defaultIgnorePatterns = []string{
	".*",
	"*.swp",
	"*.swo",
	"*~",
	"*.tmp",
	"*.tmp.*",
	"*.part",
	"*.crdownload",
}

// Filter checks source names against a set of glob ignore patterns.
type Filter struct {
	patterns []string
}

// NewFilter creates a Filter with the default patterns merged with any
// additional user-supplied patterns. Duplicates are removed.
func NewFilter(extra []string) *Filter {
	seen := make(map[string]struct{}, len(defaultIgnorePatterns)+len(extra))
	var merged []string
	for _, group := range [][]string{defaultIgnorePatterns, extra} {
		for _, p := range group {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				merged = append(merged, p)
			}
		}
	}
	return &Filter{patterns: merged}
}

// ShouldIgnore returns true if the base name of name matches any pattern.
// Only direct children of the input directory are watched, so the base
// name is all that matters.
func (f *Filter) ShouldIgnore(name string) bool {
	base := filepath.Base(name)
	for _, pattern := range f.patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Patterns returns the merged pattern list.
func (f *Filter) Patterns() []string {
	return f.patterns
}
