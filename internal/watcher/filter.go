package watcher

import (
	"path/filepath"
	"strings"
)

// FileFilter determines if a path, relative to the collection root and in
// slash form, should be watched.
type FileFilter func(rel string) bool

// NoNodeModulesFilter skips node_modules at any depth.
func NoNodeModulesFilter(rel string) bool {
	return !hasSegment(rel, "node_modules")
}

// NoGitFilter skips .git at any depth.
func NoGitFilter(rel string) bool {
	return !hasSegment(rel, ".git")
}

// PrefixFilter skips paths starting with any of patterns.
func PrefixFilter(patterns []string) FileFilter {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "./")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return func(rel string) bool {
		for _, p := range cleaned {
			if strings.HasPrefix(rel, p) {
				return false
			}
		}
		return true
	}
}

func hasSegment(rel, name string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == name {
			return true
		}
	}
	return false
}

// Filter decides which paths below a root are ignored.
type Filter struct {
	root    string
	filters []FileFilter
}

// NewFilter creates the filter for a collection root. node_modules and .git
// are always ignored in addition to the given prefixes.
func NewFilter(root string, ignore []string) *Filter {
	return &Filter{
		root:    filepath.Clean(root),
		filters: []FileFilter{NoNodeModulesFilter, NoGitFilter, PrefixFilter(ignore)},
	}
}

// Ignored reports whether path is outside the root or rejected by a filter.
func (f *Filter) Ignored(path string) bool {
	rel, err := filepath.Rel(f.root, filepath.Clean(path))
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return true
	}
	for _, keep := range f.filters {
		if !keep(rel) {
			return true
		}
	}
	return false
}
