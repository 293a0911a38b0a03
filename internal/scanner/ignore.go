package scanner

import (
	"path"
	"path/filepath"
	"strings"
)

// Matcher decides whether a path is ignored. A pattern matches when it
// matches any single path segment (e.g. ".git", "*.swp") or, if it
// contains a slash, the slash-separated path relative to the root.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a matcher for the given patterns.
func NewMatcher(patterns []string) *Matcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Matcher{patterns: cleaned}
}

// Match reports whether rel, a path relative to the watched root, is
// ignored.
func (m *Matcher) Match(rel string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, p := range m.patterns {
		if strings.Contains(p, "/") {
			if ok, _ := path.Match(p, rel); ok {
				return true
			}
			if strings.HasPrefix(rel, p+"/") {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if ok, _ := path.Match(p, seg); ok {
				return true
			}
		}
	}
	return false
}

// Hidden reports whether a file name is a dotfile or an editor artifact.
func Hidden(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".tmp") ||
		(strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#"))
}
