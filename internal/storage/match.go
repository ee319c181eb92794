package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/vbsb/internal/models"
)

// DefaultIgnores lists the patterns that are never treated as source files:
// dotfiles and anything inside a dot-directory.
var DefaultIgnores = []string{
	"**/.*",
	"**/.*/**",
}

// Matcher decides which paths under a root are source files.
type Matcher struct {
	pattern string
	ignores []string
	exclude map[string]struct{}
}

// NewMatcher builds a Matcher for files ending in ext. ignores are merged
// with DefaultIgnores; exclude lists absolute paths that never match.
func NewMatcher(ext string, ignores []string, exclude ...string) (*Matcher, error) {
	if ext == "" {
		ext = models.DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		return nil, fmt.Errorf("storage: extension must start with '.': %q", ext)
	}
	m := &Matcher{
		pattern: "**/*" + ext,
		ignores: append(append([]string{}, DefaultIgnores...), ignores...),
		exclude: make(map[string]struct{}, len(exclude)),
	}
	for _, pat := range m.ignores {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("storage: invalid ignore pattern %q", pat)
		}
	}
	for _, p := range exclude {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve exclude %q: %w", p, err)
		}
		m.exclude[abs] = struct{}{}
	}
	return m, nil
}

// Ignored reports whether rel (relative to the root) matches an ignore
// pattern. The root itself is never ignored.
func (m *Matcher) Ignored(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	normalized := filepath.ToSlash(rel)
	for _, pat := range m.ignores {
		if ok, err := doublestar.Match(pat, normalized); err == nil && ok {
			return true
		}
	}
	return false
}

// Match reports whether the file at abs (with rel relative to the root) is
// a source file.
func (m *Matcher) Match(abs, rel string) bool {
	if _, ok := m.exclude[abs]; ok {
		return false
	}
	if m.Ignored(rel) {
		return false
	}
	ok, err := doublestar.Match(m.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}
