package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var _ Provider = (*FS)(nil)

// FS implements Provider backed by the local file system.
type FS struct {
	root    string // absolute path to the entry directory
	matcher *Matcher
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, matcher *Matcher) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if matcher == nil {
		if matcher, err = NewMatcher("", nil); err != nil {
			return nil, err
		}
	}
	return &FS{root: abs, matcher: matcher}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// Matcher returns the source file matcher.
func (f *FS) Matcher() *Matcher { return f.matcher }

// Resolve turns path, absolute or relative to the root, into an absolute
// path under the root and rejects any result that escapes it.
func (f *FS) Resolve(path string) (string, error) {
	if path == "" {
		return f.root, nil
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.root, filepath.Clean(path))
	}
	abs = filepath.Clean(abs)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", path)
	}
	return abs, nil
}

// List walks the root in lexical order and returns every source file.
func (f *FS) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if f.matcher.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if f.matcher.Match(p, rel) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Open opens a source file for streaming.
func (f *FS) Open(path string) (io.ReadCloser, error) {
	abs, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return file, nil
}
