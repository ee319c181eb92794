package bundler

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of context lines in bundle diffs.
const DiffContext = 2

// Diff returns a unified diff between two versions of a bundle, or "" when
// they are identical.
func Diff(name string, prev, next []byte) string {
	d := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(prev)),
		B:        splitLinesKeepNL(string(next)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  DiffContext,
	}
	s, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return ""
	}
	return s
}

// splitLinesKeepNL splits s into lines, keeping each trailing newline so
// difflib reproduces the content exactly.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
