// Package testutil provides shared test helpers for setting up unit trees and databases.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/validator"
)

// TestDB creates a temporary history database that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	db, err := history.Open(filepath.Join(t.TempDir(), "vbsb-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestTree writes files, keyed by slash-separated relative path, into a
// temporary directory and returns its path.
func TestTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Interpreter returns a runner that prints diagnostics[filepath.Base(path)]
// on stderr, and nothing for units not in the map.
func Interpreter(diagnostics map[string]string) validator.Runner {
	return validator.RunnerFunc(func(_ context.Context, path string) (string, error) {
		return diagnostics[filepath.Base(path)], nil
	})
}
