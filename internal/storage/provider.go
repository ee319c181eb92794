// Package storage provides access to the source tree being bundled.
package storage

import "io"

// Provider is the interface for source tree operations.
type Provider interface {
	// Root returns the absolute path of the source tree.
	Root() string
	// List returns the absolute path of every source file under the root,
	// in lexical walk order.
	List() ([]string, error)
	// Open opens a source file (absolute, or relative to the root) for reading.
	Open(path string) (io.ReadCloser, error)
	// Resolve returns the absolute form of a path inside the root, or an
	// error when the path escapes it.
	Resolve(path string) (string, error)
}
