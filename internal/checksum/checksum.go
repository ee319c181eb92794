// Package checksum computes hex-encoded SHA-256 digests of bundles.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Writer is an io.Writer that digests everything written through it.
type Writer struct {
	h hash.Hash
}

// NewWriter returns an empty digest writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the hex digest of the bytes written so far.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}
