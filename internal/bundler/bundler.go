// Package bundler writes the ordered concatenation of source units.
package bundler

import (
	"fmt"
	"io"
	"os"

	"github.com/starford/vbsb/internal/checksum"
	"github.com/starford/vbsb/internal/models"
)

// Opener opens a unit's file for reading.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

type osOpener struct{}

func (osOpener) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

// Stats describes a written bundle.
type Stats struct {
	Units    int
	Bytes    int64
	Checksum string // hex SHA-256 of the written bytes
}

// Bundler writes bundles.
type Bundler struct {
	opener Opener
}

// New creates a Bundler reading units through opener. A nil opener reads
// straight from the file system.
func New(opener Opener) *Bundler {
	if opener == nil {
		opener = osOpener{}
	}
	return &Bundler{opener: opener}
}

// Order partitions units into headers, standards and footers, keeping the
// relative order inside each group. A unit marked as both header and footer
// is a header.
func Order(units []models.Unit) []models.Unit {
	var headers, standards, footers []models.Unit
	for _, u := range units {
		switch {
		case u.IsHeader:
			headers = append(headers, u)
		case u.IsFooter:
			footers = append(footers, u)
		default:
			standards = append(standards, u)
		}
	}
	out := make([]models.Unit, 0, len(units))
	out = append(out, headers...)
	out = append(out, standards...)
	return append(out, footers...)
}

// WriteOut truncates outputPath and writes the raw bytes of units in bundle
// order, without separators. Test units are written if passed; callers
// filter them. A failed write is not rolled back.
func (b *Bundler) WriteOut(units []models.Unit, outputPath string) (st Stats, err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return st, fmt.Errorf("bundler: open output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("bundler: close output: %w", cerr)
		}
	}()

	h := checksum.NewWriter()
	w := io.MultiWriter(out, h)
	for _, u := range Order(units) {
		n, cerr := b.copyUnit(w, u.Path)
		st.Bytes += n
		if cerr != nil {
			return st, cerr
		}
		st.Units++
	}
	st.Checksum = h.Sum()
	return st, nil
}

func (b *Bundler) copyUnit(w io.Writer, path string) (int64, error) {
	in, err := b.opener.Open(path)
	if err != nil {
		return 0, fmt.Errorf("bundler: open %s: %w", path, err)
	}
	defer in.Close()
	n, err := io.Copy(w, in)
	if err != nil {
		return n, fmt.Errorf("bundler: write %s: %w", path, err)
	}
	return n, nil
}
