package bundler

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/vbsb/internal/checksum"
	"github.com/starford/vbsb/internal/models"
)

func writeUnits(t *testing.T, dir string, files [][2]string) []models.Unit {
	t.Helper()
	units := make([]models.Unit, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f[0])
		if err := os.WriteFile(p, []byte(f[1]), 0o644); err != nil {
			t.Fatal(err)
		}
		units = append(units, models.NewUnit(p))
	}
	return units
}

func TestWriteOut_CategoryOrder(t *testing.T) {
	dir := t.TempDir()
	units := writeUnits(t, dir, [][2]string{
		{"a.vbs", "A"},
		{"$f1.vbs", "F1"},
		{"^h1.vbs", "H1"},
		{"b.vbs", "B"},
		{"^h2.vbs", "H2"},
		{"$f2.vbs", "F2"},
	})
	out := filepath.Join(dir, "out", "bundle.vbs")
	_ = os.MkdirAll(filepath.Dir(out), 0o755)

	st, err := New(nil).WriteOut(units, out)
	if err != nil {
		t.Fatalf("WriteOut: %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "H1H2ABF1F2" {
		t.Errorf("bundle = %q, want %q", got, "H1H2ABF1F2")
	}
	if st.Units != 6 || st.Bytes != int64(len(got)) {
		t.Errorf("stats = %+v", st)
	}
	if st.Checksum != checksum.Sum(got) {
		t.Errorf("checksum = %s", st.Checksum)
	}
}

func TestWriteOut_NoMarkersKeepsDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	units := writeUnits(t, dir, [][2]string{
		{"c.vbs", "Dim c\r\n"},
		{"a.vbs", "Dim a\n"},
		{"b.vbs", "\xef\xbb\xbfDim b"},
	})
	out := filepath.Join(dir, "bundle.out")
	if _, err := New(nil).WriteOut(units, out); err != nil {
		t.Fatalf("WriteOut: %v", err)
	}
	got, _ := os.ReadFile(out)
	want := "Dim c\r\nDim a\n\xef\xbb\xbfDim b"
	if !bytes.Equal(got, []byte(want)) {
		t.Errorf("bundle = %q, want %q", got, want)
	}
}

func TestWriteOut_Truncates(t *testing.T) {
	dir := t.TempDir()
	units := writeUnits(t, dir, [][2]string{{"a.vbs", "A"}})
	out := filepath.Join(dir, "bundle.out")
	_ = os.WriteFile(out, []byte(strings.Repeat("stale", 100)), 0o644)

	if _, err := New(nil).WriteOut(units, out); err != nil {
		t.Fatalf("WriteOut: %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "A" {
		t.Errorf("bundle = %q, want %q", got, "A")
	}
}

func TestWriteOut_OutputUnwritable(t *testing.T) {
	dir := t.TempDir()
	units := writeUnits(t, dir, [][2]string{{"a.vbs", "A"}})
	_, err := New(nil).WriteOut(units, filepath.Join(dir, "missing-dir", "bundle.vbs"))
	if err == nil {
		t.Fatal("expected error for unwritable output path")
	}
}

type failingOpener struct{ fail string }

func (f failingOpener) Open(path string) (io.ReadCloser, error) {
	if filepath.Base(path) == f.fail {
		return nil, errors.New("gone")
	}
	return os.Open(path)
}

func TestWriteOut_PartialWriteNotRolledBack(t *testing.T) {
	dir := t.TempDir()
	units := writeUnits(t, dir, [][2]string{{"a.vbs", "A"}, {"b.vbs", "B"}})
	out := filepath.Join(dir, "bundle.out")

	st, err := New(failingOpener{fail: "b.vbs"}).WriteOut(units, out)
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := os.ReadFile(out)
	if string(got) != "A" {
		t.Errorf("partial bundle = %q, want %q", got, "A")
	}
	if st.Units != 1 {
		t.Errorf("units written = %d, want 1", st.Units)
	}
}

func TestOrder_HeaderAndFooterMarker(t *testing.T) {
	units := []models.Unit{
		{Path: "x", Classification: models.Classification{IsFooter: true}},
		{Path: "y", Classification: models.Classification{IsHeader: true, IsFooter: true}},
		{Path: "z"},
	}
	got := Order(units)
	if got[0].Path != "y" || got[1].Path != "z" || got[2].Path != "x" {
		t.Errorf("Order = %v", got)
	}
}

func TestDiff(t *testing.T) {
	if d := Diff("bundle.vbs", []byte("a\nb\n"), []byte("a\nb\n")); d != "" {
		t.Errorf("identical bundles should have empty diff, got %q", d)
	}
	d := Diff("bundle.vbs", []byte("a\nb\n"), []byte("a\nc\n"))
	for _, want := range []string{"--- a/bundle.vbs", "+++ b/bundle.vbs", "-b\n", "+c\n"} {
		if !strings.Contains(d, want) {
			t.Errorf("diff missing %q:\n%s", want, d)
		}
	}
}
