package registry

import (
	"errors"
	"testing"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
)

func paths(units []models.Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Path
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	r := New()
	r.Add(models.NewUnit("/c.vbs"))
	r.Add(models.NewUnit("/a.vbs"))
	r.Add(models.NewUnit("/b.vbs"))

	got := paths(r.Units())
	want := []string{"/c.vbs", "/a.vbs", "/b.vbs"}
	if !equal(got, want) {
		t.Errorf("Units() = %v, want %v", got, want)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestAddDuplicateReplacesInPlace(t *testing.T) {
	r := New()
	r.Add(models.NewUnit("/a.vbs"))
	r.Add(models.NewUnit("/b.vbs"))
	r.Add(models.NewUnit("/a.vbs"))

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if got := paths(r.Units()); !equal(got, []string{"/a.vbs", "/b.vbs"}) {
		t.Errorf("Units() = %v", got)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Add(models.NewUnit("/a.vbs"))
	r.Add(models.NewUnit("/b.vbs"))
	r.Add(models.NewUnit("/c.vbs"))

	if err := r.Remove(models.NewUnit("/b.vbs")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := paths(r.Units()); !equal(got, []string{"/a.vbs", "/c.vbs"}) {
		t.Errorf("Units() = %v", got)
	}
	if _, ok := r.Get("/b.vbs"); ok {
		t.Error("removed unit still present")
	}
}

func TestRemoveUntrackedIsNotFound(t *testing.T) {
	r := New()
	r.Add(models.NewUnit("/a.vbs"))

	err := r.Remove(models.NewUnit("/missing.vbs"))
	if err == nil {
		t.Fatal("expected error removing untracked unit")
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Path != "/missing.vbs" {
		t.Errorf("expected *NotFoundError for /missing.vbs, got %T %v", err, err)
	}
	if r.Len() != 1 {
		t.Errorf("registry changed by failed remove: len %d", r.Len())
	}
}

func TestRemoveTwiceFails(t *testing.T) {
	r := New()
	u := models.NewUnit("/a.vbs")
	r.Add(u)
	if err := r.Remove(u); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := r.Remove(u); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestNonTest(t *testing.T) {
	r := New()
	r.Add(models.NewUnit("/a.vbs"))
	r.Add(models.NewUnit("/a.spec.vbs"))
	r.Add(models.NewUnit("/^h.vbs"))
	r.Add(models.NewUnit("/b.TEST.vbs"))

	if got := paths(r.NonTest()); !equal(got, []string{"/a.vbs", "/^h.vbs"}) {
		t.Errorf("NonTest() = %v", got)
	}
}
