//go:build !windows

package watcher

import (
	"errors"
	"syscall"
	"testing"
	"time"
)

func TestIsFatal(t *testing.T) {
	for _, err := range []error{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE} {
		if !isFatal(err) {
			t.Errorf("isFatal(%v) = false", err)
		}
	}
	if isFatal(errors.New("queue overflow")) {
		t.Error("generic error classified as fatal")
	}
}

func TestFatalErrorStopsRun(t *testing.T) {
	a, src := fakeAggregator(t, t.TempDir(), 40*time.Millisecond)
	_, done := start(t, a)

	src.errs <- errors.New("transient")
	src.errs <- syscall.EMFILE

	select {
	case err := <-done:
		if !errors.Is(err, syscall.EMFILE) {
			t.Errorf("Run err = %v, want EMFILE", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on fatal error")
	}
}

