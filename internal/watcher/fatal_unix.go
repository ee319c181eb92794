//go:build !windows

package watcher

import (
	"errors"
	"syscall"
)

// isFatal reports fsnotify errors after which the watch cannot recover:
// inotify watch limit (ENOSPC) and descriptor exhaustion (EMFILE, ENFILE).
func isFatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
