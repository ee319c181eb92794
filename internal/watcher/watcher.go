// Package watcher turns raw file-system notifications into debounced batches
// of change events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/storage"
)

// DefaultDebounce is the quiet window after the last raw event before the
// buffered events are emitted as one batch.
const DefaultDebounce = 250 * time.Millisecond

// Config holds the parameters for an Aggregator.
type Config struct {
	// Root is the directory watched recursively.
	Root string
	// Extension is the source file extension, e.g. ".vbs".
	Extension string
	// Matcher selects source files; nil builds one from Extension.
	Matcher *storage.Matcher
	// Debounce is the quiet window; zero or negative means DefaultDebounce.
	Debounce time.Duration
}

// Aggregator watches a source tree and delivers change batches on a channel.
// Run must be called exactly once.
type Aggregator struct {
	root     string
	ext      string
	matcher  *storage.Matcher
	debounce time.Duration
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	events <-chan fsnotify.Event
	errs   <-chan error

	out     chan models.Batch
	started atomic.Bool

	// known holds the paths announced as Created and not yet Deleted. Only
	// the Run goroutine touches it.
	known map[string]struct{}
}

// New creates an Aggregator and registers every non-ignored directory under
// cfg.Root with fsnotify.
func New(cfg Config, logger *slog.Logger) (*Aggregator, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}
	a, err := newAggregator(cfg, logger, fsw.Events, fsw.Errors)
	if err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	a.fsw = fsw
	if err := a.addDirsRecursive(a.root); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return a, nil
}

func newAggregator(cfg Config, logger *slog.Logger, events <-chan fsnotify.Event, errs <-chan error) (*Aggregator, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve root: %w", err)
	}
	ext := cfg.Extension
	if ext == "" {
		ext = models.DefaultExtension
	}
	matcher := cfg.Matcher
	if matcher == nil {
		if matcher, err = storage.NewMatcher(ext, nil); err != nil {
			return nil, err
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		root:     root,
		ext:      ext,
		matcher:  matcher,
		debounce: debounce,
		logger:   logger,
		events:   events,
		errs:     errs,
		out:      make(chan models.Batch),
		known:    make(map[string]struct{}),
	}, nil
}

// Batches returns the channel batches are delivered on. It is closed when
// Run returns.
func (a *Aggregator) Batches() <-chan models.Batch {
	return a.out
}

// Run announces the files already present as Created events, then processes
// file-system events until ctx is cancelled. Events are buffered until no
// new event arrives for the debounce window; each window becomes one batch.
// Batches are queued rather than merged or dropped while the consumer is busy.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("watcher: Run called more than once")
	}
	defer close(a.out)
	if a.fsw != nil {
		defer a.fsw.Close()
	}

	var (
		pending models.Batch
		ready   []models.Batch
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	push := func(evs ...models.ChangeEvent) {
		if len(evs) == 0 {
			return
		}
		a.note(evs)
		pending = append(pending, evs...)
		if timer == nil {
			timer = time.NewTimer(a.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(a.debounce)
		}
		timerC = timer.C
	}

	push(a.scan(a.root)...)

	a.logger.Info("watcher: started", slog.String("root", a.root))

	for {
		var sendC chan<- models.Batch
		var next models.Batch
		if len(ready) > 0 {
			sendC = a.out
			next = ready[0]
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			a.logger.Info("watcher: stopped")
			return nil

		case sendC <- next:
			ready = ready[1:]

		case <-timerC:
			timerC = nil
			if len(pending) > 0 {
				ready = append(ready, pending)
				a.logger.Debug("watcher: batch ready", slog.Int("events", len(pending)))
				pending = nil
			}

		case ev, ok := <-a.events:
			if !ok {
				return errors.New("watcher: event channel closed unexpectedly")
			}
			push(a.translate(ev)...)

		case err, ok := <-a.errs:
			if !ok {
				return errors.New("watcher: error channel closed unexpectedly")
			}
			if isFatal(err) {
				return fmt.Errorf("watcher: fatal fsnotify error: %w", err)
			}
			a.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// translate maps one raw notification onto semantic events.
func (a *Aggregator) translate(ev fsnotify.Event) []models.ChangeEvent {
	absPath := ev.Name

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(absPath); err == nil && info.IsDir() {
			rel, relErr := filepath.Rel(a.root, absPath)
			if relErr != nil || a.matcher.Ignored(rel) {
				return nil
			}
			if err := a.addDirsRecursive(absPath); err != nil {
				a.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", err.Error()))
			} else {
				a.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
			}
			return a.scan(absPath)
		}
	}

	if !a.isSource(absPath) {
		if ev.Has(fsnotify.Rename) && a.fsw != nil {
			_ = a.fsw.Remove(absPath) // a moved dir stays watched under its old name
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			return a.sweep(absPath)
		}
		return nil
	}
	unit := models.NewUnitExt(absPath, a.ext)

	switch {
	case ev.Has(fsnotify.Create):
		return []models.ChangeEvent{{Kind: models.Created, Unit: unit}}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// Rename is reported on the old path; the new path arrives as Create.
		return []models.ChangeEvent{{Kind: models.Deleted, Unit: unit}}
	case ev.Has(fsnotify.Write):
		return []models.ChangeEvent{{Kind: models.Renamed, Unit: unit}}
	}
	return nil
}

// note keeps the set of announced paths in step with evs.
func (a *Aggregator) note(evs []models.ChangeEvent) {
	for _, ev := range evs {
		switch ev.Kind {
		case models.Created:
			a.known[ev.Unit.Path] = struct{}{}
		case models.Deleted:
			delete(a.known, ev.Unit.Path)
		}
	}
}

// sweep returns a Deleted event for every announced unit under dir. A moved
// or removed directory is reported once, on its own path, so its files
// would otherwise stay tracked.
func (a *Aggregator) sweep(dir string) []models.ChangeEvent {
	prefix := dir + string(filepath.Separator)
	var paths []string
	for p := range a.known {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	slices.Sort(paths)
	out := make([]models.ChangeEvent, 0, len(paths))
	for _, p := range paths {
		out = append(out, models.ChangeEvent{Kind: models.Deleted, Unit: models.NewUnitExt(p, a.ext)})
	}
	a.logger.Debug("watcher: directory gone", slog.String("path", dir), slog.Int("units", len(out)))
	return out
}

func (a *Aggregator) isSource(absPath string) bool {
	rel, err := filepath.Rel(a.root, absPath)
	if err != nil {
		return false
	}
	return a.matcher.Match(absPath, rel)
}

// scan returns a Created event for every source file under dir.
func (a *Aggregator) scan(dir string) []models.ChangeEvent {
	var out []models.ChangeEvent
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(a.root, p)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if a.matcher.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if a.matcher.Match(p, rel) {
			out = append(out, models.ChangeEvent{Kind: models.Created, Unit: models.NewUnitExt(p, a.ext)})
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its non-ignored subdirectories to the watcher.
func (a *Aggregator) addDirsRecursive(root string) error {
	if a.fsw == nil {
		return nil
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(a.root, p)
		if relErr == nil && a.matcher.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := a.fsw.Add(p); err != nil {
			return fmt.Errorf("watcher: add %s: %w", p, err)
		}
		return nil
	})
}
