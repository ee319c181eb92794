// Package pipeline drives validate-then-bundle cycles over the tracked units,
// either once over a scanned tree or continuously from change batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/bundler"
	"github.com/starford/vbsb/internal/checksum"
	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/registry"
	"github.com/starford/vbsb/internal/report"
)

// Validator validates a single unit.
type Validator interface {
	Validate(ctx context.Context, u models.Unit) (models.ValidationResult, error)
}

// Lister enumerates the source files of the entry directory.
type Lister interface {
	List() ([]string, error)
}

// Observer is notified after every cycle.
type Observer interface {
	CycleFinished(ctx context.Context, res *models.CycleResult)
}

// BatchObserver is notified after a batch has been applied to the registry.
// Observers may implement it in addition to Observer.
type BatchObserver interface {
	BatchApplied(ctx context.Context, batch models.Batch)
}

// Config fixes the behaviour of a Pipeline.
type Config struct {
	// Watch selects watch mode; a watch pipeline cannot RunOnce and vice versa.
	Watch bool
	// Output is the bundle path.
	Output string
	// Extension is the source file extension.
	Extension string
	// Concurrency caps parallel validations; 0 means unbounded.
	Concurrency int
	// ShowDiff prints a diff of the bundle after every successful write.
	ShowDiff bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry sets the registry; New creates an empty one otherwise.
func WithRegistry(r *registry.Registry) Option {
	return func(p *Pipeline) { p.reg = r }
}

// WithLister sets the source used by RunOnce and Sync.
func WithLister(l Lister) Option {
	return func(p *Pipeline) { p.lister = l }
}

// WithBundler sets the bundler.
func WithBundler(b *bundler.Bundler) Option {
	return func(p *Pipeline) { p.bundler = b }
}

// WithReporter sets the reporter; the default writes to stdout.
func WithReporter(r *report.Reporter) Option {
	return func(p *Pipeline) { p.reporter = r }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline owns the registry and sequences cycles. Cycles never overlap.
type Pipeline struct {
	cfg       Config
	validator Validator
	reg       *registry.Registry
	lister    Lister
	bundler   *bundler.Bundler
	reporter  *report.Reporter
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	cycleMu sync.Mutex
	last    atomic.Pointer[models.CycleResult]
}

// New creates a Pipeline.
func New(cfg Config, v Validator, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		validator: v,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.Extension == "" {
		p.cfg.Extension = models.DefaultExtension
	}
	if p.reg == nil {
		p.reg = registry.New()
	}
	if p.bundler == nil {
		p.bundler = bundler.New(nil)
	}
	if p.reporter == nil {
		p.reporter = report.New(os.Stdout)
	}
	return p
}

// Registry returns the tracked units.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Units returns the tracked units in registry order.
func (p *Pipeline) Units() []models.Unit { return p.reg.Units() }

// Output returns the bundle path.
func (p *Pipeline) Output() string { return p.cfg.Output }

// LastCycle returns the most recent cycle result, or nil before the first.
func (p *Pipeline) LastCycle() *models.CycleResult { return p.last.Load() }

// RunOnce scans the entry directory, tracks every unit found and runs a
// single cycle. A failed write is returned as an error wrapping
// apperr.ErrOutputWrite.
func (p *Pipeline) RunOnce(ctx context.Context) (*models.CycleResult, error) {
	if p.cfg.Watch {
		return nil, errors.New("pipeline: RunOnce called on a watch pipeline")
	}
	if _, _, err := p.Sync(); err != nil {
		return nil, err
	}
	return p.Cycle(ctx)
}

// Sync brings the registry in line with the entry directory: new files are
// added in walk order and units whose file is gone are removed.
func (p *Pipeline) Sync() (added, removed int, err error) {
	if p.lister == nil {
		return 0, 0, errors.New("pipeline: no source configured")
	}
	paths, err := p.lister.List()
	if err != nil {
		return 0, 0, fmt.Errorf("pipeline: scan: %w", err)
	}

	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		seen[path] = struct{}{}
		if _, ok := p.reg.Get(path); ok {
			continue
		}
		p.reg.Add(models.NewUnitExt(path, p.cfg.Extension))
		added++
	}
	for _, u := range p.reg.Units() {
		if _, ok := seen[u.Path]; ok {
			continue
		}
		if err := p.reg.Remove(u); err != nil {
			return added, removed, fmt.Errorf("pipeline: sync: %w", err)
		}
		removed++
	}

	p.logger.Debug("pipeline: synced",
		slog.Int("added", added),
		slog.Int("removed", removed),
		slog.Int("units", p.reg.Len()))
	return added, removed, nil
}

// Watch applies each batch to the registry and runs a cycle after it, until
// ctx is cancelled or batches is closed. A failed write is reported and
// watching continues; a registry desync or a fatal validation error ends
// Watch with that error.
func (p *Pipeline) Watch(ctx context.Context, batches <-chan models.Batch) error {
	if !p.cfg.Watch {
		return errors.New("pipeline: Watch called on a one-shot pipeline")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := p.Apply(batch); err != nil {
				return err
			}
			p.notifyBatch(ctx, batch)

			if _, err := p.Cycle(ctx); err != nil {
				if errors.Is(err, apperr.ErrOutputWrite) {
					p.logger.Error("pipeline: write failed", slog.String("error", err.Error()))
					continue
				}
				return err
			}
		}
	}
}

// Apply mutates the registry for each event in order. Renamed events carry
// a content change only and leave the registry untouched.
func (p *Pipeline) Apply(batch models.Batch) error {
	for _, ev := range batch {
		switch ev.Kind {
		case models.Created:
			p.reg.Add(ev.Unit)
		case models.Deleted:
			if err := p.reg.Remove(ev.Unit); err != nil {
				return fmt.Errorf("pipeline: apply: %w", err)
			}
		case models.Renamed:
		}
	}
	return nil
}

// Cycle validates every tracked unit and writes the bundle when none failed.
func (p *Pipeline) Cycle(ctx context.Context) (*models.CycleResult, error) {
	return p.cycle(ctx, true)
}

// Check validates every tracked unit without writing the bundle.
func (p *Pipeline) Check(ctx context.Context) (*models.CycleResult, error) {
	return p.cycle(ctx, false)
}

// ValidateUnit validates a single file, tracked or not.
func (p *Pipeline) ValidateUnit(ctx context.Context, path string) (models.ValidationResult, error) {
	return p.validator.Validate(ctx, models.NewUnitExt(path, p.cfg.Extension))
}

func (p *Pipeline) cycle(ctx context.Context, write bool) (*models.CycleResult, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	started := p.now()
	units := p.reg.Units()
	res := &models.CycleResult{
		StartedAt: started,
		Units:     len(units),
		Output:    p.cfg.Output,
	}

	results, err := p.validateAll(ctx, units)
	if err != nil {
		return nil, err
	}
	res.Results = results

	for _, r := range results {
		if r.IsError {
			res.Failures++
			p.reporter.Failure(r)
		}
	}

	var writeErr error
	switch bundle := p.reg.NonTest(); {
	case res.Failures > 0:
		res.Skipped = models.SkipFailures
	case len(bundle) == 0:
		res.Skipped = models.SkipNoFiles
		p.reporter.NoFiles()
	case !write:
		res.Skipped = models.SkipDryRun
	default:
		writeErr = p.writeBundle(res, bundle)
	}

	res.Duration = p.now().Sub(started)
	p.last.Store(res)
	p.logger.Info("pipeline: cycle finished",
		slog.Int("units", res.Units),
		slog.Int("failures", res.Failures),
		slog.Bool("bundled", res.Bundled),
		slog.String("skipped", res.Skipped),
		slog.Duration("duration", res.Duration))
	for _, o := range p.observers {
		o.CycleFinished(ctx, res)
	}
	if writeErr != nil {
		return res, writeErr
	}
	return res, nil
}

// validateAll runs every validation to completion; results keep the order
// of units.
func (p *Pipeline) validateAll(ctx context.Context, units []models.Unit) ([]models.ValidationResult, error) {
	results := make([]models.ValidationResult, len(units))
	var g errgroup.Group
	if p.cfg.Concurrency > 0 {
		g.SetLimit(p.cfg.Concurrency)
	}
	for i, u := range units {
		g.Go(func() error {
			r, err := p.validator.Validate(ctx, u)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: validate: %w", err)
	}
	return results, nil
}

func (p *Pipeline) writeBundle(res *models.CycleResult, bundle []models.Unit) error {
	var prev []byte
	if p.cfg.ShowDiff {
		prev, _ = os.ReadFile(p.cfg.Output)
	}

	start := p.now()
	st, err := p.bundler.WriteOut(bundle, p.cfg.Output)
	elapsed := p.now().Sub(start)
	if err != nil {
		res.WriteErr = err.Error()
		p.reporter.WriteFailed(p.cfg.Output, err)
		return fmt.Errorf("pipeline: %w: %w", apperr.ErrOutputWrite, err)
	}

	res.Bundled = true
	res.Bytes = st.Bytes
	res.Checksum = st.Checksum
	p.reporter.Success(report.Summary{Output: p.cfg.Output, BuiltAt: p.now(), Duration: elapsed})

	if p.cfg.ShowDiff && prev != nil && checksum.Sum(prev) != st.Checksum {
		if next, err := os.ReadFile(p.cfg.Output); err == nil {
			p.reporter.Diff(bundler.Diff(filepath.Base(p.cfg.Output), prev, next))
		}
	}
	return nil
}

func (p *Pipeline) notifyBatch(ctx context.Context, batch models.Batch) {
	for _, o := range p.observers {
		if bo, ok := o.(BatchObserver); ok {
			bo.BatchApplied(ctx, batch)
		}
	}
}
