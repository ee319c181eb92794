// Package validator checks source units by running them through an external
// interpreter and translating its diagnostics into structured results.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/snippet"
)

// Option configures a Validator.
type Option func(*Validator)

// WithParser sets the diagnostic parser.
func WithParser(p *DiagnosticParser) Option {
	return func(v *Validator) { v.parser = p }
}

// WithWorkDir sets the directory relative paths are computed against.
func WithWorkDir(dir string) Option {
	return func(v *Validator) { v.workDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// Validator produces a fresh ValidationResult for every call; nothing is cached.
type Validator struct {
	runner  Runner
	parser  *DiagnosticParser
	workDir string
	logger  *slog.Logger
}

// New creates a Validator that executes units with runner.
func New(runner Runner, opts ...Option) *Validator {
	v := &Validator{
		runner: runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.parser == nil {
		v.parser = NewDiagnosticParser(models.DefaultExtension, "VBScript")
	}
	if v.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			v.workDir = wd
		}
	}
	return v
}

// Validate runs u and returns its result. A returned error is fatal: the
// interpreter could not be run, its output could not be parsed, or the
// snippet could not be read. A unit that fails validation is reported
// through the result, not the error.
func (v *Validator) Validate(ctx context.Context, u models.Unit) (models.ValidationResult, error) {
	res := models.ValidationResult{
		Path:         u.Path,
		RelativePath: v.relative(u.Path),
	}

	text, err := v.runner.Run(ctx, u.Path)
	if err != nil {
		return res, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		v.logger.Debug("validator: ok", slog.String("path", res.RelativePath))
		return res, nil
	}

	d, err := v.parser.Parse(text)
	if err != nil {
		return res, fmt.Errorf("validator: %s: %w", res.RelativePath, err)
	}

	snip, err := snippet.GenerateFile(u.Path, d.Line, d.Column)
	if err != nil {
		return res, fmt.Errorf("validator: %s: %w", res.RelativePath, err)
	}

	res.IsError = true
	res.Kind = d.Kind
	res.Line = d.Line
	res.Column = d.Column
	res.Message = d.Message
	res.Snippet = snip

	v.logger.Debug("validator: failed",
		slog.String("path", res.RelativePath),
		slog.String("kind", d.Kind.String()),
		slog.Int("line", d.Line),
		slog.Int("column", d.Column))
	return res, nil
}

func (v *Validator) relative(path string) string {
	if v.workDir == "" {
		return path
	}
	rel, err := filepath.Rel(v.workDir, path)
	if err != nil {
		return path
	}
	return rel
}
