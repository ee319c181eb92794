package internal

import (
	"io"

	"github.com/starford/vbsb/internal/validator"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	stdout io.Writer
	stderr io.Writer
	runner validator.Runner
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStdout sets where build reports are written.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithStderr sets where logs are written.
func WithStderr(w io.Writer) Option {
	return func(a *application) {
		a.stderr = w
	}
}

// WithRunner replaces the interpreter process used for validation.
func WithRunner(r validator.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}
