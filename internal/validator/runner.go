package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/starford/vbsb/internal/apperr"
)

// Runner executes one unit and returns whatever the interpreter wrote to
// its error stream.
type Runner interface {
	Run(ctx context.Context, path string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, path string) (string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, path string) (string, error) { return f(ctx, path) }

// ExecRunner runs units through an external interpreter process.
//
// The interpreter exits zero whether or not the script failed, so the exit
// status is ignored and only stderr is inspected. A spawned process always
// runs to completion.
type ExecRunner struct {
	// Command is the interpreter binary, e.g. "cscript.exe".
	Command string
	// Args are placed before the unit path, e.g. "//NoLogo".
	Args []string
	// Dir is the working directory of the process; empty means inherit.
	Dir string
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(command string, args ...string) *ExecRunner {
	return &ExecRunner{Command: command, Args: args}
}

// Run spawns the interpreter against path and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	args := append(append([]string{}, r.Args...), path)
	cmd := exec.Command(r.Command, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = io.Discard

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("validator: start %s: %w: %w", r.Command, apperr.ErrInterpreter, err)
	}

	// Completion is the process exit, not stderr closing.
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("validator: wait %s: %w: %w", r.Command, apperr.ErrInterpreter, err)
		}
	}

	return stderr.String(), nil
}
