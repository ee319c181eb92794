// Package report renders build outcomes for a terminal.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/snippet"
)

// TimeLayout is the format of the "Built at" line.
const TimeLayout = "2006-01-02 15:04:05"

var (
	colorError   = lipgloss.Color("#EF4444")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#6B7280")
)

// Summary describes a successful bundle.
type Summary struct {
	Output   string
	BuiltAt  time.Time
	Duration time.Duration
}

// Reporter writes human-readable build output. It is safe for concurrent use;
// each call writes its block without interleaving.
type Reporter struct {
	mu sync.Mutex
	w  io.Writer

	errStyle     lipgloss.Style
	targetStyle  lipgloss.Style
	successStyle lipgloss.Style
	warnStyle    lipgloss.Style
	mutedStyle   lipgloss.Style
	boldStyle    lipgloss.Style
}

// New creates a Reporter writing to w. Colors are only emitted when w is a
// terminal that supports them.
func New(w io.Writer) *Reporter {
	re := lipgloss.NewRenderer(w)
	return &Reporter{
		w:            w,
		errStyle:     re.NewStyle().Foreground(colorError),
		targetStyle:  re.NewStyle().Bold(true).Foreground(colorError),
		successStyle: re.NewStyle().Foreground(colorSuccess),
		warnStyle:    re.NewStyle().Foreground(colorWarning),
		mutedStyle:   re.NewStyle().Foreground(colorMuted),
		boldStyle:    re.NewStyle().Bold(true),
	}
}

// Failure prints one failed validation: the unit, the message with its
// position, and the source snippet.
func (r *Reporter) Failure(res models.ValidationResult) {
	var b strings.Builder
	fmt.Fprintln(&b, r.errStyle.Render("ERROR in "+res.RelativePath))
	fmt.Fprintln(&b, r.errStyle.Render(fmt.Sprintf("Bundle failed: %s (%d:%d)", res.Message, res.Line, res.Column)))
	fmt.Fprintln(&b)
	if res.Snippet != "" {
		for _, line := range strings.Split(strings.TrimRight(res.Snippet, "\n"), "\n") {
			switch {
			case snippet.IsTarget(line), snippet.IsPointer(line):
				fmt.Fprintln(&b, r.targetStyle.Render(line))
			default:
				fmt.Fprintln(&b, line)
			}
		}
		fmt.Fprintln(&b)
	}
	r.write(b.String())
}

// Success prints the bundle summary.
func (r *Reporter) Success(s Summary) {
	var b strings.Builder
	fmt.Fprintln(&b, r.successStyle.Render("Success"))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Output: %s\n", s.Output)
	fmt.Fprintf(&b, "Built at: %s\n", s.BuiltAt.Format(TimeLayout))
	fmt.Fprintf(&b, "Asset: %s\n", r.successStyle.Render(filepath.Base(s.Output)))
	fmt.Fprintf(&b, "Time: %sms\n", r.boldStyle.Render(fmt.Sprint(s.Duration.Milliseconds())))
	r.write(b.String())
}

// NoFiles warns that there was nothing to bundle.
func (r *Reporter) NoFiles() {
	r.write(r.warnStyle.Render("No files to bundle") + "\n")
}

// WriteFailed reports a bundle that could not be written.
func (r *Reporter) WriteFailed(output string, err error) {
	r.write(r.errStyle.Render(fmt.Sprintf("Write failed: %s: %v", output, err)) + "\n")
}

// Diff prints a unified diff of the bundle, colouring added and removed lines.
func (r *Reporter) Diff(d string) {
	if d == "" {
		return
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(d, "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"), strings.HasPrefix(text, "@@"):
			text = r.mutedStyle.Render(text)
		case strings.HasPrefix(text, "+"):
			text = r.successStyle.Render(text)
		case strings.HasPrefix(text, "-"):
			text = r.errStyle.Render(text)
		}
		fmt.Fprintln(&b, text)
	}
	r.write(b.String())
}

func (r *Reporter) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, s)
}
