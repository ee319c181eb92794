package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
)

// Diagnostic is one parsed interpreter error line.
type Diagnostic struct {
	Path    string
	Line    int
	Column  int
	Kind    models.ErrorKind
	Message string
}

// DiagnosticError reports error-stream output that does not follow the
// interpreter's diagnostic format.
type DiagnosticError struct {
	Text string
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("validator: %v: %q", apperr.ErrMalformedDiagnostic, e.Text)
}

func (e *DiagnosticError) Unwrap() error { return apperr.ErrMalformedDiagnostic }

// DiagnosticParser extracts a Diagnostic from the error-stream text of one
// interpreter run. The format is
//
//	<path>(<line>, <column>) Microsoft <Name> <kind> error: <message>
type DiagnosticParser struct {
	re *regexp.Regexp
}

// NewDiagnosticParser builds a parser for files ending in ext reported by
// the interpreter called name (e.g. ".vbs" and "VBScript").
func NewDiagnosticParser(ext, name string) *DiagnosticParser {
	pattern := `(?im)^(.*` + regexp.QuoteMeta(ext) + `)\((\d+),\s+(\d+)\)\s+?Microsoft ` +
		regexp.QuoteMeta(name) + ` (\w+) error:\s?(.*)$`
	return &DiagnosticParser{re: regexp.MustCompile(pattern)}
}

// Parse returns the first diagnostic in text.
func (p *DiagnosticParser) Parse(text string) (Diagnostic, error) {
	m := p.re.FindStringSubmatch(text)
	if len(m) < 6 {
		return Diagnostic{}, &DiagnosticError{Text: text}
	}
	line, err := strconv.Atoi(m[2])
	if err != nil {
		return Diagnostic{}, &DiagnosticError{Text: text}
	}
	column, err := strconv.Atoi(m[3])
	if err != nil {
		return Diagnostic{}, &DiagnosticError{Text: text}
	}
	return Diagnostic{
		Path:    strings.TrimSpace(m[1]),
		Line:    line,
		Column:  column,
		Kind:    models.ParseErrorKind(m[4]),
		Message: strings.TrimSpace(m[5]),
	}, nil
}
