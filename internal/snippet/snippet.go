// Package snippet renders the source lines surrounding a diagnostic.
package snippet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// contextLines is the number of lines shown on each side of the target line.
const contextLines = 2

// Generate reads r line by line and renders the window of lines around
// line, with a caret under column. Reading stops at the end of the window.
// A target line that never occurs yields only the lines that were found.
// Lines have no length limit.
func Generate(r io.Reader, line, column int) (string, error) {
	first := line - contextLines
	last := line + contextLines
	width := len(strconv.Itoa(last))

	var sb strings.Builder
	br := bufio.NewReader(r)
	for n := 1; n <= last; n++ {
		if n < first {
			eof, err := skipLine(br)
			if err != nil {
				return "", fmt.Errorf("snippet: read: %w", err)
			}
			if eof {
				break
			}
			continue
		}

		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("snippet: read: %w", err)
		}
		if raw == "" {
			break
		}
		text := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if n == line {
			fmt.Fprintf(&sb, "> %*d | %s\n", width, n, text)
			fmt.Fprintf(&sb, "  %s |%s^\n", strings.Repeat(" ", width), strings.Repeat(" ", max(column, 0)))
		} else {
			fmt.Fprintf(&sb, "  %*d | %s\n", width, n, text)
		}
		if err != nil {
			break
		}
	}
	return sb.String(), nil
}

// skipLine discards one line without buffering it whole. eof is true when
// the input ended before a newline.
func skipLine(br *bufio.Reader) (eof bool, err error) {
	for {
		_, err := br.ReadSlice('\n')
		switch {
		case err == nil:
			return false, nil
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			return true, nil
		default:
			return false, err
		}
	}
}

// GenerateFile opens path and renders its snippet.
func GenerateFile(path string, line, column int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("snippet: open %s: %w", path, err)
	}
	defer f.Close()
	return Generate(f, line, column)
}

// IsTarget reports whether a rendered snippet line is the target line.
func IsTarget(rendered string) bool {
	return strings.HasPrefix(rendered, ">")
}

// IsPointer reports whether a rendered snippet line is the caret line.
func IsPointer(rendered string) bool {
	return strings.HasPrefix(rendered, "  ") && strings.HasSuffix(rendered, "^") &&
		strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rendered), "^")) == "|"
}
