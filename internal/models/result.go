package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ErrorKind classifies an interpreter diagnostic.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCompilation
	KindRuntime
)

// ParseErrorKind maps the interpreter's error word to an ErrorKind.
func ParseErrorKind(word string) ErrorKind {
	switch strings.ToLower(word) {
	case "compilation":
		return KindCompilation
	case "runtime":
		return KindRuntime
	default:
		return KindUnknown
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindCompilation:
		return "compilation"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	*k = ParseErrorKind(string(b))
	return nil
}

// ValidationResult is the outcome of validating one unit. The diagnostic
// fields are zero when IsError is false.
type ValidationResult struct {
	Path         string    `json:"path"`
	RelativePath string    `json:"relative_path"`
	IsError      bool      `json:"is_error"`
	Kind         ErrorKind `json:"kind"`
	Line         int       `json:"line,omitempty"`
	Column       int       `json:"column,omitempty"`
	Message      string    `json:"message,omitempty"`
	Snippet      string    `json:"snippet,omitempty"`
}

// MarshalJSON leaves kind out of results that carry no diagnostic.
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	type plain ValidationResult
	out := struct {
		plain
		Kind *ErrorKind `json:"kind,omitempty"`
	}{plain: plain(r)}
	if r.IsError {
		out.Kind = &r.Kind
	}
	return json.Marshal(out)
}

// Reasons a cycle did not write the bundle.
const (
	SkipFailures = "validation failed"
	SkipNoFiles  = "no files to bundle"
	SkipDryRun   = "dry run"
)

// CycleResult summarises one validate-then-bundle pass.
type CycleResult struct {
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Units     int                `json:"units"`
	Results   []ValidationResult `json:"results"`
	Failures  int                `json:"failures"`
	Bundled   bool               `json:"bundled"`
	Skipped   string             `json:"skipped,omitempty"`
	Output    string             `json:"output,omitempty"`
	Checksum  string             `json:"checksum,omitempty"`
	Bytes     int64              `json:"bytes,omitempty"`
	WriteErr  string             `json:"write_error,omitempty"`
}

// Succeeded reports whether the cycle wrote the bundle.
func (c *CycleResult) Succeeded() bool {
	return c.Bundled && c.WriteErr == ""
}

// Failed returns the failing results in their original order.
func (c *CycleResult) Failed() []ValidationResult {
	var out []ValidationResult
	for _, r := range c.Results {
		if r.IsError {
			out = append(out, r)
		}
	}
	return out
}
