// Package models defines the domain types for vbsb.
package models

import (
	"path/filepath"
	"strings"
)

// File naming markers.
const (
	HeaderPrefix     = "^"
	FooterPrefix     = "$"
	DefaultExtension = ".vbs"
)

// Classification holds the flags derived from a unit's path.
type Classification struct {
	IsHeader bool `json:"is_header"`
	IsFooter bool `json:"is_footer"`
	IsTest   bool `json:"is_test"`
}

// Classify derives the classification of path using the default extension.
func Classify(path string) Classification {
	return ClassifyExt(path, DefaultExtension)
}

// ClassifyExt derives the classification of path. Header and footer markers
// are checked against the file name only; test suffixes (".spec"+ext and
// ".test"+ext) against the lower-cased full path.
func ClassifyExt(path, ext string) Classification {
	base := filepath.Base(path)
	lower := strings.ToLower(path)
	ext = strings.ToLower(ext)
	return Classification{
		IsHeader: strings.HasPrefix(base, HeaderPrefix),
		IsFooter: strings.HasPrefix(base, FooterPrefix),
		IsTest:   strings.HasSuffix(lower, ".spec"+ext) || strings.HasSuffix(lower, ".test"+ext),
	}
}

// Unit is one discovered source file. Its classification is fixed at
// construction; a replaced file is represented by a new Unit.
type Unit struct {
	Path string `json:"path"`
	Classification
}

// NewUnit creates a Unit for path using the default extension.
func NewUnit(path string) Unit {
	return Unit{Path: path, Classification: Classify(path)}
}

// NewUnitExt creates a Unit for path classified against ext.
func NewUnitExt(path, ext string) Unit {
	return Unit{Path: path, Classification: ClassifyExt(path, ext)}
}

// EventKind is the semantic kind of a filesystem change.
type EventKind int

const (
	Created EventKind = iota
	Deleted
	// Renamed is reported for content modifications as well as renames.
	Renamed
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeEvent is one semantic filesystem occurrence.
type ChangeEvent struct {
	Kind EventKind
	Unit Unit
}

// Batch is an ordered sequence of change events delivered together.
type Batch []ChangeEvent
