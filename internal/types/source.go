// Package types provides the shared build vocabulary used throughout slate.
// This package contains shared types to avoid circular dependencies between packages.
package types

import (
	"strings"
	"time"
)

// Kind classifies a source file.
type Kind int

const (
	KindUnknown Kind = iota
	// KindContent is a page source (markdown, html or .tpl) under the content dir.
	KindContent
	// KindTemplate is a layout that content selects by name.
	KindTemplate
	// KindPartial is a template fragment pulled in by include.
	KindPartial
	// KindStyle is a stylesheet; `_`-prefixed sheets are bundle members only.
	KindStyle
	// KindAsset is copied through untouched apart from compression.
	KindAsset
	// KindData is a structured YAML, JSON or TOML file exposed to templates.
	KindData
	// KindSection is the section.toml manifest of a content directory.
	KindSection
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindTemplate:
		return "template"
	case KindPartial:
		return "partial"
	case KindStyle:
		return "style"
	case KindAsset:
		return "asset"
	case KindData:
		return "data"
	case KindSection:
		return "section"
	default:
		return "unknown"
	}
}

// Routed reports whether entities of this kind can produce an artifact.
func (k Kind) Routed() bool {
	return k == KindContent || k == KindStyle || k == KindAsset
}

// ID prefixes. Entity ids are these prefixes joined with the slash-separated
// path relative to the matching source directory, so they stay stable when
// the directories themselves are renamed in configuration.
const (
	PrefixContent   = "content/"
	PrefixTemplates = "templates/"
	PrefixStyles    = "styles/"
	PrefixStatic    = "static/"
	PrefixData      = "data/"
)

// SourceFile is an immutable snapshot of one file at scan time.
type SourceFile struct {
	// ID is the stable path-derived identifier, e.g. "content/blog/a.md"
	ID string
	// Kind is the classification of the file
	Kind Kind
	// Path is the absolute path on disk
	Path string
	// Rel is the slash-separated path relative to the kind's root directory
	Rel string
	// Hash is the hex sha256 of the file contents
	Hash string
	// ModTime is the modification time observed at scan
	ModTime time.Time
	// Size is the size in bytes observed at scan
	Size int64
	// Content holds the bytes read at scan. Assets leave it nil and are
	// read again when rendered.
	Content []byte
}

// IsPartialStyle reports whether a style file is a bundle member only.
func (f *SourceFile) IsPartialStyle() bool {
	if f.Kind != KindStyle {
		return false
	}
	base := f.Rel
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return strings.HasPrefix(base, "_")
}
