// Package scanner walks the source tree and classifies every file into a
// typed, content-hashed SourceFile.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/types"
)

// FileError is a failure to read or classify a single file.
type FileError struct {
	Path string
	ID   string
	Err  error
}

// Error implements the error interface
func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e FileError) Unwrap() error {
	return e.Err
}

// ScanResult holds the records produced by a scan, sorted by id.
type ScanResult struct {
	Files []*types.SourceFile
	// Removed are ids whose file no longer exists
	Removed []string
	// RemovedDirs are id prefixes (ending in "/") of directories that
	// no longer exist
	RemovedDirs []string
	Errors      []FileError
}

// Known gives a targeted rescan access to the previously recorded state.
type Known interface {
	Lookup(id string) (*types.SourceFile, bool)
}

// KnownFunc adapts a function to Known.
type KnownFunc func(id string) (*types.SourceFile, bool)

// Lookup calls f.
func (f KnownFunc) Lookup(id string) (*types.SourceFile, bool) { return f(id) }

type root struct {
	prefix string
	dir    string
}

// Scanner classifies source files. It is safe for concurrent use.
type Scanner struct {
	roots   []root
	base    string
	ignore  *Matcher
	hashes  *HashProvider
	logger  logging.Logger
	workers int
}

// New creates a scanner for the source layout in cfg.
func New(cfg *config.Config, logger logging.Logger) *Scanner {
	workers := cfg.Build.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Scanner{
		roots: []root{
			{types.PrefixContent, cfg.SourceDir(cfg.Source.ContentDir)},
			{types.PrefixTemplates, cfg.SourceDir(cfg.Source.TemplatesDir)},
			{types.PrefixStyles, cfg.SourceDir(cfg.Source.StylesDir)},
			{types.PrefixStatic, cfg.SourceDir(cfg.Source.StaticDir)},
			{types.PrefixData, cfg.SourceDir(cfg.Source.DataDir)},
		},
		base:    cfg.SourceDir(""),
		ignore:  NewMatcher(cfg.Watch.Ignore),
		hashes:  NewHashProvider(),
		logger:  logger.WithComponent("scanner"),
		workers: workers,
	}
}

// Dirs returns the absolute source directories, in classification order.
func (s *Scanner) Dirs() []string {
	dirs := make([]string, len(s.roots))
	for i, r := range s.roots {
		dirs[i] = r.dir
	}
	return dirs
}

// Root is the absolute source root.
func (s *Scanner) Root() string {
	return s.base
}

// Ignored reports whether an absolute path is excluded from scanning.
func (s *Scanner) Ignored(abs string) bool {
	if Hidden(filepath.Base(abs)) {
		return true
	}
	rel, err := filepath.Rel(s.base, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return s.ignore.Match(filepath.Base(abs))
	}
	return s.ignore.Match(rel)
}

// locate finds the source directory holding abs.
func (s *Scanner) locate(abs string) (root, string, bool) {
	abs = filepath.Clean(abs)
	for _, r := range s.roots {
		if abs == r.dir {
			return r, "", true
		}
		if strings.HasPrefix(abs, r.dir+string(filepath.Separator)) {
			rel, err := filepath.Rel(r.dir, abs)
			if err != nil {
				return root{}, "", false
			}
			return r, filepath.ToSlash(rel), true
		}
	}
	return root{}, "", false
}

// Classify maps a path relative to a source directory onto its kind and
// entity id.
func Classify(prefix, rel string) (types.Kind, string, error) {
	base := path.Base(rel)
	switch prefix {
	case types.PrefixContent:
		if content.IsSectionFile(rel) {
			return types.KindSection, prefix + rel, nil
		}
		if content.IsContentSource(rel) {
			return types.KindContent, prefix + rel, nil
		}
		return types.KindAsset, prefix + rel, nil
	case types.PrefixTemplates:
		if strings.HasPrefix(base, "_") || strings.HasPrefix(rel, "partials/") || strings.Contains(rel, "/partials/") {
			return types.KindPartial, prefix + rel, nil
		}
		return types.KindTemplate, prefix + rel, nil
	case types.PrefixStyles:
		if strings.EqualFold(path.Ext(rel), ".css") {
			return types.KindStyle, prefix + rel, nil
		}
		return types.KindAsset, prefix + rel, nil
	case types.PrefixStatic:
		return types.KindAsset, prefix + rel, nil
	case types.PrefixData:
		if !content.IsDataFile(rel) {
			return types.KindUnknown, prefix + rel, fmt.Errorf("unsupported data format %q", path.Ext(rel))
		}
		return types.KindData, prefix + content.DataStem(rel), nil
	}
	return types.KindUnknown, "", fmt.Errorf("no source directory for %q", rel)
}

type candidate struct {
	root root
	rel  string
	abs  string
}

// Scan walks every source directory and returns a record for each file.
// Directories that do not exist are skipped; a missing source root is an
// I/O error.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	if _, err := os.Stat(s.base); err != nil {
		return nil, errors.NewIOError("SOURCE_ROOT", "source root is not accessible", err).WithLocation(s.base, 0)
	}
	s.hashes.Forget()

	var candidates []candidate
	for _, r := range s.roots {
		found, err := s.walk(ctx, r, r.dir)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	result := s.read(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "scan complete", "files", len(result.Files), "errors", len(result.Errors))
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, r root, dir string) ([]candidate, error) {
	var found []candidate
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return fs.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p != dir && s.Ignored(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.dir, p)
		if err != nil {
			return err
		}
		found = append(found, candidate{root: r, rel: filepath.ToSlash(rel), abs: p})
		return nil
	})
	if err != nil && err != fs.SkipDir {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewIOError("WALK", "walking source directory failed", err).WithLocation(dir, 0)
	}
	return found, nil
}

// read classifies and hashes candidates with bounded parallelism.
func (s *Scanner) read(ctx context.Context, candidates []candidate) *ScanResult {
	type outcome struct {
		file *types.SourceFile
		err  *FileError
	}
	outcomes := make([]outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			file, err := s.readOne(c)
			outcomes[i] = outcome{file: file, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &ScanResult{}
	claimed := make(map[string]string)
	// candidates are in walk order, which is lexical per directory
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			result.Errors = append(result.Errors, *o.err)
		case o.file != nil:
			if first, dup := claimed[o.file.ID]; dup {
				result.Errors = append(result.Errors, ambiguous(o.file, first))
				continue
			}
			claimed[o.file.ID] = o.file.Path
			result.Files = append(result.Files, o.file)
		}
	}
	result.sort()
	return result
}

func ambiguous(file *types.SourceFile, first string) FileError {
	return FileError{
		Path: file.Path,
		ID:   file.ID,
		Err: errors.NewSourceError("AMBIGUOUS_KIND",
			fmt.Sprintf("%s resolves to the same entity as %s", filepath.Base(file.Path), filepath.Base(first)), nil).
			WithEntity(file.ID).WithLocation(file.Path, 0),
	}
}

func (s *Scanner) readOne(c candidate) (*types.SourceFile, *FileError) {
	kind, id, err := Classify(c.root.prefix, c.rel)
	if err != nil {
		return nil, &FileError{Path: c.abs, ID: id, Err: errors.NewSourceError("CLASSIFY", "cannot classify file", err).
			WithEntity(id).WithLocation(c.abs, 0)}
	}

	info, err := os.Stat(c.abs)
	if err != nil {
		return nil, &FileError{Path: c.abs, ID: id, Err: errors.NewSourceError("UNREADABLE", "cannot stat file", err).
			WithEntity(id).WithLocation(c.abs, 0)}
	}

	file := &types.SourceFile{
		ID:      id,
		Kind:    kind,
		Path:    c.abs,
		Rel:     c.rel,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}

	if kind == types.KindAsset {
		file.Hash, err = s.hashes.HashFile(c.abs, info)
	} else {
		file.Content, err = os.ReadFile(c.abs)
		if err == nil {
			file.Hash = HashBytes(file.Content)
			file.Size = int64(len(file.Content))
		}
	}
	if err != nil {
		return nil, &FileError{Path: c.abs, ID: id, Err: errors.NewSourceError("UNREADABLE", "cannot read file", err).
			WithEntity(id).WithLocation(c.abs, 0)}
	}
	return file, nil
}

// Rescan re-examines the given absolute paths and returns only records
// that differ from known: new or modified files, removed files, and
// removed directories.
func (s *Scanner) Rescan(ctx context.Context, paths []string, known Known) (*ScanResult, error) {
	result := &ScanResult{}
	var candidates []candidate
	seen := make(map[string]struct{})

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		r, rel, ok := s.locate(abs)
		if !ok || s.Ignored(abs) {
			continue
		}

		info, err := os.Stat(abs)
		switch {
		case os.IsNotExist(err):
			s.noteRemoval(r, rel, abs, known, result)
		case err != nil:
			result.Errors = append(result.Errors, FileError{Path: abs, Err: errors.NewSourceError("UNREADABLE", "cannot stat file", err).WithLocation(abs, 0)})
		case info.IsDir():
			found, err := s.walk(ctx, r, abs)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, found...)
		case info.Mode().IsRegular() && rel != "":
			candidates = append(candidates, candidate{root: r, rel: rel, abs: abs})
		}
	}

	read := s.read(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Errors = append(result.Errors, read.Errors...)

	for _, f := range read.Files {
		prev, ok := known.Lookup(f.ID)
		if ok && prev.Path != f.Path {
			if _, err := os.Stat(prev.Path); err == nil {
				// another live file already owns this entity
				result.Errors = append(result.Errors, ambiguous(f, prev.Path))
				continue
			}
		}
		if ok && prev.Hash == f.Hash && prev.Path == f.Path {
			continue
		}
		result.Files = append(result.Files, f)
	}

	result.sort()
	return result, nil
}

func (s *Scanner) noteRemoval(r root, rel, abs string, known Known, result *ScanResult) {
	if rel == "" {
		result.RemovedDirs = append(result.RemovedDirs, r.prefix)
		return
	}
	if _, id, err := Classify(r.prefix, rel); err == nil {
		if prev, ok := known.Lookup(id); ok && prev.Path == abs {
			result.Removed = append(result.Removed, id)
			return
		}
	}
	// not a known file, so it may have been a directory
	result.RemovedDirs = append(result.RemovedDirs, r.prefix+rel+"/")
}

func (r *ScanResult) sort() {
	sort.Slice(r.Files, func(i, j int) bool { return r.Files[i].ID < r.Files[j].ID })
	sort.Strings(r.Removed)
	sort.Strings(r.RemovedDirs)
	sort.Slice(r.Errors, func(i, j int) bool { return r.Errors[i].Path < r.Errors[j].Path })
}
