package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/slate/internal/content"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/types"
	"github.com/conneroisu/slate/internal/validation"
)

// Writer mirrors snapshots onto the output directory. Every file is
// written to a temporary sibling and renamed into place.
type Writer struct {
	dir           string
	compressedDir string
}

// NewWriter creates a writer for dir. Encoded variants go under
// compressedDir when it is set, otherwise next to each artifact.
func NewWriter(dir, compressedDir string) *Writer {
	return &Writer{dir: dir, compressedDir: compressedDir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the file an artifact at route is written to.
func (w *Writer) Path(route string) (string, error) {
	if err := validation.ValidateRoute(route); err != nil {
		return "", errors.NewIOError("ROUTE", "refusing to write route", err)
	}
	target := filepath.Join(w.dir, filepath.FromSlash(content.RouteFile(route)))
	if err := validation.ValidateWithin(w.dir, target); err != nil {
		return "", errors.NewIOError("ROUTE", "refusing to write route", err)
	}
	return target, nil
}

// VariantPath returns the file an encoded variant of route is written to.
func (w *Writer) VariantPath(route string, enc types.Encoding) (string, error) {
	target, err := w.Path(route)
	if err != nil {
		return "", err
	}
	if w.compressedDir == "" {
		return target + enc.Suffix(), nil
	}
	rel, err := filepath.Rel(w.dir, target)
	if err != nil {
		return "", errors.NewIOError("ROUTE", "resolving variant path", err)
	}
	return filepath.Join(w.compressedDir, rel) + enc.Suffix(), nil
}

// Apply writes the entries of diff and deletes the files of its removed
// routes.
func (w *Writer) Apply(diff Diff) error {
	for _, route := range diff.Removed {
		if err := w.remove(route); err != nil {
			return err
		}
	}
	for _, e := range diff.Written {
		if err := w.write(e.Artifact); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(a *types.BuildArtifact) error {
	target, err := w.Path(a.Route)
	if err != nil {
		return err
	}
	if err := writeAtomic(target, a.Body); err != nil {
		return err
	}

	for _, enc := range []types.Encoding{types.EncodingBrotli, types.EncodingGzip, types.EncodingDeflate} {
		vpath, err := w.VariantPath(a.Route, enc)
		if err != nil {
			return err
		}
		body, ok := a.Variant(enc)
		if !ok {
			if err := removeFile(vpath); err != nil {
				return err
			}
			continue
		}
		if err := writeAtomic(vpath, body); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) remove(route string) error {
	target, err := w.Path(route)
	if err != nil {
		return err
	}
	paths := []string{target}
	for _, enc := range []types.Encoding{types.EncodingBrotli, types.EncodingGzip, types.EncodingDeflate} {
		vpath, err := w.VariantPath(route, enc)
		if err != nil {
			return err
		}
		paths = append(paths, vpath)
	}
	for _, p := range paths {
		if err := removeFile(p); err != nil {
			return err
		}
		pruneEmptyDirs(filepath.Dir(p), w.rootFor(p))
	}
	return nil
}

func (w *Writer) rootFor(p string) string {
	if w.compressedDir != "" && validation.ValidateWithin(w.compressedDir, p) == nil {
		return w.compressedDir
	}
	return w.dir
}

// Clean removes every file under the output directories that snap does
// not account for, and returns the removed paths sorted.
func (w *Writer) Clean(snap *Snapshot) ([]string, error) {
	keep := map[string]struct{}{}
	for _, e := range snap.Entries() {
		target, err := w.Path(e.Route())
		if err != nil {
			return nil, err
		}
		keep[target] = struct{}{}
		for enc := range e.Artifact.Variants {
			vpath, err := w.VariantPath(e.Route(), enc)
			if err != nil {
				return nil, err
			}
			keep[vpath] = struct{}{}
		}
	}

	var removed []string
	roots := []string{w.dir}
	if w.compressedDir != "" {
		roots = append(roots, w.compressedDir)
	}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				// the compressed tree is cleaned on its own pass
				if root == w.dir && w.compressedDir != "" && p == w.compressedDir {
					return filepath.SkipDir
				}
				return nil
			}
			if _, ok := keep[p]; ok {
				return nil
			}
			if err := os.Remove(p); err != nil {
				return err
			}
			removed = append(removed, p)
			return nil
		})
		if err != nil {
			return removed, errors.NewIOError("CLEAN", "cleaning output directory failed", err).WithLocation(root, 0)
		}
		pruneEmpty(root)
	}
	sort.Strings(removed)
	return removed, nil
}

func writeAtomic(target string, body []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("WRITE", "creating output directory failed", err).WithLocation(dir, 0)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return errors.NewIOError("WRITE", "creating temporary file failed", err).WithLocation(target, 0)
	}
	name := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.NewIOError("WRITE", "writing artifact failed", err).WithLocation(target, 0)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.NewIOError("WRITE", "writing artifact failed", err).WithLocation(target, 0)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return errors.NewIOError("WRITE", "setting artifact mode failed", err).WithLocation(target, 0)
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return errors.NewIOError("WRITE", "moving artifact into place failed", err).WithLocation(target, 0)
	}
	return nil
}

func removeFile(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("REMOVE", "removing stale artifact failed", err).WithLocation(p, 0)
	}
	return nil
}

// pruneEmptyDirs removes dir and its parents while they are empty,
// stopping at root.
func pruneEmptyDirs(dir, root string) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// pruneEmpty removes every empty directory below root, deepest first.
func pruneEmpty(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		_ = os.Remove(d)
	}
}

// String describes the writer for logs.
func (w *Writer) String() string {
	if w.compressedDir == "" {
		return w.dir
	}
	return fmt.Sprintf("%s (variants in %s)", w.dir, w.compressedDir)
}
