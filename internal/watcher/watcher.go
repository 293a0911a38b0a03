// Package watcher turns file-system notifications under the source root
// into debounced change batches.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/slate/internal/logging"
	"github.com/conneroisu/slate/internal/scanner"
	"github.com/conneroisu/slate/internal/types"
)

// FileWatcher watches a directory tree. Directories created after the
// watch starts are added as they appear.
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	ignore    *scanner.Matcher
	logger    logging.Logger
}

// NewFileWatcher creates a watcher for root. ignore holds patterns in the
// form accepted by scanner.NewMatcher.
func NewFileWatcher(root string, window time.Duration, ignore []string, logger logging.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		root:      abs,
		watcher:   w,
		debouncer: NewDebouncer(window),
		ignore:    scanner.NewMatcher(ignore),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// Batches delivers coalesced change batches.
func (fw *FileWatcher) Batches() <-chan types.ChangeBatch {
	return fw.debouncer.Batches()
}

func (fw *FileWatcher) ignored(path string) bool {
	if path == fw.root {
		return false
	}
	if scanner.Hidden(filepath.Base(path)) {
		return true
	}
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return true
	}
	return fw.ignore.Match(rel)
}

// AddRecursive watches dir and every directory below it that is not
// ignored.
func (fw *FileWatcher) AddRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if fw.ignored(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Start registers watches on the whole tree, so that changes made after
// it returns are seen, and processes notifications in the background
// until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.AddRecursive(fw.root); err != nil {
		fw.watcher.Close()
		return err
	}
	go fw.debouncer.Run(ctx)
	go fw.run(ctx)
	return nil
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer fw.watcher.Close()

	fw.logger.Debug(ctx, "watching source tree", "root", fw.root)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || fw.ignored(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "cannot watch new directory", "path", event.Name)
			}
		}
	}

	fw.logger.Debug(ctx, "change", "path", event.Name, "op", event.Op.String())
	fw.debouncer.Add(event.Name)
}

// Watch starts watching root and returns the batch channel, which is
// closed once ctx is done.
func Watch(ctx context.Context, root string, window time.Duration, ignore []string) (<-chan types.ChangeBatch, error) {
	fw, err := NewFileWatcher(root, window, ignore, nil)
	if err != nil {
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		return nil, err
	}
	return fw.Batches(), nil
}
