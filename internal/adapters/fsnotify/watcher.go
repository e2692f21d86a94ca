// Package fsnotify implements the ports.ChangeWatcher interface using github.com/fsnotify/fsnotify.
// It watches a repository's .git directory a few levels deep and filters out
// the paths git churns on internally (objects, logs, hooks, lock files) so only
// meaningful changes reach the caller.
package fsnotify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/ports"
)

// ErrPathRemoved is reported through onError when the watched .git directory
// itself is deleted or moved away.
var ErrPathRemoved = errors.New("watched path removed")

// maxDepth bounds how far below gitDir directories are watched.
// gitDir=0, refs=1, refs/heads=2, refs/heads/feature=3.
const maxDepth = 3

// Directories under .git whose churn never matters to the dashboard.
var ignoreDirs = map[string]bool{
	"objects": true,
	"logs":    true,
	"hooks":   true,
	"lfs":     true,
	"modules": true,
}

// Exact file names to ignore.
var ignoreFiles = map[string]bool{
	"COMMIT_EDITMSG": true,
	"gc.log":         true,
	"gc.pid":         true,
	".DS_Store":      true,
}

// File suffixes to ignore: git lock files and editor swap files.
var ignoreSuffixes = []string{".lock", ".swp", ".swx", "~"}

// Watcher implements ports.ChangeWatcher using fsnotify.
type Watcher struct {
	fw     *fsnotify.Watcher
	logger *zap.Logger

	done    chan struct{}
	exited  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// NewWatcher creates a new, unstarted .git watcher.
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:     fw,
		logger: logger.Named("fsnotify"),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Factory returns a ports.WatcherFactory producing fsnotify watchers.
func Factory(logger *zap.Logger) ports.WatcherFactory {
	return func() (ports.ChangeWatcher, error) {
		return NewWatcher(logger)
	}
}

// Watch starts monitoring gitDir. onChange is called with the absolute path
// of each relevant change. onError is called at most once, when gitDir
// disappears or fsnotify reports an unrecoverable error; no further callbacks
// follow it.
//
// Callbacks run on the watcher's goroutine and must not call Stop.
func (w *Watcher) Watch(gitDir string, onChange func(path string), onError func(err error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("watcher stopped")
	}
	if w.started {
		return errors.New("watcher already started")
	}

	absPath, err := filepath.Abs(gitDir)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absPath)
	}

	// Walk and add directories up to maxDepth.
	err = filepath.WalkDir(absPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == absPath {
				return err
			}
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if path != absPath && (shouldIgnoreDir(d.Name()) || depth(absPath, path) > maxDepth) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", absPath, err)
	}

	w.started = true
	go w.loop(absPath, onChange, onError)
	return nil
}

func (w *Watcher) loop(root string, onChange func(string), onError func(error)) {
	defer close(w.exited)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			path := event.Name

			if path == root && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				w.logger.Debug("git dir removed", zap.String("path", root))
				w.report(onError, ErrPathRemoved)
				return
			}

			// For Create events, add new directories (e.g. refs/heads/feature/) to the watch list
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					if !shouldIgnoreDir(info.Name()) && depth(root, path) <= maxDepth {
						if err := w.fw.Add(path); err != nil {
							w.logger.Debug("add watch failed", zap.String("path", path), zap.Error(err))
						}
					}
				}
			}

			if shouldIgnorePath(root, path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.deliver(func() { onChange(path) })
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; something changed.
				w.deliver(func() { onChange(root) })
				continue
			}
			w.logger.Warn("watch error", zap.String("path", root), zap.Error(err))
			w.report(onError, err)
			return

		case <-w.done:
			return
		}
	}
}

// deliver runs fn unless Stop has begun.
func (w *Watcher) deliver(fn func()) {
	select {
	case <-w.done:
	default:
		fn()
	}
}

func (w *Watcher) report(onError func(error), err error) {
	if onError != nil {
		w.deliver(func() { onError(err) })
	}
}

// Stop ends monitoring and releases all resources. When it returns no
// callback is running and none will fire. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	close(w.done)
	err := w.fw.Close()
	w.mu.Unlock()

	if started {
		<-w.exited
	}
	return err
}

// depth returns how many path elements path is below root.
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// shouldIgnoreDir returns true if the directory name should be skipped.
func shouldIgnoreDir(name string) bool {
	return ignoreDirs[name]
}

// shouldIgnorePath returns true if the path should not trigger onChange.
func shouldIgnorePath(root, path string) bool {
	base := filepath.Base(path)

	if ignoreFiles[base] || strings.HasPrefix(base, "fsmonitor") {
		return true
	}
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}

	// Check if any component below root is an ignored directory
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if ignoreDirs[part] {
			return true
		}
	}

	return false
}

var _ ports.ChangeWatcher = (*Watcher)(nil)
