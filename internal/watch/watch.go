// Package watch re-triggers analysis when session recordings change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"

	"github.com/fakeyudi/eyetrial/internal/layout"
	"github.com/fakeyudi/eyetrial/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before calling back.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a directory tree for files matching a pattern.
type Watcher struct {
	root     string
	pattern  string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// New registers root and every directory below it. Directories created later
// are added as they appear.
func New(root, pattern string, debounce time.Duration) (*Watcher, error) {
	if pattern == "" {
		pattern = layout.DefaultPattern
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create watcher")
	}

	w := &Watcher{root: root, pattern: pattern, debounce: debounce, fs: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return goerr.Wrap(err, "cannot watch directory", goerr.V("path", path))
			}
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				return goerr.Wrap(err, "cannot watch directory", goerr.V("path", path))
			}
		}
		return nil
	})
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers batches of changed recording paths to fn until ctx is
// cancelled. fn runs on the watcher goroutine; events arriving meanwhile are
// batched for the next call.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, paths []string)) error {
	logger := logging.From(ctx)

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					// files may have landed before the directory was added
					w.collectTree(event.Name, pending)
					timer.Reset(w.debounce)
					continue
				}
			}
			if w.matches(event.Name) {
				pending[event.Name] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = map[string]struct{}{}
			logger.Debug("recordings changed", "count", len(paths))
			fn(ctx, paths)
		}
	}
}

func (w *Watcher) collectTree(dir string, pending map[string]struct{}) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.matches(path) {
			pending[path] = struct{}{}
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.pattern, filepath.Base(path))
	return err == nil && ok
}

// Tasks maps changed paths to the task directories (first segment below base)
// they belong to, deduplicated and sorted.
func Tasks(base string, paths []string) []string {
	seen := map[string]bool{}
	var tasks []string
	for _, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 || seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		tasks = append(tasks, parts[0])
	}
	sort.Strings(tasks)
	return tasks
}
