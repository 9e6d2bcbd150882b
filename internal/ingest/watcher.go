package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Watcher keeps the index current while serving: create and write events
// under the source root re-ingest the touched file after a debounce window,
// remove events drop the document. New directories are watched as they
// appear.
type Watcher struct {
	runner   *Runner
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	dirs   map[string]bool
}

// NewWatcher creates a Watcher over the runner's source root.
func NewWatcher(cfg config.SourceConfig, runner *Runner) *Watcher {
	debounce := cfg.WatchDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		runner:   runner,
		debounce: debounce,
		logger:   logger.WithComponent("watcher"),
		timers:   make(map[string]*time.Timer),
		dirs:     make(map[string]bool),
	}
}

// Run watches the source tree until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.runner.scanner.Root()); err != nil {
		return fmt.Errorf("watching source tree: %w", err)
	}
	w.logger.Info("watching source tree",
		"root", w.runner.scanner.Root(),
		"debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A moved-in directory arrives as one event; pick up what it
			// already holds.
			if err := w.addTree(fw, event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "dir", event.Name, "error", err)
			}
			w.scheduleTree(ctx, event.Name)
			return
		}
		w.scheduleFile(ctx, event.Name)
	case event.Op.Has(fsnotify.Write):
		w.scheduleFile(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.cancelTimer(event.Name)
		if w.forgetDir(event.Name) {
			w.removeTree(ctx, event.Name)
			return
		}
		rel, err := w.runner.scanner.Rel(event.Name)
		if err == nil && w.runner.scanner.Matches(rel) {
			w.runner.RemoveFile(ctx, event.Name)
		}
	}
}

// scheduleFile arms (or re-arms) the debounce timer for a matching file.
func (w *Watcher) scheduleFile(ctx context.Context, path string) {
	rel, err := w.runner.scanner.Rel(path)
	if err != nil || !w.runner.scanner.Matches(rel) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) scheduleTree(ctx context.Context, root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.scheduleFile(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	o, processed, err := w.runner.IngestFile(ctx, path)
	if err != nil {
		w.logger.Warn("re-ingest failed", "path", path, "error", err)
		return
	}
	if !processed {
		w.logger.Debug("file unchanged", "path", path)
		return
	}
	w.logger.Info("file re-ingested", "doc_id", o.DocID, "state", o.State)
}

// removeTree drops every cataloged document under a removed directory. The
// files inside never get their own remove events.
func (w *Watcher) removeTree(ctx context.Context, dir string) {
	rel, err := w.runner.scanner.Rel(dir)
	if err != nil {
		return
	}
	prefix := rel + "/"
	recs, err := w.runner.catalog.List(ctx)
	if err != nil {
		w.logger.Warn("catalog list failed during tree removal", "dir", dir, "error", err)
		return
	}
	for _, rec := range recs {
		if strings.HasPrefix(rec.DocID, prefix) {
			w.runner.remove(ctx, rec.DocID)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "dir", path, "error", err)
			return nil
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

// forgetDir reports whether path was a watched directory, clearing it.
func (w *Watcher) forgetDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[path] {
		return false
	}
	delete(w.dirs, path)
	return true
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
