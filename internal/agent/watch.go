package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of file events (editors write several times per save)
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a Registry's file-defined agents whenever the agents directory changes.
type Watcher struct {
	registry *Registry
	logger   Logger
	onReload func(count int)
}

// NewWatcher creates a watcher for registry.AgentsDir. onReload, if non-nil,
// is called after every successful reload with the number of file-defined agents.
func NewWatcher(registry *Registry, logger Logger, onReload func(count int)) *Watcher {
	return &Watcher{registry: registry, logger: logger, onReload: onReload}
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error if the watch could not be established.
func (w *Watcher) Run(ctx context.Context) error {
	dir := w.registry.AgentsDir
	if dir == "" {
		return fmt.Errorf("registry has no agents directory to watch")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create agents directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := addTree(fsw, dir); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addTree(fsw, event.Name)
				}
			}
			if relevant(event) {
				debounce = time.After(reloadDebounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.warnf("agents watcher error: %v", err)

		case <-debounce:
			debounce = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	count, err := w.registry.Load(w.warnf)
	if err != nil {
		w.warnf("reload agents: %v", err)
		return
	}
	if w.logger != nil {
		w.logger.Debugf("reloaded %d agent definition(s) from %s", count, w.registry.AgentsDir)
	}
	if w.onReload != nil {
		w.onReload(count)
	}
}

func (w *Watcher) warnf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Warnf(format, args...)
	}
}

// relevant filters events down to changes of agent definition files or directories.
func relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".md") || filepath.Ext(base) == "" || event.Has(fsnotify.Remove)
}

// addTree adds dir and its non-hidden subdirectories; fsnotify is not recursive.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
