// Package watch monitors the drop directory for exported snapshot files
// and hands them off for offline import. Files that arrived while the
// service was down are picked up by a startup rescan.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory for .json snapshot files. enqueue must be
// safe for concurrent use and should return false when the file could not
// be queued; the file is left in place either way, so processed files must
// be renamed or removed by the consumer.
type Watcher struct {
	dir     string
	enqueue func(path string) bool
}

func New(dir string, enqueue func(path string) bool) *Watcher {
	return &Watcher{dir: dir, enqueue: enqueue}
}

// Start rescans the directory for leftover files and then watches for new
// ones until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := w.rescan(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isSnapshot(evt.Name) {
					if !w.enqueue(evt.Name) {
						log.Printf("watch: could not queue %s", evt.Name)
					}
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.dir)
}

// rescan queues snapshot files already sitting in the directory.
func (w *Watcher) rescan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isSnapshot(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !w.enqueue(path) {
			log.Printf("watch: could not queue %s", path)
		}
	}
	return nil
}

func isSnapshot(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// MarkDone renames a processed snapshot out of the watch set so restarts
// do not replay it.
func MarkDone(path string) error {
	return os.Rename(path, path+".imported")
}
