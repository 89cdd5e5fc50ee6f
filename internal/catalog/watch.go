package catalog

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the catalog when the backing YAML file changes.
type Watcher struct {
	catalog *Catalog
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts watching the catalog's file. Editors often replace files by
// rename, so the parent directory is watched rather than the file itself.
func Watch(c *Catalog) (*Watcher, error) {
	if c.path == "" {
		return nil, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(c.path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{catalog: c, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.catalog.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.catalog.Reload(); err != nil {
				log.Printf("catalog reload failed: %v", err)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	close(w.done)
	return w.watcher.Close()
}
