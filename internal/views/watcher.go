package views

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops cached templates of an HTMLEngine when files below root
// change, so edits show up without running the engine in debug mode.
type Watcher struct {
	watcher *fsnotify.Watcher
	engine  *HTMLEngine
	root    string
}

// NewWatcher watches root and all its subdirectories.
func NewWatcher(root string, engine *HTMLEngine) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{watcher: fw, engine: engine, root: root}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree adds dir and its subdirectories, fsnotify does not recurse
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

// Run handles events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	log.Printf("[VIEWS]: Watching templates below %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[VIEWS]: Template watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				log.Printf("[VIEWS]: Failed to watch %s: %v", event.Name, err)
			}
			return
		}
		w.engine.Invalidate(event.Name)
	case event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0:
		// a removed directory takes its templates along
		w.engine.Invalidate(event.Name)
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(event.Name) == "" {
			w.engine.Reset()
		}
	}
}
