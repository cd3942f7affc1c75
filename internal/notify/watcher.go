// Package notify reloads the persona prompt when its file changes on disk,
// so the character can be tuned without restarting the bot.
package notify

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PersonaWatcher serves the current persona text and hot-reloads it when the
// backing file is rewritten. Current() is safe for concurrent use.
type PersonaWatcher struct {
	path    string
	mu      sync.RWMutex
	current string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPersonaWatcher reads the persona file once. A missing file is not an
// error; Current() returns "" and the built-in persona applies.
func NewPersonaWatcher(path string) *PersonaWatcher {
	pw := &PersonaWatcher{path: path, done: make(chan struct{})}
	pw.reload()
	return pw
}

// Current returns the most recently loaded persona text.
func (pw *PersonaWatcher) Current() string {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.current
}

// Start begins watching the persona file's directory. Editors replace files
// via rename, so watching the directory catches rewrites the file-level
// watch would lose.
func (pw *PersonaWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(pw.path)); err != nil {
		_ = w.Close()
		return err
	}
	pw.watcher = w

	go pw.loop()
	log.Printf("notify: watching %s for persona changes", pw.path)
	return nil
}

// Stop shuts down the watcher. Safe to call when Start was never called.
func (pw *PersonaWatcher) Stop() {
	if pw.watcher == nil {
		return
	}
	_ = pw.watcher.Close()
	<-pw.done
}

func (pw *PersonaWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case evt, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && filepath.Clean(evt.Name) == filepath.Clean(pw.path) {
				pw.reload()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (pw *PersonaWatcher) reload() {
	data, err := os.ReadFile(pw.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("notify: failed to read persona file %s: %v", pw.path, err)
		}
		return
	}
	pw.mu.Lock()
	pw.current = string(data)
	pw.mu.Unlock()
	log.Printf("notify: persona reloaded from %s (%d bytes)", pw.path, len(data))
}
