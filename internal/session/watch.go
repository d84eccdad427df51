// internal/session/watch.go
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the workspace-storage tree for session-file changes,
// debounces the editor's rapid write bursts, and hands quiet files to the
// callback one at a time.
type Watcher struct {
	root   string
	window time.Duration
	onFile func(path string)

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over the given storage root. The callback
// receives the path of each session file after it has been quiet for the
// debounce window.
func NewWatcher(root string, onFile func(path string)) *Watcher {
	return &Watcher{
		root:   root,
		window: 2 * time.Second,
		onFile: onFile,
		timers: make(map[string]*time.Timer),
	}
}

// Start begins watching. It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		slog.Warn("walking storage root", "root", w.root, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New workspace directories appear while the editor runs; watch them
	// as they show up so their chatSessions dirs are covered.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}

	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if !isSessionFile(ev.Name) {
		return
	}
	w.feed(ev.Name)
}

// feed resets the per-path quiet timer, firing the callback once the
// editor stops rewriting the file.
func (w *Watcher) feed(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.window)
		return
	}
	w.timers[path] = time.AfterFunc(w.window, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.onFile(path)
	})
}

// drain cancels pending timers and emits their paths immediately.
func (w *Watcher) drain() {
	w.mu.Lock()
	var pending []string
	for path, t := range w.timers {
		t.Stop()
		pending = append(pending, path)
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	for _, path := range pending {
		w.onFile(path)
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		_ = w.fsw.Add(path)
		return nil
	})
}

func isSessionFile(path string) bool {
	return strings.HasSuffix(path, ".json") &&
		filepath.Base(filepath.Dir(path)) == "chatSessions"
}
