// Package watch implements the File Watcher: it normalizes configured
// patterns, walks and recursively watches the narrowest ancestor
// directories via fsnotify, and delivers debounced change notifications
// with pause/resume support.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
)

// Watcher observes the configured patterns and calls onChange, debounced,
// whenever a matching file is added or changed.
type Watcher struct {
	globs      []string
	plainPaths []string
	roots      []string
	debounce   time.Duration
	onChange   func()

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	paused   bool
	missed   bool
	timer    *time.Timer
	doneCh   chan struct{}
	closeCh  chan struct{}
	stopOnce sync.Once
}

// New builds a Watcher from raw patterns (string or []string, per
// NormalizePatterns) and a debounce duration. It does not start watching
// until Start is called.
func New(rawPatterns interface{}, debounce time.Duration, onChange func()) *Watcher {
	patterns := NormalizePatterns(rawPatterns)

	w := &Watcher{
		debounce: debounce,
		onChange: onChange,
		closeCh:  make(chan struct{}),
	}

	for _, p := range patterns {
		if isGlob(p) {
			w.globs = append(w.globs, p)
			w.roots = append(w.roots, globAncestorDir(p))
		} else {
			w.plainPaths = append(w.plainPaths, p)
			w.roots = append(w.roots, plainAncestorDir(p))
		}
	}
	w.roots = dedupe(w.roots)
	return w
}

// globAncestorDir returns the narrowest directory that does not itself
// contain a glob metacharacter.
func globAncestorDir(pattern string) string {
	dir := filepath.Dir(pattern)
	for dir != "." && dir != string(filepath.Separator) && isGlob(dir) {
		dir = filepath.Dir(dir)
	}
	if isGlob(dir) {
		return "."
	}
	return dir
}

func plainAncestorDir(pattern string) string {
	info, err := os.Stat(pattern)
	if err == nil && info.IsDir() {
		return pattern
	}
	dir := filepath.Dir(pattern)
	if dir == "" {
		return "."
	}
	return dir
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Start begins watching. No patterns configured means hot reload is
// disabled; Start is then a harmless no-op.
func (w *Watcher) Start() error {
	if len(w.roots) == 0 {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, root := range w.roots {
		if err := addRecursive(fsw, root); err != nil {
			logger.Slog().Warn("watch: failed to add root", "root", root, "error", err)
		}
	}

	w.fsw = fsw
	w.doneCh = make(chan struct{})
	go w.loop()
	return nil
}

// addRecursive adds dir and every non-ignored subdirectory to fsw.
func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if hasIgnoredSegment(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Slog().Warn("watch: watcher error", "error", err)
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !hasIgnoredSegment(event.Name) {
				_ = addRecursive(w.fsw, event.Name)
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}
	w.notify()
}

func (w *Watcher) matches(path string) bool {
	if hasIgnoredSegment(path) {
		return false
	}
	if len(w.globs) > 0 {
		for _, g := range w.globs {
			if globMatch(g, path) {
				return true
			}
		}
		for _, p := range w.plainPaths {
			if p == path {
				return true
			}
		}
		return false
	}
	return hasAllowedExtension(path)
}

func globMatch(pattern, path string) bool {
	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(path))
	return ok
}

// notify debounces onChange: the most recent event wins and any pending
// timer is cleared and restarted. While paused, it records a missed change
// instead of scheduling delivery.
func (w *Watcher) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paused {
		w.missed = true
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.debounce <= 0 {
		w.onChange()
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Pause stops delivering onChange and reports whether a change was
// suppressed while paused since the previous Pause call, resetting that
// flag.
func (w *Watcher) Pause() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
	missed := w.missed
	w.missed = false
	return missed
}

// Resume re-enables delivery of onChange.
func (w *Watcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
}

// Stop closes the underlying watcher and clears any pending debounce
// timer. Safe to call even if Start was never called or found no roots.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if w.fsw == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.closeCh)
		_ = w.fsw.Close()
		<-w.doneCh
	})
}
