// Package watcher watches inbox directories and imports lesson files dropped into them.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// FileFunc handles a settled file.
type FileFunc func(ctx context.Context, path string)

// Watcher reports files created or rewritten under its roots once writes
// to them have been quiet for the debounce interval.
type Watcher struct {
	extensions []string
	recursive  bool
	onFile     FileFunc
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	roots    map[string][]string // root -> directories added to fsnotify
	order    []string
	pending  map[string]*time.Timer
	fsw      *fsnotify.Watcher
	ctx      context.Context
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides how long a file must be quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRecursive controls whether subdirectories are watched.
func WithRecursive(r bool) Option {
	return func(w *Watcher) { w.recursive = r }
}

// New returns a watcher calling onFile for files whose extension is in
// extensions (all files when empty).
func New(extensions []string, onFile FileFunc, opts ...Option) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  true,
		onFile:     onFile,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		roots:      make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching roots. It returns once the roots are registered;
// events are handled until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, roots ...string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.ctx = ctx
	w.mu.Unlock()

	for _, root := range roots {
		if err := w.AddDirectory(root, false); err != nil {
			w.Stop()
			return err
		}
	}
	w.logger.Debug("watcher started", zap.Strings("roots", w.Directories()), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(path)
	}
}

// handleNewDirectory watches a directory created under a root and reports
// the files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	root := w.rootOf(dir)
	if root == "" || !w.recursive || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	added, err := w.addTreeLocked(dir)
	w.roots[root] = append(w.roots[root], added...)
	w.mu.Unlock()
	if err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.Sync(dir)
}

// rootOf returns the watched root containing path. Callers hold w.mu.
func (w *Watcher) rootOf(path string) string {
	for root := range w.roots {
		if inDir(root, path) {
			return root
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		w.logger.Debug("watcher file settled", zap.String("path", path))
		w.onFile(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory starts watching root, creating it when missing. With
// syncExisting, files already in root are reported in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return nil
	}
	if _, ok := w.roots[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	var added []string
	if w.recursive {
		added, err = w.addTreeLocked(abs)
	} else if err = w.fsw.Add(abs); err == nil {
		added = []string{abs}
	}
	if err != nil {
		for _, p := range added {
			_ = w.fsw.Remove(p)
		}
		w.mu.Unlock()
		return err
	}
	w.roots[abs] = added
	w.order = append(w.order, abs)
	w.mu.Unlock()

	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.Sync(abs)
	}
	return nil
}

// addTreeLocked adds dir and its subdirectories to fsnotify.
func (w *Watcher) addTreeLocked(dir string) ([]string, error) {
	var added []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		added = append(added, path)
		return nil
	})
	return added, err
}

// RemoveDirectory stops watching root. Imported lessons are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	paths, ok := w.roots[abs]
	if !ok {
		return nil
	}
	if w.fsw != nil {
		for _, p := range paths {
			_ = w.fsw.Remove(p)
		}
	}
	delete(w.roots, abs)
	for i, r := range w.order {
		if r == abs {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots in the order they were added.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

// Sync reports every matching file under dir. It blocks until done.
func (w *Watcher) Sync(dir string) {
	w.mu.Lock()
	ctx := w.ctx
	recursive := w.recursive
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.onFile(ctx, path)
		}
		return nil
	})
}

// SyncAll reports matching files under every root.
func (w *Watcher) SyncAll() {
	for _, root := range w.Directories() {
		w.Sync(root)
	}
}

// Stop stops watching and cancels pending reports.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
