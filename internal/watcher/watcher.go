// Package watcher picks up video files dropped into watched directories.
// Files are handed to a callback once they stop growing, so a copy in
// progress is not processed half written.
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

const (
	defaultSettle = 2 * time.Second
	maxSettleWait = 10 * time.Minute
)

// Handler is called once per settled video file.
type Handler func(path string)

// Watcher watches directories and calls a Handler for new video files.
type Watcher struct {
	roots      []string
	extensions []string
	excludes   []string
	recursive  bool
	onVideo    Handler
	settle     time.Duration
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	pending    map[string]*pendingFile
	rootPaths  map[string][]string // root -> list of watched paths (dirs we added)
	done       chan struct{}
	started    bool
	stopOnce   sync.Once
	logger     *zap.Logger
}

// pendingFile tracks a file until its size stops changing.
type pendingFile struct {
	timer    *time.Timer
	size     int64
	firstSee time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSettle sets how long a file must keep the same size before it is handed over.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithExcludes ignores events under the given directories, such as the upload dir
// whose files are registered through the API.
func WithExcludes(dirs ...string) WatcherOption {
	return func(w *Watcher) {
		for _, d := range dirs {
			if d == "" {
				continue
			}
			if abs, err := filepath.Abs(d); err == nil {
				w.excludes = append(w.excludes, filepath.Clean(abs))
			}
		}
	}
}

// NewWatcher creates a watcher for roots. extensions filter which files are
// considered (empty = all). onVideo is called for every settled file.
func NewWatcher(roots []string, extensions []string, recursive bool, onVideo Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		onVideo:    onVideo,
		settle:     defaultSettle,
		pending:    make(map[string]*pendingFile),
		rootPaths:  make(map[string][]string),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Strings("excludes", w.excludes),
		zap.Bool("recursive", w.recursive))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	events, errs := w.watcher.Events, w.watcher.Errors
	w.mu.Unlock()
	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) || w.excluded(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Op.Has(fsnotify.Create) {
				w.handleNewDirectory(path)
			}
			return
		}
		if w.matchExtension(path) {
			w.track(path)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancel(path)
	}
}

// handleNewDirectory watches a newly created directory and picks up the videos inside it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	recursive := w.recursive
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	if recursive {
		_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if err := watcher.Add(path); err != nil {
					w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := watcher.Add(dirPath); err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dirPath), zap.Error(err))
	}
	w.syncDirectory(dirPath)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func (w *Watcher) excluded(path string) bool {
	clean := filepath.Clean(path)
	for _, ex := range w.excludes {
		if inDir(ex, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	extNorm := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == extNorm {
			return true
		}
	}
	return false
}

// track (re)arms the settle timer for path.
func (w *Watcher) track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	p, ok := w.pending[path]
	if ok {
		p.timer.Stop()
	} else {
		p = &pendingFile{size: -1, firstSee: time.Now()}
		w.pending[path] = p
	}
	p.timer = time.AfterFunc(w.settle, func() { w.check(path) })
}

// check hands path over when its size matches the previous check, otherwise waits again.
func (w *Watcher) check(path string) {
	info, err := os.Stat(path)
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}
	if info.Size() != p.size && time.Since(p.firstSee) < maxSettleWait {
		p.size = info.Size()
		p.timer = time.AfterFunc(w.settle, func() { w.check(path) })
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	onVideo := w.onVideo
	w.mu.Unlock()

	w.logger.Debug("watcher file settled", zap.String("path", path), zap.Int64("size", info.Size()))
	if onVideo != nil {
		onVideo(path)
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory adds a root directory to watch and optionally picks up existing videos.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting && w.onVideo != nil {
		go w.syncDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if w.excluded(path) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// syncDirectory hands every existing matching file under root straight to the handler.
func (w *Watcher) syncDirectory(root string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	onVideo := w.onVideo
	recursive := w.recursive
	w.mu.Unlock()
	w.logger.Debug("watcher syncing directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || w.excluded(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, exts) && onVideo != nil {
			onVideo(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching the given root. Videos already ingested stay searchable.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	idx := -1
	for i, r := range w.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range w.rootPaths[abs] {
		_ = w.watcher.Remove(p)
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	for path, p := range w.pending {
		if inDir(abs, path) {
			p.timer.Stop()
			delete(w.pending, path)
		}
	}
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the current watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles hands over all existing videos in each watched root.
// Call this after Start() to pick up files that were present before the watcher started.
func (w *Watcher) SyncExistingFiles() {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		w.syncDirectory(root)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
