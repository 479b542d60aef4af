// Package watch triggers a callback when register files change on disk.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is used when no debounce is configured.
const DefaultDebounce = 2 * time.Second

// Watcher calls OnChange once writes to the watched files settle.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	onChange func(ctx context.Context, paths []string)
	pending  map[string]bool
	timer    *time.Timer
	fire     chan struct{}
	doneCh   chan struct{}
}

// New watches the given files. Their directories are watched so that
// editors replacing a file by rename are seen too.
func New(files []string, debounce time.Duration, onChange func(ctx context.Context, paths []string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		files:    map[string]bool{},
		debounce: debounce,
		onChange: onChange,
		pending:  map[string]bool{},
		fire:     make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}
	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
		logrus.Infof("Watching %s for register changes", dir)
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithError(err).Warn("Register watcher error")
		case <-w.fire:
			w.mu.Lock()
			paths := make([]string, 0, len(w.pending))
			for p := range w.pending {
				paths = append(paths, p)
			}
			w.pending = map[string]bool{}
			w.mu.Unlock()
			if len(paths) > 0 {
				logrus.Infof("Registers changed: %v", paths)
				w.onChange(ctx, paths)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.files[abs] {
		return
	}
	logrus.Debugf("Register event %s on %s", event.Op, abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[abs] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- struct{}{}:
		default:
		}
	})
}
