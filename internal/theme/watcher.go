package theme

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher reloads a Set whenever its presets file changes on disk.
type Watcher struct {
	set      *Set
	fs       *fsnotify.Watcher
	onReload func(error)
	done     chan struct{}
	once     sync.Once
}

// NewWatcher watches the directory holding set.Path(). Editors replace files
// instead of writing in place, so the file itself is not watched.
func NewWatcher(set *Set, onReload func(error)) (*Watcher, error) {
	if set.Path() == "" {
		return nil, fmt.Errorf("theme set has no presets file to watch")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(set.Path())); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(set.Path()), err)
	}
	return &Watcher{
		set:      set,
		fs:       fsWatcher,
		onReload: onReload,
		done:     make(chan struct{}),
	}, nil
}

// Start processes file events until Close.
func (w *Watcher) Start() {
	go w.processEvents()
}

func (w *Watcher) processEvents() {
	target := filepath.Clean(w.set.Path())
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			fmt.Printf("[Theme] Watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) reload() {
	err := w.set.Reload()
	if err != nil {
		fmt.Printf("[Theme] Reload of %s failed, keeping previous presets: %v\n", w.set.Path(), err)
	} else {
		fmt.Printf("[Theme] Reloaded presets from %s\n", w.set.Path())
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
