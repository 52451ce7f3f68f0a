// Package watch delivers debounced change notifications for files in a directory.
package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	// DefaultDebounce coalesces the burst of events an editor save produces.
	DefaultDebounce = 100 * time.Millisecond
	eventBufferSize = 64
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithFiles restricts notifications to the given base names.
func WithFiles(names ...string) Option {
	return func(w *Watcher) {
		for _, n := range names {
			w.names[n] = true
		}
	}
}

// WithDebounce sets the quiet period before a change is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher watches one directory (non-recursively) and calls onChange with
// the path of each changed file once its events have settled.
//
// Directory-level watching catches editors that save by renaming a
// temporary file over the original.
type Watcher struct {
	dir      string
	names    map[string]bool
	debounce time.Duration
	logger   *slog.Logger
	onChange func(path string)

	events chan notify.EventInfo
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a Watcher for dir. Call Start to begin watching.
func New(dir string, onChange func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		names:    make(map[string]bool),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		onChange: onChange,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the watch and starts delivering events.
func (w *Watcher) Start() error {
	w.events = make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(w.dir, w.events, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return err
	}
	w.logger.Debug("watch start", "dir", w.dir)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends the watch. Pending debounced changes are dropped; a change
// already being delivered finishes before Stop returns, so onChange must not
// call Stop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.events != nil {
		notify.Stop(w.events)
	}
	close(w.done)
	w.wg.Wait()
	w.logger.Debug("watch stopped", "dir", w.dir)
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev := <-w.events:
			w.Notify(ev.Path())
		}
	}
}

// Notify records a change of path, as if reported by the OS.
// Changes to files outside the configured names are ignored.
func (w *Watcher) Notify(path string) {
	if len(w.names) > 0 && !w.names[filepath.Base(path)] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.flush(path) })
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.logger.Debug("watch change", "path", path)
	w.onChange(path)
}
