package config

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/bolasblack/tasksync/internal/util"
	"github.com/bolasblack/tasksync/internal/watch"
)

// Watcher reloads the config file when it changes on disk and delivers the
// new Config to a callback. Unchanged reloads are not delivered.
// Included files are not watched.
type Watcher struct {
	env      *util.Env
	path     string
	onChange func(Config)
	onError  func(error)
	logger   *slog.Logger

	mu   sync.Mutex
	last Config
	w    *watch.Watcher
}

// NewWatcher creates a Watcher for the config at path. initial is the
// config already in use; reloads equal to it are not delivered.
func NewWatcher(env *util.Env, path string, initial Config, onChange func(Config), onError func(error)) *Watcher {
	return &Watcher{
		env:      env,
		path:     path,
		onChange: onChange,
		onError:  onError,
		logger:   slog.Default(),
		last:     initial,
	}
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Start begins watching the config file's directory.
func (w *Watcher) Start() error {
	w.w = watch.New(filepath.Dir(w.path), func(string) { w.Reload() },
		watch.WithFiles(filepath.Base(w.path)),
		watch.WithLogger(w.logger),
	)
	return w.w.Start()
}

// Stop ends the watch.
func (w *Watcher) Stop() {
	if w.w != nil {
		w.w.Stop()
	}
}

// Reload loads the config and delivers it if it differs from the last one.
// Load failures go to onError; the last good config stays in effect.
func (w *Watcher) Reload() {
	cfg, err := LoadConfig(w.env, w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	if reflect.DeepEqual(cfg, w.last) {
		w.mu.Unlock()
		return
	}
	w.last = cfg
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}
