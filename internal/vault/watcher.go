package vault

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the active environment source when its backing file
// changes, so edits to an environment file take effect without restarting
// the host. In-flight executions keep resolving against the table snapshot
// they captured.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	env       *Environment
	name      string
	path      string
	logger    *slog.Logger
	done      chan struct{}
}

// WatchActive starts watching the file backing the environment's active
// source. Returns an error when the active source is not file-backed.
func WatchActive(env *Environment, logger *slog.Logger) (*Watcher, error) {
	path := env.activePath()
	if path == "" {
		return nil, fmt.Errorf("environment watcher: active source is not file-backed")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("environment watcher: resolving path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("environment watcher: %w", err)
	}

	// Watch the directory rather than the file: editors that save via
	// write-tmp-then-rename change the inode, and only a directory watch
	// observes the rename.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("environment watcher: watching %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		env:       env,
		name:      env.ActiveName(),
		path:      absPath,
		logger:    logger,
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	// Debounce: a single save can fire several events in quick succession.
	const debounce = 100 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				// Drain a pending tick before rearming, or a stale fire
				// would trigger an extra reload.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.env.LoadFile(w.name, w.path); err != nil {
				w.logger.Warn("environment reload failed",
					slog.String("source", w.name), slog.Any("error", err))
				continue
			}
			w.logger.Info("environment reloaded", slog.String("source", w.name))
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("environment watcher error", slog.Any("error", err))
		}
	}
}
