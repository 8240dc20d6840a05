package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"emergent-kg/backend/pkg/logger"
)

// DefaultDebounce coalesces the burst of events one atomic save produces.
const DefaultDebounce = 250 * time.Millisecond

// GraphWatcher calls onChange after the graph file is rewritten. Saves go
// through a temp file and a rename, so the parent directory is watched and
// events are filtered by name.
type GraphWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewGraphWatcher watches path. A zero debounce uses DefaultDebounce.
func NewGraphWatcher(path string, debounce time.Duration, onChange func()) (*GraphWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &GraphWatcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		watcher:  fsw,
		logger:   logger.Named("watcher"),
	}, nil
}

// Run dispatches events until ctx is done, then closes the watcher.
func (w *GraphWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	w.logger.Info("watching graph file", zap.String("path", w.path))

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
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("graph file changed", zap.String("op", event.Op.String()))
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *GraphWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}
