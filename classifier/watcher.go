package classifier

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher holds the current predictor and swaps it whenever the artifact file
// is rewritten. Current returns nil until an artifact has loaded.
type Watcher struct {
	path     string
	logger   *zap.Logger
	current  atomic.Pointer[Predictor]
	debounce time.Duration
}

// NewWatcher loads the artifact at path if it exists. A missing artifact is
// not an error here; the server reports it per request.
func NewWatcher(path string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolved, err := ResolveModelPath(path); err == nil {
		path = resolved
	}
	w := &Watcher{path: path, logger: logger, debounce: 200 * time.Millisecond}
	w.reload()
	return w
}

func (w *Watcher) Current() *Predictor {
	return w.current.Load()
}

func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) reload() bool {
	predictor, err := Load(w.path)
	if err != nil {
		w.logger.Warn("model not loaded", zap.String("path", w.path), zap.Error(err))
		return false
	}
	w.current.Store(predictor)
	w.logger.Info("model loaded",
		zap.String("path", w.path),
		zap.Stringer("image_size", predictor.ImageSize()),
		zap.Int("trees", len(predictor.Artifact().Model.Trees)))
	return true
}

// Run watches the artifact directory until ctx is done. The directory is
// watched because Artifact.Save replaces the file by rename.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}
