package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devrev/securegpx/internal/handler"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Result is the outcome of re-reading the watched file
type Result struct {
	Path        string
	Initialized bool
	Valid       bool
	Points      int
	CheckedAt   time.Time
}

// Watcher reloads a GPX file into a handler whenever it changes on disk and
// reports the chain validity of the new content
type Watcher struct {
	path     string
	handler  *handler.Handler
	debounce time.Duration
	onResult func(Result)
	logger   *zap.Logger
}

// Config holds watcher configuration
type Config struct {
	Path     string
	Debounce time.Duration
	// OnResult is called on the queue worker after every check
	OnResult func(Result)
}

func New(cfg Config, h *handler.Handler, logger *zap.Logger) *Watcher {
	if cfg.OnResult == nil {
		cfg.OnResult = func(Result) {}
	}
	return &Watcher{
		path:     filepath.Clean(cfg.Path),
		handler:  h,
		debounce: cfg.Debounce,
		onResult: cfg.OnResult,
		logger:   logger,
	}
}

// Check loads the file and queues a validation. The result is delivered to
// OnResult once the queue reaches it.
func (w *Watcher) Check() error {
	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer f.Close()

	if err := w.handler.Load(f); err != nil {
		return err
	}
	return w.handler.RequestValidation(func(valid bool) {
		s := w.handler.Store()
		res := Result{
			Path:        w.path,
			Initialized: s.Initialized(),
			Valid:       valid,
			Points:      s.Size(),
			CheckedAt:   time.Now(),
		}
		if !res.Initialized || !res.Valid {
			w.logger.Warn("Watched gpx file failed validation",
				zap.String("path", res.Path),
				zap.Bool("initialized", res.Initialized),
				zap.Int("points", res.Points))
		} else {
			w.logger.Info("Watched gpx file is valid",
				zap.String("path", res.Path),
				zap.Int("points", res.Points))
		}
		w.onResult(res)
	})
}

// Run checks the file once and then after every change until ctx is done.
// The parent directory is watched so that editors replacing the file are
// seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	if err := w.Check(); err != nil {
		w.logger.Warn("Initial check failed", zap.String("path", w.path), zap.Error(err))
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Watched file changed",
				zap.String("path", w.path),
				zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case <-timer.C:
			if err := w.Check(); err != nil {
				w.logger.Warn("Check failed", zap.String("path", w.path), zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}
