// Package watcher feeds OCR text dropped into an inbox directory to the
// pipeline as offer triggers.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"onisai/internal/service"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
	textSuffix   = ".txt"
	tickInterval = 50 * time.Millisecond
)

// Submitter accepts offer text.
type Submitter interface {
	SubmitOffer(ctx context.Context, text string, at time.Time) (*service.Result, error)
}

// Watcher moves each settled *.txt inbox file through the pipeline and then
// into processed/ or failed/.
type Watcher struct {
	submitter Submitter
	dir       string
	debounce  time.Duration
	logger    *zap.Logger

	pending map[string]time.Time
}

// New creates a Watcher for dir. Files are submitted once they have not
// changed for debounce.
func New(submitter Submitter, dir string, debounce time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		submitter: submitter,
		dir:       dir,
		debounce:  debounce,
		logger:    logger,
		pending:   make(map[string]time.Time),
	}
}

// Run watches the inbox until ctx is done. Files already in the inbox are
// picked up on start.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, processedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create inbox dir: %w", err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	if err := w.sweep(); err != nil {
		return err
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isInboxFile(w.dir, event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.pending[event.Name] = time.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	}
}

func (w *Watcher) sweep() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	now := time.Now()
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && isInboxFile(w.dir, path) {
			w.pending[path] = now
		}
	}
	return nil
}

// flush submits every file that has settled, oldest first.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return w.pending[ready[i]].Before(w.pending[ready[j]]) })

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		if w.process(ctx, path) {
			delete(w.pending, path)
		}
	}
}

// process submits one file. It reports false when the file should be retried.
func (w *Watcher) process(ctx context.Context, path string) bool {
	logger := w.logger.With(zap.String("file", filepath.Base(path)))

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Error("failed to read inbox file", zap.Error(err))
		}
		return true
	}

	res, err := w.submitter.SubmitOffer(ctx, string(data), time.Time{})
	switch {
	case errors.Is(err, service.ErrLockHeld):
		logger.Warn("pipeline busy, retrying inbox file")
		w.pending[path] = time.Now()
		return false
	case err != nil:
		logger.Warn("offer rejected", zap.Error(err))
		w.move(path, failedDir, logger)
	default:
		if res != nil && res.Trip != nil {
			logger = logger.With(zap.String("trip_id", res.Trip.ID))
		}
		logger.Info("offer submitted")
		w.move(path, processedDir, logger)
	}
	return true
}

func (w *Watcher) move(path, sub string, logger *zap.Logger) {
	dst := filepath.Join(w.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Error("failed to move inbox file", zap.String("to", sub), zap.Error(err))
	}
}

func isInboxFile(dir, path string) bool {
	return filepath.Dir(path) == filepath.Clean(dir) &&
		strings.HasSuffix(path, textSuffix) &&
		!strings.HasPrefix(filepath.Base(path), ".")
}
