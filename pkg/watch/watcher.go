// Package watch re-runs a job whenever its input file changes.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	errs "github.com/logflow/bundler/pkg/errors"
)

// DefaultDebounce is the quiet period after the last write before a re-run.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors one file and calls OnChange after it settles.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration

	lastModified time.Time
	size         int64

	// OnChange runs the job. It is never called concurrently with itself.
	OnChange func(ctx context.Context, path string) error
	// OnError receives watcher and job failures. The watch loop keeps going.
	OnError func(path string, err error)
}

// NewWatcher creates a watcher for path. A debounce of zero means DefaultDebounce.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to resolve path").WithContext("path", path)
	}

	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil, errs.FileNotFound(path)
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to stat file").WithContext("path", path)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to create watcher")
	}

	// Watch the directory so editors that replace the file are seen
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, errs.Wrap(err, errs.CodeSourceFailed, "failed to watch directory").WithContext("path", path)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:      fsWatcher,
		path:         absPath,
		debounce:     debounce,
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}, nil
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string {
	return w.path
}

// Run starts the watch loop. Blocks until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if absPath, err := filepath.Abs(event.Name); err != nil || absPath != w.path {
				continue
			}
			// Debounce rapid changes
			timer.Reset(w.debounce)

		case <-timer.C:
			w.handleChange(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.report(errs.Wrap(err, errs.CodeSourceFailed, "watch failed"))
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context) {
	stat, err := os.Stat(w.path)
	if err != nil {
		w.report(errs.Wrap(err, errs.CodeSourceFailed, "failed to stat file").WithContext("path", w.path))
		return
	}

	// Ignore events that left the file as it was
	if stat.ModTime().Equal(w.lastModified) && stat.Size() == w.size {
		return
	}
	w.lastModified = stat.ModTime()
	w.size = stat.Size()

	if w.OnChange != nil {
		if err := w.OnChange(ctx, w.path); err != nil {
			w.report(err)
		}
	}
}

func (w *Watcher) report(err error) {
	if w.OnError != nil {
		w.OnError(w.path, err)
	}
}

// Close stops the watcher without running the loop.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
