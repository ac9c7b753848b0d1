// Package watch triggers reconciliation passes when notes in a corpus
// directory change on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a pass is
// triggered.
const DefaultDebounce = 500 * time.Millisecond

// Options configure a watcher.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnChange, if set, is called for every relevant event with the file name
	// relative to the corpus root.
	OnChange func(name string)
	// Trigger runs a pass. Calls never overlap: events arriving while a pass
	// runs are coalesced into the next one.
	Trigger func(ctx context.Context)
}

// Relevant reports whether a change to name should trigger a pass. Hidden
// files, which include the index counter and in-flight temp files, are
// ignored along with anything that is not a Markdown note.
func Relevant(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".md")
}

// Watch watches root (not its subdirectories) until ctx is cancelled.
//
// Passes rewrite notes, which produces events of their own. The follow-up
// pass they trigger finds nothing to change and writes nothing, so the loop
// settles.
func Watch(ctx context.Context, root string, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			logger.Debug("watcher: triggering pass")
			if opts.Trigger != nil {
				opts.Trigger(ctx)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !Relevant(ev.Name) {
				continue
			}
			name, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", name), slog.String("op", ev.Op.String()))
			if opts.OnChange != nil {
				opts.OnChange(name)
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
