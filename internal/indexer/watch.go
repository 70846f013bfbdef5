package indexer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/starford/xq/internal/apperr"
	"github.com/starford/xq/internal/storage"
)

// DefaultDebounce is how long Watch waits for file activity to settle.
const DefaultDebounce = 300 * time.Millisecond

// PassCallback is called after every watcher-driven pass.
type PassCallback func(sum *Summary)

// Watch runs a pass over pattern whenever a Markdown file below the
// pattern's root changes, until ctx is cancelled. Deleted files only become
// orphaned; removing them is still left to GC.
//
// New directories created at runtime are added to the watch list.
func (i *Indexer) Watch(ctx context.Context, pattern string, debounce time.Duration, cb PassCallback) error {
	root, err := WatchRoot(pattern)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	i.logger.Info("watcher: started", slog.String("root", root), slog.String("pattern", pattern))

	var passTimer *time.Timer
	var passCh <-chan time.Time

	schedulePass := func() {
		if passTimer == nil {
			passTimer = time.NewTimer(debounce)
			passCh = passTimer.C
		} else {
			passTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if passTimer != nil {
				passTimer.Stop()
			}
			i.logger.Info("watcher: stopped")
			return nil

		case <-passCh:
			sum, err := i.UpdatePattern(ctx, pattern)
			if errors.Is(err, apperr.ErrIndexBusy) {
				i.logger.Debug("watcher: pass deferred, index busy")
				schedulePass()
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			if cb != nil {
				cb(sum)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						i.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedulePass()
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, storage.NoteExt) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				i.logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedulePass()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			i.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// WatchRoot returns the directory to watch for pattern: the pattern itself
// when it names a directory, otherwise its longest glob-free parent. A "**"
// segment makes the root cover every directory below it.
func WatchRoot(pattern string) (string, error) {
	p, err := storage.ExpandHome(pattern)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return filepath.Abs(p)
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(p)))
	return filepath.Abs(filepath.FromSlash(base))
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
