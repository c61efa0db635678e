// Package watch re-runs a callback whenever files under a root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/temirov/codeprompt/internal/utils"
)

// DefaultDebounce groups the events of one editor save or checkout into one run.
const DefaultDebounce = 300 * time.Millisecond

// Options tunes a Watcher.
type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger
	// Skip reports whether events for a path relative to the root are ignored. Skipped
	// directories are not watched. Paths inside .git are always skipped.
	Skip func(relativePath string) bool
}

// Watcher watches every directory under one root.
type Watcher struct {
	root    string
	options Options
}

// New returns a Watcher over root.
func New(root string, options Options) *Watcher {
	if options.Debounce <= 0 {
		options.Debounce = DefaultDebounce
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if absoluteRoot, absoluteErr := filepath.Abs(root); absoluteErr == nil {
		root = absoluteRoot
	}
	return &Watcher{root: root, options: options}
}

// Run calls callback once per burst of events under the root. It blocks until ctx is
// canceled or the underlying watcher fails. Callback errors are logged and do not stop
// the watch.
func (watcher *Watcher) Run(ctx context.Context, callback func(context.Context) error) error {
	notifier, createErr := fsnotify.NewWatcher()
	if createErr != nil {
		return fmt.Errorf("create file watcher: %w", createErr)
	}
	defer func() {
		_ = notifier.Close()
	}()

	if addErr := watcher.addTree(notifier, watcher.root); addErr != nil {
		return addErr
	}
	logger := watcher.options.Logger
	logger.Debug("watching for changes", zap.String("root", watcher.root), zap.Int("directories", len(notifier.WatchList())))

	timer := time.NewTimer(watcher.options.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			if watcher.skipped(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if addErr := watcher.addTree(notifier, event.Name); addErr != nil {
					logger.Debug("cannot watch new path", zap.String("path", event.Name), zap.Error(addErr))
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			timer.Reset(watcher.options.Debounce)
		case watchErr, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", zap.Error(watchErr))
		case <-timer.C:
			if callbackErr := callback(ctx); callbackErr != nil {
				if errors.Is(callbackErr, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				logger.Warn("watch run failed", zap.Error(callbackErr))
			}
		}
	}
}

// addTree watches directoryPath and every directory below it. Non-directories are ignored.
func (watcher *Watcher) addTree(notifier *fsnotify.Watcher, directoryPath string) error {
	return filepath.WalkDir(directoryPath, func(currentPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if currentPath == watcher.root {
				return walkErr
			}
			return filepath.SkipDir
		}
		if !entry.IsDir() {
			return nil
		}
		if currentPath != watcher.root && watcher.skipped(currentPath) {
			return filepath.SkipDir
		}
		if addErr := notifier.Add(currentPath); addErr != nil {
			return fmt.Errorf("watch %s: %w", currentPath, addErr)
		}
		return nil
	})
}

func (watcher *Watcher) skipped(absolutePath string) bool {
	relativePath := utils.RelativePathOrSelf(absolutePath, watcher.root)
	segments := utils.SplitPathSegments(relativePath)
	for _, segment := range segments {
		if segment == utils.GitDirectoryName {
			return true
		}
	}
	if watcher.options.Skip == nil || len(segments) == 0 {
		return false
	}
	return watcher.options.Skip(relativePath)
}
