// Package walker discovers the files under a root that a Matcher accepts.
package walker

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/pattern"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const warningReadDirectoryFormat = "reading directory %s: %w"

// Options tunes a walk.
type Options struct {
	// Workers bounds the number of directories read concurrently. Defaults to runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
	// OnEntry is invoked for every accepted file as it is discovered. It may be called
	// from several goroutines at once.
	OnEntry func(types.FileEntry)
}

// Walker traverses one root.
type Walker struct {
	root    string
	matcher *pattern.Matcher
	options Options
}

// Result holds the accepted files in deterministic order and the per-entry warnings.
type Result struct {
	Entries  []types.FileEntry
	Warnings []types.Warning
}

// All yields the accepted entries in order.
func (result Result) All() iter.Seq[types.FileEntry] {
	return func(yield func(types.FileEntry) bool) {
		for _, entry := range result.Entries {
			if !yield(entry) {
				return
			}
		}
	}
}

// New returns a Walker over root. A nil matcher accepts every regular file.
func New(root string, matcher *pattern.Matcher, options Options) *Walker {
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if matcher == nil {
		matcher, _ = pattern.Compile(types.PatternSet{}, config.IgnoreRules{})
	}
	return &Walker{root: root, matcher: matcher, options: options}
}

type collector struct {
	mutex    sync.Mutex
	entries  []types.FileEntry
	warnings []types.Warning
	onEntry  func(types.FileEntry)
	logger   *zap.Logger
}

func (c *collector) add(entry types.FileEntry) {
	c.mutex.Lock()
	c.entries = append(c.entries, entry)
	c.mutex.Unlock()
	if c.onEntry != nil {
		c.onEntry(entry)
	}
}

func (c *collector) warn(relativePath string, err error) {
	c.logger.Warn("skipping entry", zap.String("path", relativePath), zap.Error(err))
	c.mutex.Lock()
	c.warnings = append(c.warnings, types.Warning{Path: relativePath, Stage: types.StageWalk, Err: err})
	c.mutex.Unlock()
}

// Walk reads the tree. Subdirectories are read in parallel but the returned entries
// are always ordered segment by segment, which is the order of a depth-first walk with
// name-sorted children. Symbolic links are neither followed nor emitted.
func (walker *Walker) Walk(ctx context.Context) (Result, error) {
	absoluteRoot, absoluteError := filepath.Abs(walker.root)
	if absoluteError != nil {
		return Result{}, fmt.Errorf("abs failed for %s: %w", walker.root, absoluteError)
	}
	rootInfo, statError := os.Stat(absoluteRoot)
	if statError != nil {
		return Result{}, fmt.Errorf("stat root %s: %w", walker.root, statError)
	}
	if !rootInfo.IsDir() {
		name := filepath.Base(absoluteRoot)
		return Result{Entries: []types.FileEntry{newEntry(absoluteRoot, name, rootInfo)}}, nil
	}

	results := &collector{onEntry: walker.options.OnEntry, logger: walker.options.Logger}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(walker.options.Workers)

	var visit func(directoryPath string, relativeDirectory string) error
	visit = func(directoryPath string, relativeDirectory string) error {
		if contextError := groupCtx.Err(); contextError != nil {
			return contextError
		}
		directoryEntries, readError := os.ReadDir(directoryPath)
		if readError != nil {
			if relativeDirectory == "" {
				return fmt.Errorf(warningReadDirectoryFormat, directoryPath, readError)
			}
			results.warn(relativeDirectory, fmt.Errorf(warningReadDirectoryFormat, relativeDirectory, readError))
			return nil
		}
		for _, directoryEntry := range directoryEntries {
			childPath := filepath.Join(directoryPath, directoryEntry.Name())
			childRelative := path.Join(relativeDirectory, directoryEntry.Name())
			entryType := directoryEntry.Type()
			if entryType&fs.ModeSymlink != 0 {
				walker.options.Logger.Debug("skipping symbolic link", zap.String("path", childRelative))
				continue
			}
			if directoryEntry.IsDir() {
				if !walker.matcher.ShouldDescend(childRelative) {
					continue
				}
				if !group.TryGo(func() error { return visit(childPath, childRelative) }) {
					if visitError := visit(childPath, childRelative); visitError != nil {
						return visitError
					}
				}
				continue
			}
			if !entryType.IsRegular() {
				continue
			}
			if !walker.matcher.Decide(childRelative, false) {
				continue
			}
			fileInfo, infoError := directoryEntry.Info()
			if infoError != nil {
				results.warn(childRelative, infoError)
				continue
			}
			results.add(newEntry(childPath, childRelative, fileInfo))
		}
		return nil
	}

	group.Go(func() error { return visit(absoluteRoot, "") })
	if walkError := group.Wait(); walkError != nil {
		return Result{}, walkError
	}
	if contextError := ctx.Err(); contextError != nil {
		return Result{}, contextError
	}

	sort.Slice(results.entries, func(left, right int) bool {
		return utils.ComparePaths(results.entries[left].RelativePath, results.entries[right].RelativePath) < 0
	})
	sort.Slice(results.warnings, func(left, right int) bool {
		return utils.ComparePaths(results.warnings[left].Path, results.warnings[right].Path) < 0
	})
	return Result{Entries: results.entries, Warnings: results.warnings}, nil
}

func newEntry(absolutePath string, relativePath string, info fs.FileInfo) types.FileEntry {
	return types.FileEntry{
		AbsolutePath: absolutePath,
		RelativePath: relativePath,
		Extension:    utils.FileExtension(relativePath),
		SizeBytes:    info.Size(),
	}
}
