// Package pipeline turns a source tree into a rendered prompt.
//
// Run validates configuration first (globs, template, tokenizer, git ref pairs) so that
// configuration errors surface before any file is read. It then loads ignore rules,
// walks the tree, builds the source tree, aggregates file content, fetches optional git
// context (working tree diff, diff and log between refs), renders the template and
// counts tokens.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/temirov/codeprompt/internal/aggregate"
	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/gitctx"
	"github.com/temirov/codeprompt/internal/pattern"
	"github.com/temirov/codeprompt/internal/render"
	"github.com/temirov/codeprompt/internal/tokenizer"
	"github.com/temirov/codeprompt/internal/tree"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
	"github.com/temirov/codeprompt/internal/walker"
)

// Options configures one run.
type Options struct {
	Root     string
	Patterns types.PatternSet

	UseGitignore  bool
	UseIgnoreFile bool
	IncludeGit    bool

	LineNumbers   bool
	CodeBlock     bool
	AbsolutePaths bool

	// TemplatePath selects a custom template; empty uses the built-in one.
	TemplatePath string
	// Renderer overrides TemplatePath when set.
	Renderer  render.Renderer
	Variables map[string]string

	CountTokens   bool
	PerFileTokens bool
	Encoding      string
	Model         string
	// Counter overrides the tiktoken counter selected by Encoding and Model.
	Counter tokenizer.Counter

	// WorkingDiff adds the diff from HEAD to the working tree.
	WorkingDiff bool
	DiffBranch  string
	LogBranch   string
	GitRequired bool

	Workers  int
	Logger   *zap.Logger
	Progress func(Progress)
	// ReadFile replaces os.ReadFile when aggregating content.
	ReadFile func(path string) ([]byte, error)
}

// Progress is a snapshot of the run's counters. It may be delivered from several
// goroutines at once.
type Progress struct {
	Stage      string
	Discovered int64
	Aggregated int64
}

// Result is the outcome of a run.
type Result struct {
	Rendered string
	Model    types.PromptModel
	Tokens   types.TokenReport
	Files    []types.RenderedFile
	Warnings []types.Warning
}

// WarningError folds every warning into one error, or nil when there are none.
func (result Result) WarningError() error {
	var combined error
	for _, warning := range result.Warnings {
		combined = multierr.Append(combined, warning)
	}
	return combined
}

type progressTracker struct {
	discovered atomic.Int64
	aggregated atomic.Int64
	callback   func(Progress)
}

func (tracker *progressTracker) report(stage string) {
	if tracker.callback == nil {
		return
	}
	tracker.callback(Progress{Stage: stage, Discovered: tracker.discovered.Load(), Aggregated: tracker.aggregated.Load()})
}

type prepared struct {
	absoluteRoot string
	matcherSet   types.PatternSet
	prefilter    *pattern.Matcher
	renderer     render.Renderer
	encoding     tokenizer.Encoding
	counter      tokenizer.Counter
	workingDiff  bool
	diffPair     *gitctx.RefPair
	logPair      *gitctx.RefPair
}

// Run executes the pipeline. Configuration problems are returned as *ConfigError
// before traversal; per-file problems become warnings; a cancelled ctx returns
// ctx.Err() without rendering anything.
func Run(ctx context.Context, options Options) (Result, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	setup, prepareErr := prepare(options)
	if prepareErr != nil {
		return Result{}, prepareErr
	}
	tracker := &progressTracker{callback: options.Progress}

	rules, rulesErr := config.LoadIgnoreRules(setup.absoluteRoot, config.IgnoreOptions{
		UseGitignore:  options.UseGitignore,
		UseIgnoreFile: options.UseIgnoreFile,
		IncludeGit:    options.IncludeGit,
		SkipDirectory: func(relativeDir string) bool { return !setup.prefilter.ShouldDescend(relativeDir) },
		Logger:        logger,
	})
	if rulesErr != nil {
		return Result{}, &ConfigError{Field: FieldIgnoreRules, Value: setup.absoluteRoot, Err: rulesErr}
	}
	matcher, compileErr := pattern.Compile(setup.matcherSet, rules)
	if compileErr != nil {
		return Result{}, patternConfigError(compileErr)
	}

	tracker.report(types.StageWalk)
	walkResult, walkErr := walker.New(setup.absoluteRoot, matcher, walker.Options{
		Workers: options.Workers,
		Logger:  logger,
		OnEntry: func(types.FileEntry) {
			tracker.discovered.Add(1)
			tracker.report(types.StageWalk)
		},
	}).Walk(ctx)
	if walkErr != nil {
		return Result{}, walkErr
	}
	warnings := append(append([]types.Warning{}, rules.Warnings...), walkResult.Warnings...)

	rootName := utils.RootLabel(setup.absoluteRoot)
	sourceTree := tree.Build(rootName, walkResult.Entries)

	tracker.report(types.StageAggregate)
	aggregator := aggregate.New(aggregate.Options{
		LineNumbers:    options.LineNumbers,
		CodeBlock:      options.CodeBlock,
		AbsolutePaths:  options.AbsolutePaths,
		Workers:        options.Workers,
		BinaryPatterns: rules.BinaryPatterns,
		Logger:         logger,
		ReadFile:       options.ReadFile,
		OnAggregated: func(types.RenderedFile) {
			tracker.aggregated.Add(1)
			tracker.report(types.StageAggregate)
		},
	})
	files, aggregateWarnings, aggregateErr := aggregator.AggregateAll(ctx, walkResult.Entries)
	if aggregateErr != nil {
		return Result{}, aggregateErr
	}
	warnings = append(warnings, aggregateWarnings...)

	if setup.counter != nil && options.PerFileTokens {
		tracker.report(types.StageTokens)
		files, warnings = countPerFile(ctx, setup.counter, files, options.Workers, warnings, logger)
		if contextErr := ctx.Err(); contextErr != nil {
			return Result{}, contextErr
		}
	}

	tracker.report(types.StageGit)
	gitContext, gitWarnings, gitErr := fetchGitContext(setup, options.GitRequired, logger)
	if gitErr != nil {
		return Result{}, gitErr
	}
	warnings = append(warnings, gitWarnings...)

	if contextErr := ctx.Err(); contextErr != nil {
		return Result{}, contextErr
	}

	model := types.PromptModel{
		RootPath:   setup.absoluteRoot,
		RootName:   rootName,
		SourceTree: tree.Render(sourceTree),
		Tree:       sourceTree,
		Files:      files,
		Git:        gitContext,
		Variables:  options.Variables,
	}
	rendered, renderErr := setup.renderer.Render(model)
	if renderErr != nil {
		return Result{}, renderErr
	}

	result := Result{Rendered: rendered, Model: model, Files: files, Warnings: warnings}
	if setup.counter != nil {
		tracker.report(types.StageTokens)
		count, countErr := setup.counter.CountString(rendered)
		if countErr != nil {
			return Result{}, fmt.Errorf("count tokens: %w", countErr)
		}
		result.Tokens = types.TokenReport{Encoding: setup.encoding.Name, ModelInfo: setup.encoding.ModelInfo, Count: count}
	}
	logger.Debug("prompt rendered",
		zap.Int("files", len(files)),
		zap.Int("warnings", len(warnings)),
		zap.Int("tokens", result.Tokens.Count))
	return result, nil
}

func prepare(options Options) (prepared, error) {
	var setup prepared

	absoluteRoot, absoluteErr := filepath.Abs(options.Root)
	if absoluteErr != nil {
		return prepared{}, &ConfigError{Field: FieldRoot, Value: options.Root, Err: absoluteErr}
	}
	if _, statErr := os.Stat(absoluteRoot); statErr != nil {
		return prepared{}, &ConfigError{Field: FieldRoot, Value: options.Root, Err: statErr}
	}
	setup.absoluteRoot = absoluteRoot

	setup.matcherSet = types.PatternSet{
		Include:         utils.SplitPatternList(options.Patterns.Include),
		Exclude:         utils.SplitPatternList(options.Patterns.Exclude),
		IncludePriority: options.Patterns.IncludePriority,
	}
	prefilter, compileErr := pattern.Compile(setup.matcherSet, config.IgnoreRules{IncludeGit: options.IncludeGit})
	if compileErr != nil {
		return prepared{}, patternConfigError(compileErr)
	}
	setup.prefilter = prefilter

	switch {
	case options.Renderer != nil:
		setup.renderer = options.Renderer
	case strings.TrimSpace(options.TemplatePath) != "":
		renderer, loadErr := render.Load(options.TemplatePath)
		if loadErr != nil {
			var templateError *render.TemplateError
			if errors.As(loadErr, &templateError) {
				return prepared{}, loadErr
			}
			return prepared{}, &ConfigError{Field: FieldTemplate, Value: options.TemplatePath, Err: loadErr}
		}
		setup.renderer = renderer
	default:
		setup.renderer = render.Default()
	}

	if options.CountTokens {
		encoding, selectErr := tokenizer.Select(tokenizer.Config{Encoding: options.Encoding, Model: options.Model})
		if selectErr != nil {
			field, value := FieldEncoding, options.Encoding
			if strings.TrimSpace(options.Model) != "" {
				field, value = FieldModel, options.Model
			}
			return prepared{}, &ConfigError{Field: field, Value: value, Err: selectErr}
		}
		setup.encoding = encoding
		setup.counter = options.Counter
		if setup.counter == nil {
			counter, _, counterErr := tokenizer.NewCounter(tokenizer.Config{Encoding: encoding.Name})
			if counterErr != nil {
				return prepared{}, counterErr
			}
			setup.counter = counter
		}
	}

	setup.workingDiff = options.WorkingDiff
	if strings.TrimSpace(options.DiffBranch) != "" {
		pair, parseErr := gitctx.ParseRefPair(options.DiffBranch)
		if parseErr != nil {
			return prepared{}, &ConfigError{Field: FieldDiffBranch, Value: options.DiffBranch, Err: parseErr}
		}
		setup.diffPair = &pair
	}
	if strings.TrimSpace(options.LogBranch) != "" {
		pair, parseErr := gitctx.ParseRefPair(options.LogBranch)
		if parseErr != nil {
			return prepared{}, &ConfigError{Field: FieldLogBranch, Value: options.LogBranch, Err: parseErr}
		}
		setup.logPair = &pair
	}
	return setup, nil
}

func patternConfigError(err error) error {
	var patternError *pattern.PatternError
	if errors.As(err, &patternError) {
		return &ConfigError{Field: FieldPattern, Value: patternError.Pattern, Err: err}
	}
	return err
}

func countPerFile(ctx context.Context, counter tokenizer.Counter, files []types.RenderedFile, workers int, warnings []types.Warning, logger *zap.Logger) ([]types.RenderedFile, []types.Warning) {
	cached, cacheErr := tokenizer.NewCachedCounter(counter, tokenizer.DefaultCacheSize)
	if cacheErr == nil {
		counter = cached
	}
	counted, countErr := tokenizer.CountFiles(ctx, counter, files, workers)
	if countErr != nil {
		logger.Warn("per-file token counting failed", zap.Error(countErr))
		return files, append(warnings, types.Warning{Stage: types.StageTokens, Err: countErr})
	}
	return counted, warnings
}

// fetchGitContext degrades to an empty section with a warning when a ref does not
// resolve, unless git context is required.
func fetchGitContext(setup prepared, required bool, logger *zap.Logger) (types.GitContext, []types.Warning, error) {
	var gitContext types.GitContext
	if !setup.workingDiff && setup.diffPair == nil && setup.logPair == nil {
		return gitContext, nil, nil
	}
	repositoryPath := setup.absoluteRoot
	if info, statErr := os.Stat(repositoryPath); statErr == nil && !info.IsDir() {
		repositoryPath = filepath.Dir(repositoryPath)
	}

	var warnings []types.Warning
	fail := func(err error) error {
		if required {
			return err
		}
		logger.Warn("git context unavailable", zap.Error(err))
		warnings = append(warnings, types.Warning{Path: repositoryPath, Stage: types.StageGit, Err: err})
		return nil
	}

	provider, openErr := gitctx.Open(repositoryPath)
	if openErr != nil {
		failErr := fail(openErr)
		return types.GitContext{}, warnings, failErr
	}
	if setup.workingDiff {
		workingDiff, workingErr := provider.WorkingDiff()
		if workingErr != nil {
			if failErr := fail(workingErr); failErr != nil {
				return types.GitContext{}, nil, failErr
			}
		} else {
			gitContext.WorkingDiff = workingDiff
		}
	}
	if setup.diffPair != nil {
		diffText, diffErr := provider.Diff(setup.diffPair.From, setup.diffPair.To)
		if diffErr != nil {
			if failErr := fail(diffErr); failErr != nil {
				return types.GitContext{}, nil, failErr
			}
		} else {
			gitContext.Diff = diffText
		}
	}
	if setup.logPair != nil {
		logText, logErr := provider.Log(setup.logPair.From, setup.logPair.To)
		if logErr != nil {
			if failErr := fail(logErr); failErr != nil {
				return types.GitContext{}, nil, failErr
			}
		} else {
			gitContext.Log = logText
		}
	}
	return gitContext, warnings, nil
}
