// Package aggregate reads accepted files and decorates their content for a prompt.
package aggregate

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/codeprompt/internal/pattern"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	// BinaryPlaceholder replaces the content of files that are not valid text.
	BinaryPlaceholder     = "[binary content omitted]"
	unreadablePlaceholder = "[unreadable: %v]"
	lineNumberFormat      = "%4d | "
	codeFence             = "```"
	lineBreak             = "\n"
	warningFileReadFormat = "reading file %s: %w"
)

// Options selects how file content is decorated.
type Options struct {
	LineNumbers bool
	// CodeBlock wraps content in a fence whose language hint is the file extension.
	CodeBlock     bool
	AbsolutePaths bool
	Workers       int
	// BinaryPatterns name binary files that are emitted as base64.
	BinaryPatterns []string
	Logger         *zap.Logger
	// OnAggregated is invoked after each file is rendered, possibly concurrently.
	OnAggregated func(types.RenderedFile)
	// ReadFile defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Aggregator renders FileEntry values into RenderedFile values.
type Aggregator struct {
	options       Options
	binaryContent pattern.BinaryContent
}

// New applies defaults to options.
func New(options Options) *Aggregator {
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.ReadFile == nil {
		options.ReadFile = os.ReadFile
	}
	return &Aggregator{options: options, binaryContent: pattern.NewBinaryContent(options.BinaryPatterns)}
}

// Aggregate renders one entry. Read failures never fail the call: the file gets a
// placeholder and a warning is returned alongside it.
func (aggregator *Aggregator) Aggregate(entry types.FileEntry) (types.RenderedFile, *types.Warning) {
	rendered := types.RenderedFile{
		Path:      entry.RelativePath,
		Extension: entry.Extension,
	}
	if aggregator.options.AbsolutePaths {
		rendered.Path = entry.AbsolutePath
	}

	fileBytes, readError := aggregator.options.ReadFile(entry.AbsolutePath)
	if readError != nil {
		aggregator.options.Logger.Warn("file unreadable", zap.String("path", entry.RelativePath), zap.Error(readError))
		rendered.Code = aggregator.decorate(fmt.Sprintf(unreadablePlaceholder, readError), entry.Extension, false)
		rendered.Placeholder = true
		return rendered, &types.Warning{
			Path:  entry.RelativePath,
			Stage: types.StageAggregate,
			Err:   fmt.Errorf(warningFileReadFormat, entry.RelativePath, readError),
		}
	}

	if utils.IsBinary(fileBytes) {
		if aggregator.binaryContent.Matches(entry.RelativePath) {
			rendered.Code = aggregator.decorate(base64.StdEncoding.EncodeToString(fileBytes), entry.Extension, false)
			return rendered, nil
		}
		rendered.Code = aggregator.decorate(BinaryPlaceholder, entry.Extension, false)
		rendered.Placeholder = true
		return rendered, nil
	}

	rendered.Code = aggregator.decorate(string(fileBytes), entry.Extension, aggregator.options.LineNumbers)
	return rendered, nil
}

// AggregateAll renders entries in parallel. The output keeps the input order.
// Cancellation of ctx returns ctx.Err() and no files.
func (aggregator *Aggregator) AggregateAll(ctx context.Context, entries []types.FileEntry) ([]types.RenderedFile, []types.Warning, error) {
	renderedFiles := make([]types.RenderedFile, len(entries))
	warnings := make([]*types.Warning, len(entries))
	var warningCount atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(aggregator.options.Workers)
	for index, entry := range entries {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if contextError := groupCtx.Err(); contextError != nil {
				return contextError
			}
			rendered, warning := aggregator.Aggregate(entry)
			renderedFiles[index] = rendered
			if warning != nil {
				warnings[index] = warning
				warningCount.Add(1)
			}
			if aggregator.options.OnAggregated != nil {
				aggregator.options.OnAggregated(rendered)
			}
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return nil, nil, waitError
	}
	if contextError := ctx.Err(); contextError != nil {
		return nil, nil, contextError
	}

	collected := make([]types.Warning, 0, warningCount.Load())
	for _, warning := range warnings {
		if warning != nil {
			collected = append(collected, *warning)
		}
	}
	return renderedFiles, collected, nil
}

func (aggregator *Aggregator) decorate(content string, extension string, numbered bool) string {
	if numbered {
		content = numberLines(content)
	}
	if !aggregator.options.CodeBlock {
		return content
	}
	return codeFence + extension + lineBreak + content + lineBreak + codeFence
}

func numberLines(content string) string {
	trimmed := strings.TrimSuffix(content, lineBreak)
	if trimmed == "" {
		return content
	}
	lines := strings.Split(trimmed, lineBreak)
	var builder strings.Builder
	for index, line := range lines {
		if index > 0 {
			builder.WriteString(lineBreak)
		}
		fmt.Fprintf(&builder, lineNumberFormat, index+1)
		builder.WriteString(line)
	}
	return builder.String()
}
