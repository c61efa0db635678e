package tokenizer

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/temirov/codeprompt/internal/types"
)

// CountResult captures the outcome of counting one rendered file.
type CountResult struct {
	Tokens  int
	Counted bool
}

// CountRendered estimates the tokens of a rendered file. Placeholders for binary or
// unreadable files are not counted.
func CountRendered(counter Counter, file types.RenderedFile) (CountResult, error) {
	if counter == nil {
		return CountResult{}, errors.New("nil tokenizer counter")
	}
	if file.Placeholder {
		return CountResult{Counted: false}, nil
	}
	tokens, err := counter.CountString(file.Code)
	if err != nil {
		return CountResult{}, err
	}
	return CountResult{Tokens: tokens, Counted: true}, nil
}

// CountFiles returns a copy of files with Tokens populated, counting in parallel.
// Files that cannot be counted keep zero tokens; the first counting error is returned.
func CountFiles(ctx context.Context, counter Counter, files []types.RenderedFile, workers int) ([]types.RenderedFile, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	counted := make([]types.RenderedFile, len(files))
	copy(counted, files)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for index := range counted {
		group.Go(func() error {
			if contextError := groupCtx.Err(); contextError != nil {
				return contextError
			}
			result, countErr := CountRendered(counter, counted[index])
			if countErr != nil {
				return countErr
			}
			counted[index].Tokens = result.Tokens
			return nil
		})
	}
	if waitErr := group.Wait(); waitErr != nil {
		return nil, waitErr
	}
	return counted, nil
}
