// Package gitctx reads diff and log context between two revisions of a repository.
package gitctx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const (
	refPairSeparator = ","
	shortHashLength  = 7
	logLineFormat    = "%s - %s"
)

var (
	// ErrRefNotFound reports a revision that does not resolve in the repository.
	ErrRefNotFound = errors.New("git reference not found")
	// ErrMalformedRefPair reports a ref pair that is not two comma separated refs.
	ErrMalformedRefPair = errors.New("expected two comma separated git refs")
)

// RefNotFoundError names the revision that failed to resolve.
type RefNotFoundError struct {
	Ref string
	Err error
}

func (refError *RefNotFoundError) Error() string {
	if refError.Err == nil {
		return fmt.Sprintf("git reference %q not found", refError.Ref)
	}
	return fmt.Sprintf("git reference %q not found: %v", refError.Ref, refError.Err)
}

func (refError *RefNotFoundError) Is(target error) bool {
	return target == ErrRefNotFound
}

func (refError *RefNotFoundError) Unwrap() error {
	return refError.Err
}

// RefPair is an ordered pair of revisions, From being the older side.
type RefPair struct {
	From string
	To   string
}

// ParseRefPair splits "a,b" into a RefPair.
func ParseRefPair(value string) (RefPair, error) {
	parts := strings.Split(value, refPairSeparator)
	if len(parts) != 2 {
		return RefPair{}, fmt.Errorf("%w: %q", ErrMalformedRefPair, value)
	}
	pair := RefPair{From: strings.TrimSpace(parts[0]), To: strings.TrimSpace(parts[1])}
	if pair.From == "" || pair.To == "" {
		return RefPair{}, fmt.Errorf("%w: %q", ErrMalformedRefPair, value)
	}
	return pair, nil
}

// Provider reads history from one repository.
type Provider struct {
	repository *git.Repository
}

// Open opens the repository containing path, searching parent directories for .git.
func Open(path string) (*Provider, error) {
	repository, openErr := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if openErr != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", path, openErr)
	}
	return &Provider{repository: repository}, nil
}

// Diff returns the unified patch that turns fromRef into toRef.
func (provider *Provider) Diff(fromRef string, toRef string) (string, error) {
	fromCommit, fromErr := provider.commit(fromRef)
	if fromErr != nil {
		return "", fromErr
	}
	toCommit, toErr := provider.commit(toRef)
	if toErr != nil {
		return "", toErr
	}
	patch, patchErr := fromCommit.Patch(toCommit)
	if patchErr != nil {
		return "", fmt.Errorf("diff %s..%s: %w", fromRef, toRef, patchErr)
	}
	return patch.String(), nil
}

// Log lists the commits reachable from toRef but not from fromRef, newest first,
// one "<short hash> - <subject>" line each.
func (provider *Provider) Log(fromRef string, toRef string) (string, error) {
	fromCommit, fromErr := provider.commit(fromRef)
	if fromErr != nil {
		return "", fromErr
	}
	toCommit, toErr := provider.commit(toRef)
	if toErr != nil {
		return "", toErr
	}

	excluded := make(map[plumbing.Hash]struct{})
	if walkErr := provider.eachCommit(fromCommit.Hash, func(commit *object.Commit) error {
		excluded[commit.Hash] = struct{}{}
		return nil
	}); walkErr != nil {
		return "", fmt.Errorf("log %s: %w", fromRef, walkErr)
	}

	var lines []string
	if walkErr := provider.eachCommit(toCommit.Hash, func(commit *object.Commit) error {
		if _, seen := excluded[commit.Hash]; seen {
			return nil
		}
		lines = append(lines, fmt.Sprintf(logLineFormat, commit.Hash.String()[:shortHashLength], subject(commit.Message)))
		return nil
	}); walkErr != nil {
		return "", fmt.Errorf("log %s..%s: %w", fromRef, toRef, walkErr)
	}
	return strings.Join(lines, "\n"), nil
}

func (provider *Provider) commit(ref string) (*object.Commit, error) {
	hash, resolveErr := provider.repository.ResolveRevision(plumbing.Revision(ref))
	if resolveErr != nil {
		return nil, &RefNotFoundError{Ref: ref, Err: resolveErr}
	}
	commit, commitErr := provider.repository.CommitObject(*hash)
	if commitErr != nil {
		return nil, &RefNotFoundError{Ref: ref, Err: commitErr}
	}
	return commit, nil
}

func (provider *Provider) eachCommit(from plumbing.Hash, visit func(*object.Commit) error) error {
	iterator, logErr := provider.repository.Log(&git.LogOptions{From: from, Order: git.LogOrderCommitterTime})
	if logErr != nil {
		return logErr
	}
	defer iterator.Close()
	forEachErr := iterator.ForEach(visit)
	if errors.Is(forEachErr, storer.ErrStop) {
		return nil
	}
	return forEachErr
}

func subject(message string) string {
	firstLine, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	return strings.TrimSpace(firstLine)
}
