// Package pattern decides which paths under a root take part in a prompt.
//
// A Matcher combines user supplied include and exclude globs with the directory
// scoped rules read from ignore files. Explicit includes override ignore rules;
// the include priority flag then settles conflicts between includes and excludes.
package pattern

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	anyDepthPrefix = "**/"
	anchorPrefix   = "/"
	currentPrefix  = "./"
)

// PatternError reports a glob that cannot be compiled.
type PatternError struct {
	Pattern string
	Err     error
}

func (patternError *PatternError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %v", patternError.Pattern, patternError.Err)
}

func (patternError *PatternError) Unwrap() error {
	return patternError.Err
}

type glob struct {
	source     string
	expression string
}

// Matcher is the compiled decision function. It is read-only after Compile and safe
// for concurrent use.
type Matcher struct {
	include         []glob
	exclude         []glob
	includePriority bool
	ignore          gitignore.Matcher
	includeGit      bool
}

// Compile validates every include and exclude glob and binds them to the ignore rules.
func Compile(patterns types.PatternSet, rules config.IgnoreRules) (*Matcher, error) {
	includeGlobs, includeError := compileGlobs(patterns.Include)
	if includeError != nil {
		return nil, includeError
	}
	excludeGlobs, excludeError := compileGlobs(patterns.Exclude)
	if excludeError != nil {
		return nil, excludeError
	}
	matcher := &Matcher{
		include:         includeGlobs,
		exclude:         excludeGlobs,
		includePriority: patterns.IncludePriority,
		includeGit:      rules.IncludeGit,
	}
	if len(rules.Patterns) > 0 {
		matcher.ignore = rules.Matcher()
	}
	return matcher, nil
}

func compileGlobs(sources []string) ([]glob, error) {
	globs := make([]glob, 0, len(sources))
	for _, source := range utils.DeduplicatePatterns(sources) {
		expression := normalizeGlob(source)
		if expression == "" {
			continue
		}
		if !doublestar.ValidatePattern(expression) {
			return nil, &PatternError{Pattern: source, Err: doublestar.ErrBadPattern}
		}
		globs = append(globs, glob{source: source, expression: expression})
	}
	return globs, nil
}

// normalizeGlob turns a user glob into a doublestar expression over slash separated
// relative paths. A leading slash anchors the glob at the root; without it the glob
// may match at any depth. A trailing slash is dropped because directory globs already
// cover every path beneath them.
func normalizeGlob(source string) string {
	expression := strings.TrimSpace(strings.ReplaceAll(source, "\\", "/"))
	expression = strings.TrimPrefix(expression, currentPrefix)
	expression = strings.TrimRight(expression, "/")
	if expression == "" {
		return ""
	}
	if strings.HasPrefix(expression, anchorPrefix) {
		return strings.TrimLeft(expression, anchorPrefix)
	}
	if strings.HasPrefix(expression, anyDepthPrefix) || expression == "**" {
		return expression
	}
	return anyDepthPrefix + expression
}

// HasIncludes reports whether any include glob is configured.
func (matcher *Matcher) HasIncludes() bool {
	return len(matcher.include) > 0
}

// Decide reports whether the file or directory at relativePath is accepted.
func (matcher *Matcher) Decide(relativePath string, isDir bool) bool {
	segments := utils.SplitPathSegments(relativePath)
	if len(segments) == 0 {
		return true
	}
	if !matcher.includeGit && containsGitDirectory(segments) {
		return false
	}
	included := matcher.matchesInclude(segments)
	if !isDir && utils.IsServiceFile(relativePath) && !included {
		return false
	}
	if matcher.HasIncludes() && !included {
		return false
	}
	if matcher.isIgnored(segments, isDir) && !included {
		return false
	}
	if matchesAny(matcher.exclude, segments) {
		return matcher.includePriority && included
	}
	return true
}

// ShouldDescend reports whether the walker should read the directory at relativeDir.
// Excluded directories are pruned unless include priority could rescue a path below
// them. Ignored directories are pruned only when no includes are configured, since an
// include may name a file inside them.
func (matcher *Matcher) ShouldDescend(relativeDir string) bool {
	segments := utils.SplitPathSegments(relativeDir)
	if len(segments) == 0 {
		return true
	}
	if !matcher.includeGit && containsGitDirectory(segments) {
		return false
	}
	if matchesAny(matcher.exclude, segments) && !(matcher.includePriority && matcher.HasIncludes()) {
		return false
	}
	if matcher.isIgnored(segments, true) && !matcher.HasIncludes() {
		return false
	}
	return true
}

func (matcher *Matcher) matchesInclude(segments []string) bool {
	return matchesAny(matcher.include, segments)
}

func (matcher *Matcher) isIgnored(segments []string, isDir bool) bool {
	if matcher.ignore == nil {
		return false
	}
	if matcher.ignore.Match(segments, isDir) {
		return true
	}
	for depth := 1; depth < len(segments); depth++ {
		if matcher.ignore.Match(segments[:depth], true) {
			return true
		}
	}
	return false
}

// matchesAny reports whether a glob matches the path or one of its ancestor directories.
func matchesAny(globs []glob, segments []string) bool {
	if len(globs) == 0 {
		return false
	}
	for depth := len(segments); depth > 0; depth-- {
		candidate := path.Join(segments[:depth]...)
		for _, compiled := range globs {
			if matched, _ := doublestar.Match(compiled.expression, candidate); matched {
				return true
			}
		}
	}
	return false
}

func containsGitDirectory(segments []string) bool {
	for _, segment := range segments {
		if segment == utils.GitDirectoryName {
			return true
		}
	}
	return false
}
