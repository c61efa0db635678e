// Package config loads ignore files and application configuration.
package config

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"

	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	// binarySectionHeader identifies the section listing binary content patterns.
	binarySectionHeader = "[binary]"
	// ignoreSectionHeader identifies the section listing ignore patterns.
	ignoreSectionHeader = "[ignore]"
	commentPrefix       = "#"
	escapedCommentStart = `\#`
)

// IgnoreOptions selects which ignore files are honoured.
type IgnoreOptions struct {
	UseGitignore  bool
	UseIgnoreFile bool
	IncludeGit    bool
	// SkipDirectory prunes a directory, given relative to the root, before any of its
	// ignore files are read.
	SkipDirectory func(relativeDir string) bool
	Logger        *zap.Logger
}

// IgnoreRules holds the directory scoped rules read from every ignore file under a root.
type IgnoreRules struct {
	// Patterns are ordered parent directories first so that deeper files override shallower ones.
	Patterns []gitignore.Pattern
	// BinaryPatterns are slash separated globs, relative to the root, naming binary files
	// whose content should be emitted as base64.
	BinaryPatterns []string
	// Sources lists the ignore files that contributed rules, relative to the root.
	Sources []string
	// IncludeGit keeps the .git directory visible to the walker.
	IncludeGit bool
	// Warnings lists ignore files that exist but could not be read.
	Warnings []types.Warning
}

// Matcher returns a gitignore matcher over the loaded patterns.
func (rules IgnoreRules) Matcher() gitignore.Matcher {
	return gitignore.NewMatcher(rules.Patterns)
}

// LoadIgnoreFilePatterns reads a specified ignore file and returns ignore patterns and binary content patterns.
// A missing file yields no patterns and no error.
//
// #nosec G304
func LoadIgnoreFilePatterns(ignoreFilePath string) ([]string, []string, error) {
	fileHandle, openFileError := os.Open(ignoreFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil, nil
		}
		return nil, nil, openFileError
	}
	defer func() {
		closeError := fileHandle.Close()
		if closeError != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", ignoreFilePath, closeError)
		}
	}()

	var ignorePatterns []string
	var binaryContentPatterns []string
	currentSectionHeader := ignoreSectionHeader
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, commentPrefix) {
			continue
		}
		if strings.EqualFold(trimmedLine, binarySectionHeader) {
			currentSectionHeader = binarySectionHeader
			continue
		}
		if strings.EqualFold(trimmedLine, ignoreSectionHeader) {
			currentSectionHeader = ignoreSectionHeader
			continue
		}
		if strings.HasPrefix(trimmedLine, escapedCommentStart) {
			trimmedLine = strings.TrimPrefix(trimmedLine, `\`)
		}
		if currentSectionHeader == binarySectionHeader {
			binaryContentPatterns = append(binaryContentPatterns, trimmedLine)
			continue
		}
		ignorePatterns = append(ignorePatterns, trimmedLine)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, nil, scanError
	}
	return ignorePatterns, binaryContentPatterns, nil
}

// LoadIgnoreRules walks rootDirectoryPath and reads utils.IgnoreFileName and
// utils.GitIgnoreFileName from every directory. Each rule is scoped to the directory
// that declared it, following gitignore semantics. Directories already ignored by a
// parent rule or by SkipDirectory are not searched, and utils.GitDirectoryName is
// skipped unless IncludeGit is set. An ignore file that cannot be read is recorded in
// Warnings and contributes no rules.
func LoadIgnoreRules(rootDirectoryPath string, options IgnoreOptions) (IgnoreRules, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := IgnoreRules{IncludeGit: options.IncludeGit}
	if !options.UseGitignore && !options.UseIgnoreFile {
		return rules, nil
	}

	walkFunction := func(currentDirectoryPath string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			if directoryEntry != nil && directoryEntry.IsDir() && currentDirectoryPath != rootDirectoryPath {
				logger.Warn("skipping unreadable directory while loading ignore files", zap.String("path", currentDirectoryPath), zap.Error(walkError))
				return filepath.SkipDir
			}
			return walkError
		}
		if !directoryEntry.IsDir() {
			return nil
		}
		if !options.IncludeGit && directoryEntry.Name() == utils.GitDirectoryName {
			return filepath.SkipDir
		}

		relativeDirectory := utils.RelativePathOrSelf(currentDirectoryPath, rootDirectoryPath)
		domain := utils.SplitPathSegments(relativeDirectory)
		if len(domain) > 0 && options.SkipDirectory != nil && options.SkipDirectory(relativeDirectory) {
			return filepath.SkipDir
		}
		if len(domain) > 0 && gitignore.NewMatcher(rules.Patterns).Match(domain, true) {
			return filepath.SkipDir
		}
		prefix := ""
		if len(domain) > 0 {
			prefix = relativeDirectory + "/"
		}

		if options.UseIgnoreFile {
			ignoreFilePath := filepath.Join(currentDirectoryPath, utils.IgnoreFileName)
			ignorePatterns, binaryContentPatterns, loadError := LoadIgnoreFilePatterns(ignoreFilePath)
			if loadError != nil {
				rules.warn(logger, prefix+utils.IgnoreFileName, loadError)
			}
			rules.addPatterns(ignorePatterns, domain, prefix+utils.IgnoreFileName)
			for _, binaryPattern := range binaryContentPatterns {
				rules.BinaryPatterns = append(rules.BinaryPatterns, prefix+strings.TrimPrefix(binaryPattern, "/"))
			}
		}

		if options.UseGitignore {
			gitIgnoreFilePath := filepath.Join(currentDirectoryPath, utils.GitIgnoreFileName)
			gitIgnorePatterns, _, loadError := LoadIgnoreFilePatterns(gitIgnoreFilePath)
			if loadError != nil {
				rules.warn(logger, prefix+utils.GitIgnoreFileName, loadError)
			}
			rules.addPatterns(gitIgnorePatterns, domain, prefix+utils.GitIgnoreFileName)
		}

		return nil
	}

	if walkError := filepath.WalkDir(rootDirectoryPath, walkFunction); walkError != nil {
		return IgnoreRules{IncludeGit: options.IncludeGit}, walkError
	}

	rules.BinaryPatterns = utils.DeduplicatePatterns(rules.BinaryPatterns)
	logger.Debug("loaded ignore rules", zap.Int("patterns", len(rules.Patterns)), zap.Strings("sources", rules.Sources))
	return rules, nil
}

func (rules *IgnoreRules) addPatterns(lines []string, domain []string, source string) {
	if len(lines) == 0 {
		return
	}
	for _, line := range lines {
		rules.Patterns = append(rules.Patterns, gitignore.ParsePattern(line, domain))
	}
	rules.Sources = append(rules.Sources, source)
}

func (rules *IgnoreRules) warn(logger *zap.Logger, source string, loadError error) {
	logger.Warn("skipping unreadable ignore file", zap.String("path", source), zap.Error(loadError))
	rules.Warnings = append(rules.Warnings, types.Warning{Path: source, Stage: types.StageIgnore, Err: loadError})
}
