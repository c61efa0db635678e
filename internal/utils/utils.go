// Package utils contains general helper functions used across codeprompt.
package utils

import (
	"path"
	"path/filepath"
	"strings"
)

// Ignore and configuration file constants used across the project.
const (
	// IgnoreFileName is the name of the project's ignore file.
	IgnoreFileName = ".ignore"
	// GitIgnoreFileName is the name of the Git ignore file.
	GitIgnoreFileName = ".gitignore"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"
	// ConfigFileName is the local configuration file looked up in the working directory.
	ConfigFileName = ".codeprompt.yaml"
	// GlobalConfigDirectoryName is the directory under the user's home holding global configuration.
	GlobalConfigDirectoryName = ".codeprompt"
	// GlobalConfigFileName is the configuration file name inside GlobalConfigDirectoryName.
	GlobalConfigFileName = "config.yaml"
)

const (
	pathSegmentSeparator = "/"
	patternListSeparator = ","
)

var serviceFiles = map[string]struct{}{
	IgnoreFileName:    {},
	GitIgnoreFileName: {},
}

// DeduplicatePatterns removes duplicate patterns from a slice while preserving order.
// The first occurrence of each unique pattern is kept.
func DeduplicatePatterns(patterns []string) []string {
	encounteredPatterns := make(map[string]struct{})
	result := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if _, exists := encounteredPatterns[pattern]; !exists {
			encounteredPatterns[pattern] = struct{}{}
			result = append(result, pattern)
		}
	}
	return result
}

// SplitPatternList expands comma separated values into individual trimmed patterns.
// Commas inside {...} alternations and [...] classes belong to the glob and do not
// split it. Empty items are dropped and duplicates removed.
func SplitPatternList(values []string) []string {
	var patterns []string
	for _, value := range values {
		for _, item := range splitOutsideGroups(value) {
			trimmedItem := strings.TrimSpace(item)
			if trimmedItem == "" {
				continue
			}
			patterns = append(patterns, trimmedItem)
		}
	}
	return DeduplicatePatterns(patterns)
}

func splitOutsideGroups(value string) []string {
	var items []string
	braceDepth := 0
	inClass := false
	escaped := false
	itemStart := 0
	for index, character := range value {
		switch {
		case escaped:
			escaped = false
		case character == '\\':
			escaped = true
		case inClass:
			if character == ']' {
				inClass = false
			}
		case character == '[':
			inClass = true
		case character == '{':
			braceDepth++
		case character == '}' && braceDepth > 0:
			braceDepth--
		case string(character) == patternListSeparator && braceDepth == 0:
			items = append(items, value[itemStart:index])
			itemStart = index + 1
		}
	}
	return append(items, value[itemStart:])
}

// RelativePathOrSelf calculates the relative path from root to fullPath.
// Returns the cleaned fullPath if relative calculation fails.
// Returns "." if fullPath and root resolve to the same directory.
func RelativePathOrSelf(fullPath, root string) string {
	cleanPath := filepath.Clean(fullPath)
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return cleanPath
	}
	cleanAbsoluteRoot := filepath.Clean(absoluteRoot)
	if cleanPath == cleanAbsoluteRoot {
		return "."
	}
	relativePath, relErr := filepath.Rel(cleanAbsoluteRoot, cleanPath)
	if relErr != nil {
		return cleanPath
	}
	return filepath.ToSlash(relativePath)
}

// IsServiceFile reports whether the last segment of relativePath names an ignore file.
func IsServiceFile(relativePath string) bool {
	_, isServiceFile := serviceFiles[path.Base(filepath.ToSlash(relativePath))]
	return isServiceFile
}

// FileExtension returns the extension of name without the leading dot.
func FileExtension(name string) string {
	return strings.TrimPrefix(path.Ext(filepath.ToSlash(name)), ".")
}

// SplitPathSegments splits a slash separated relative path into its segments.
func SplitPathSegments(relativePath string) []string {
	normalizedPath := strings.Trim(filepath.ToSlash(relativePath), pathSegmentSeparator)
	if normalizedPath == "" || normalizedPath == "." {
		return nil
	}
	return strings.Split(normalizedPath, pathSegmentSeparator)
}

// ComparePaths orders slash separated relative paths segment by segment, which is the
// order produced by a depth-first walk over name-sorted directories.
func ComparePaths(left, right string) int {
	leftSegments := SplitPathSegments(left)
	rightSegments := SplitPathSegments(right)
	for index := 0; index < len(leftSegments) && index < len(rightSegments); index++ {
		if comparison := strings.Compare(leftSegments[index], rightSegments[index]); comparison != 0 {
			return comparison
		}
	}
	return len(leftSegments) - len(rightSegments)
}

// RootLabel returns the display name of a root directory.
func RootLabel(absoluteRoot string) string {
	base := filepath.Base(filepath.Clean(absoluteRoot))
	if base == pathSegmentSeparator || base == "." || base == string(filepath.Separator) {
		return absoluteRoot
	}
	return base
}
