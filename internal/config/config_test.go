package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

// writeTestFile creates a file with the specified content, failing the test on error.
func writeTestFile(testingHandle *testing.T, filePath string, content string) {
	testingHandle.Helper()
	if makeDirError := os.MkdirAll(filepath.Dir(filePath), 0o755); makeDirError != nil {
		testingHandle.Fatalf("failed to create %s: %v", filepath.Dir(filePath), makeDirError)
	}
	if writeError := os.WriteFile(filePath, []byte(content), 0o644); writeError != nil {
		testingHandle.Fatalf("failed to write %s: %v", filePath, writeError)
	}
}

// TestLoadIgnoreFilePatternsSections verifies comment skipping and the [binary] section.
func TestLoadIgnoreFilePatternsSections(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	ignoreFilePath := filepath.Join(rootDirectory, utils.IgnoreFileName)
	writeTestFile(testingHandle, ignoreFilePath, "# comment\n\n*.log\nbuild/\n[binary]\nassets/*.png\n[ignore]\ntmp/\n")

	ignorePatterns, binaryPatterns, loadError := LoadIgnoreFilePatterns(ignoreFilePath)
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreFilePatterns failed: %v", loadError)
	}
	if !reflect.DeepEqual(ignorePatterns, []string{"*.log", "build/", "tmp/"}) {
		testingHandle.Fatalf("unexpected ignore patterns: %v", ignorePatterns)
	}
	if !reflect.DeepEqual(binaryPatterns, []string{"assets/*.png"}) {
		testingHandle.Fatalf("unexpected binary patterns: %v", binaryPatterns)
	}
}

// TestLoadIgnoreFilePatternsMissingFile verifies that an absent ignore file is not an error.
func TestLoadIgnoreFilePatternsMissingFile(testingHandle *testing.T) {
	ignorePatterns, binaryPatterns, loadError := LoadIgnoreFilePatterns(filepath.Join(testingHandle.TempDir(), "absent"))
	if loadError != nil {
		testingHandle.Fatalf("expected no error, got %v", loadError)
	}
	if len(ignorePatterns) != 0 || len(binaryPatterns) != 0 {
		testingHandle.Fatalf("expected no patterns, got %v %v", ignorePatterns, binaryPatterns)
	}
}

// TestLoadIgnoreRulesScopesNestedRules verifies that rules only apply below the directory declaring them.
func TestLoadIgnoreRulesScopesNestedRules(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.GitIgnoreFileName), "*.log\n")
	writeTestFile(testingHandle, filepath.Join(rootDirectory, "nested", utils.IgnoreFileName), "generated.go\n")

	rules, loadError := LoadIgnoreRules(rootDirectory, IgnoreOptions{UseGitignore: true, UseIgnoreFile: true})
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreRules failed: %v", loadError)
	}
	matcher := rules.Matcher()

	testCases := []struct {
		name     string
		path     []string
		expected bool
	}{
		{name: "root rule at root", path: []string{"debug.log"}, expected: true},
		{name: "root rule at depth", path: []string{"nested", "trace.log"}, expected: true},
		{name: "nested rule inside its directory", path: []string{"nested", "generated.go"}, expected: true},
		{name: "nested rule outside its directory", path: []string{"generated.go"}, expected: false},
		{name: "unmatched file", path: []string{"main.go"}, expected: false},
	}
	for _, testCase := range testCases {
		testingHandle.Run(testCase.name, func(testingHandle *testing.T) {
			if matched := matcher.Match(testCase.path, false); matched != testCase.expected {
				testingHandle.Fatalf("expected %t for %v, got %t", testCase.expected, testCase.path, matched)
			}
		})
	}

	expectedSources := []string{utils.GitIgnoreFileName, "nested/" + utils.IgnoreFileName}
	if !reflect.DeepEqual(rules.Sources, expectedSources) {
		testingHandle.Fatalf("unexpected sources: got %v want %v", rules.Sources, expectedSources)
	}
}

// TestLoadIgnoreRulesBinaryContent verifies aggregation of binary content patterns with directory prefixes.
func TestLoadIgnoreRulesBinaryContent(testingHandle *testing.T) {
	const binaryPatternName = "data.bin"

	rootDirectory := testingHandle.TempDir()
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.IgnoreFileName), "[binary]\n"+binaryPatternName+"\n")
	writeTestFile(testingHandle, filepath.Join(rootDirectory, "nested", utils.IgnoreFileName), "[binary]\n"+binaryPatternName+"\n")

	rules, loadError := LoadIgnoreRules(rootDirectory, IgnoreOptions{UseIgnoreFile: true})
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreRules failed: %v", loadError)
	}
	if len(rules.Patterns) != 0 {
		testingHandle.Fatalf("expected no ignore patterns, got %d", len(rules.Patterns))
	}
	expectedBinaryPatterns := []string{binaryPatternName, "nested/" + binaryPatternName}
	if !reflect.DeepEqual(rules.BinaryPatterns, expectedBinaryPatterns) {
		testingHandle.Fatalf("unexpected binary content patterns: got %v want %v", rules.BinaryPatterns, expectedBinaryPatterns)
	}
}

// TestLoadIgnoreRulesSkipsIgnoredDirectories verifies that ignore files inside ignored directories are not read.
func TestLoadIgnoreRulesSkipsIgnoredDirectories(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.GitIgnoreFileName), "vendor/\n")
	writeTestFile(testingHandle, filepath.Join(rootDirectory, "vendor", utils.GitIgnoreFileName), "!keep.go\n")
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.GitDirectoryName, utils.GitIgnoreFileName), "*\n")

	rules, loadError := LoadIgnoreRules(rootDirectory, IgnoreOptions{UseGitignore: true})
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreRules failed: %v", loadError)
	}
	if !reflect.DeepEqual(rules.Sources, []string{utils.GitIgnoreFileName}) {
		testingHandle.Fatalf("unexpected sources: %v", rules.Sources)
	}
}

// TestLoadIgnoreRulesDisabled verifies that no files are read when both ignore sources are disabled.
func TestLoadIgnoreRulesDisabled(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.GitIgnoreFileName), "*\n")

	rules, loadError := LoadIgnoreRules(rootDirectory, IgnoreOptions{})
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreRules failed: %v", loadError)
	}
	if len(rules.Patterns) != 0 || rules.Matcher().Match([]string{"main.go"}, false) {
		testingHandle.Fatalf("expected no rules when ignore files are disabled")
	}
}

// TestLoadIgnoreRulesSkipDirectory verifies that pruned directories are never read and
// that an unreadable ignore file elsewhere becomes a warning.
func TestLoadIgnoreRulesSkipDirectory(testingHandle *testing.T) {
	rootDirectory := testingHandle.TempDir()
	writeTestFile(testingHandle, filepath.Join(rootDirectory, utils.GitIgnoreFileName), "*.log\n")
	writeTestFile(testingHandle, filepath.Join(rootDirectory, "vendor", utils.GitIgnoreFileName), "*.go\n")
	unreadablePaths := []string{
		filepath.Join(rootDirectory, "vendor", "lib", utils.GitIgnoreFileName),
		filepath.Join(rootDirectory, "tools", utils.GitIgnoreFileName),
	}
	for _, unreadablePath := range unreadablePaths {
		if makeDirError := os.MkdirAll(unreadablePath, 0o755); makeDirError != nil {
			testingHandle.Fatalf("failed to create %s: %v", unreadablePath, makeDirError)
		}
	}

	var visited []string
	rules, loadError := LoadIgnoreRules(rootDirectory, IgnoreOptions{
		UseGitignore: true,
		SkipDirectory: func(relativeDir string) bool {
			visited = append(visited, relativeDir)
			return relativeDir == "vendor"
		},
	})
	if loadError != nil {
		testingHandle.Fatalf("LoadIgnoreRules failed: %v", loadError)
	}
	if !reflect.DeepEqual(rules.Sources, []string{utils.GitIgnoreFileName}) {
		testingHandle.Fatalf("unexpected sources: %v", rules.Sources)
	}
	for _, relativeDir := range visited {
		if relativeDir == "vendor/lib" {
			testingHandle.Fatalf("expected vendor to be pruned, visited %v", visited)
		}
	}
	if len(rules.Warnings) != 1 {
		testingHandle.Fatalf("expected one warning, got %v", rules.Warnings)
	}
	if rules.Warnings[0].Stage != types.StageIgnore || rules.Warnings[0].Path != "tools/"+utils.GitIgnoreFileName {
		testingHandle.Fatalf("unexpected warning: %v", rules.Warnings[0])
	}
}
