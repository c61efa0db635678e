package walker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/codeprompt/internal/config"
	"github.com/temirov/codeprompt/internal/pattern"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/walker"
)

func writeTestFile(testingHandle *testing.T, filePath string, content string) {
	testingHandle.Helper()
	require.NoError(testingHandle, os.MkdirAll(filepath.Dir(filePath), 0o755))
	require.NoError(testingHandle, os.WriteFile(filePath, []byte(content), 0o644))
}

func relativePaths(result walker.Result) []string {
	var paths []string
	for entry := range result.All() {
		paths = append(paths, entry.RelativePath)
	}
	return paths
}

func walk(t *testing.T, root string, patterns types.PatternSet, rules config.IgnoreRules, workers int) walker.Result {
	t.Helper()
	matcher, err := pattern.Compile(patterns, rules)
	require.NoError(t, err)
	result, err := walker.New(root, matcher, walker.Options{Workers: workers}).Walk(context.Background())
	require.NoError(t, err)
	return result
}

func buildFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, relative := range []string{
		"README.md",
		"a.txt",
		"a/z.go",
		"a/b/c.go",
		"b/c.go",
		"logs/app.log",
		"logs/old/rotated.log",
		"src/a.rs",
		"src/b.rs",
	} {
		writeTestFile(t, filepath.Join(root, filepath.FromSlash(relative)), relative+"\n")
	}
	return root
}

func TestWalkDeterministicOrder(t *testing.T) {
	root := buildFixture(t)
	expected := []string{
		"README.md",
		"a/b/c.go",
		"a/z.go",
		"a.txt",
		"b/c.go",
		"logs/app.log",
		"logs/old/rotated.log",
		"src/a.rs",
		"src/b.rs",
	}
	for _, workers := range []int{1, 2, 8} {
		result := walk(t, root, types.PatternSet{}, config.IgnoreRules{}, workers)
		assert.Equal(t, expected, relativePaths(result), "workers %d", workers)
	}
}

func TestWalkPopulatesEntryMetadata(t *testing.T) {
	root := buildFixture(t)
	result := walk(t, root, types.PatternSet{Include: []string{"/src/a.rs"}}, config.IgnoreRules{}, 2)
	require.Len(t, result.Entries, 1)
	entry := result.Entries[0]
	assert.Equal(t, "src/a.rs", entry.RelativePath)
	assert.Equal(t, "rs", entry.Extension)
	assert.Equal(t, int64(len("src/a.rs\n")), entry.SizeBytes)
	assert.True(t, filepath.IsAbs(entry.AbsolutePath))
}

// TestWalkPruningWithExcludesOnly verifies that nothing below an excluded directory is returned.
func TestWalkPruningWithExcludesOnly(t *testing.T) {
	root := buildFixture(t)
	for _, excluded := range []string{"a", "logs", "old", "src"} {
		result := walk(t, root, types.PatternSet{Exclude: []string{excluded}}, config.IgnoreRules{}, 4)
		for _, relative := range relativePaths(result) {
			for _, segment := range strings.Split(relative, "/") {
				assert.NotEqual(t, excluded, segment, "path %s returned under excluded %s", relative, excluded)
			}
		}
	}
}

// TestWalkDropsDirectoriesWithOnlyExcludedFiles covers a directory whose files are all excluded.
func TestWalkDropsDirectoriesWithOnlyExcludedFiles(t *testing.T) {
	root := buildFixture(t)
	result := walk(t, root, types.PatternSet{Exclude: []string{"*.log"}}, config.IgnoreRules{}, 4)
	for _, relative := range relativePaths(result) {
		assert.False(t, strings.HasPrefix(relative, "logs/"), "unexpected %s", relative)
	}
}

func TestWalkHonoursIgnoreFiles(t *testing.T) {
	root := buildFixture(t)
	writeTestFile(t, filepath.Join(root, ".gitignore"), "*.rs\n")
	writeTestFile(t, filepath.Join(root, "a", ".ignore"), "z.go\n")

	rules, err := config.LoadIgnoreRules(root, config.IgnoreOptions{UseGitignore: true, UseIgnoreFile: true})
	require.NoError(t, err)
	result := walk(t, root, types.PatternSet{}, rules, 4)
	assert.Equal(t, []string{"README.md", "a/b/c.go", "a.txt", "b/c.go", "logs/app.log", "logs/old/rotated.log"}, relativePaths(result))

	rescued := walk(t, root, types.PatternSet{Include: []string{"a.rs"}}, rules, 4)
	assert.Equal(t, []string{"src/a.rs"}, relativePaths(rescued))
}

func TestWalkSkipsSymbolicLinks(t *testing.T) {
	root := buildFixture(t)
	if err := os.Symlink(filepath.Join(root, "src"), filepath.Join(root, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "README.md"), filepath.Join(root, "link.md")))

	result := walk(t, root, types.PatternSet{}, config.IgnoreRules{}, 4)
	for _, relative := range relativePaths(result) {
		assert.False(t, strings.HasPrefix(relative, "loop"), "followed symlink %s", relative)
		assert.NotEqual(t, "link.md", relative)
	}
}

func TestWalkSkipsGitDirectory(t *testing.T) {
	root := buildFixture(t)
	writeTestFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	result := walk(t, root, types.PatternSet{}, config.IgnoreRules{}, 2)
	assert.NotContains(t, relativePaths(result), ".git/HEAD")

	withGit := walk(t, root, types.PatternSet{}, config.IgnoreRules{IncludeGit: true}, 2)
	assert.Contains(t, relativePaths(withGit), ".git/HEAD")
}

func TestWalkRecordsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := buildFixture(t)
	locked := filepath.Join(root, "b")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	result := walk(t, root, types.PatternSet{}, config.IgnoreRules{}, 2)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "b", result.Warnings[0].Path)
	assert.Equal(t, types.StageWalk, result.Warnings[0].Stage)
	assert.NotContains(t, relativePaths(result), "b/c.go")
	assert.Contains(t, relativePaths(result), "src/b.rs")
}

func TestWalkReportsProgress(t *testing.T) {
	root := buildFixture(t)
	var discovered atomic.Int64
	matcher, err := pattern.Compile(types.PatternSet{}, config.IgnoreRules{})
	require.NoError(t, err)
	result, err := walker.New(root, matcher, walker.Options{
		Workers: 4,
		OnEntry: func(types.FileEntry) { discovered.Add(1) },
	}).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(result.Entries)), discovered.Load())
}

func TestWalkSingleFileRoot(t *testing.T) {
	root := buildFixture(t)
	result, err := walker.New(filepath.Join(root, "src", "a.rs"), nil, walker.Options{}).Walk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rs"}, relativePaths(result))
}

func TestWalkCancelled(t *testing.T) {
	root := buildFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := walker.New(root, nil, walker.Options{}).Walk(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWalkMissingRoot(t *testing.T) {
	_, err := walker.New(filepath.Join(t.TempDir(), "missing"), nil, walker.Options{}).Walk(context.Background())
	assert.Error(t, err)
}
