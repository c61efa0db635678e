package render_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temirov/codeprompt/internal/render"
	"github.com/temirov/codeprompt/internal/types"
)

func sampleModel() types.PromptModel {
	return types.PromptModel{
		RootPath:   "/work/project",
		RootName:   "project",
		SourceTree: "project\n└── src\n    └── a.rs",
		Files: []types.RenderedFile{
			{Path: "src/a.rs", Extension: "rs", Code: "```rs\nfn main() {}\n```", Tokens: 5},
		},
		Variables: map[string]string{"task": "explain", "files": "shadowed"},
	}
}

func TestDefaultTemplate(t *testing.T) {
	rendered, err := render.Default().Render(sampleModel())
	require.NoError(t, err)
	expected := "Project Path: /work/project\n\n" +
		"Source Tree:\n\n" +
		"```\nproject\n└── src\n    └── a.rs\n```\n\n" +
		"`src/a.rs`:\n\n" +
		"```rs\nfn main() {}\n```"
	assert.Equal(t, expected, rendered)
}

func TestDefaultTemplateGitSections(t *testing.T) {
	model := sampleModel()
	model.Git = types.GitContext{Diff: "diff --git a/x b/x", Log: "abc1234 - change", WorkingDiff: "diff --git a/y b/y"}
	rendered, err := render.Default().Render(model)
	require.NoError(t, err)
	assert.Contains(t, rendered, "Git diff between branches:\n\n```diff\ndiff --git a/x b/x\n```")
	assert.Contains(t, rendered, "Git diff of the working tree:\n\n```diff\ndiff --git a/y b/y\n```")
	assert.Less(t, strings.Index(rendered, "working tree"), strings.Index(rendered, "between branches"))
	assert.Contains(t, rendered, "Git log between branches:\n\n```\nabc1234 - change\n```")

	withoutGit, err := render.Default().Render(sampleModel())
	require.NoError(t, err)
	assert.NotContains(t, withoutGit, "Git diff")
}

func TestCustomTemplateVariables(t *testing.T) {
	renderer, err := render.New("{{ .task | upper }} {{ .root_name }}{{ range .files }} {{ .path }}:{{ .tokens }}{{ end }} {{ len .files }}", "custom")
	require.NoError(t, err)
	rendered, err := renderer.Render(sampleModel())
	require.NoError(t, err)
	assert.Equal(t, "EXPLAIN project src/a.rs:5 1", rendered)
}

func TestUndefinedVariableFails(t *testing.T) {
	renderer, err := render.New("{{ .undefined_thing }}", "custom")
	require.NoError(t, err)
	_, err = renderer.Render(sampleModel())
	var templateError *render.TemplateError
	require.True(t, errors.As(err, &templateError))
	assert.Equal(t, "custom", templateError.Name)
}

func TestMalformedTemplate(t *testing.T) {
	_, err := render.New("{{ if .files }}", "broken")
	var templateError *render.TemplateError
	require.True(t, errors.As(err, &templateError))
	assert.Equal(t, "broken", templateError.Name)
}

func TestLoad(t *testing.T) {
	directory := t.TempDir()
	templatePath := filepath.Join(directory, "prompt.tmpl")
	require.NoError(t, os.WriteFile(templatePath, []byte("  {{ .absolute_code_path }}  \n"), 0o644))

	renderer, err := render.Load(templatePath)
	require.NoError(t, err)
	rendered, err := renderer.Render(sampleModel())
	require.NoError(t, err)
	assert.Equal(t, "/work/project", rendered)

	_, err = render.Load(filepath.Join(directory, "missing.tmpl"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
