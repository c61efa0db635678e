// Package render binds a prompt model into a text/template.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/temirov/codeprompt/internal/types"
)

// Template variable names available to every template.
const (
	VariableAbsoluteCodePath = "absolute_code_path"
	VariableRootName         = "root_name"
	VariableSourceTree       = "source_tree"
	VariableFiles            = "files"
	VariableGitDiff          = "git_diff"
	VariableGitDiffBranch    = "git_diff_branch"
	VariableGitLogBranch     = "git_log_branch"

	FileFieldPath      = "path"
	FileFieldExtension = "extension"
	FileFieldCode      = "code"
	FileFieldTokens    = "tokens"

	// DefaultTemplateName names the built-in template in errors.
	DefaultTemplateName = "default"
	missingKeyOption    = "missingkey=error"
)

//go:embed default.tmpl
var defaultTemplateSource string

// Renderer turns a PromptModel into prompt text.
type Renderer interface {
	Render(model types.PromptModel) (string, error)
}

// TemplateError reports a template that failed to parse or execute.
type TemplateError struct {
	Name string
	Err  error
}

func (templateError *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", templateError.Name, templateError.Err)
}

func (templateError *TemplateError) Unwrap() error {
	return templateError.Err
}

type textRenderer struct {
	name     string
	template *template.Template
}

// New parses source with the sprig function map. Executing a template that refers to
// an undefined variable fails instead of printing "<no value>".
func New(source string, name string) (Renderer, error) {
	parsed, parseErr := template.New(name).Funcs(sprig.TxtFuncMap()).Option(missingKeyOption).Parse(source)
	if parseErr != nil {
		return nil, &TemplateError{Name: name, Err: parseErr}
	}
	return textRenderer{name: name, template: parsed}, nil
}

// Default returns the built-in renderer.
func Default() Renderer {
	renderer, err := New(defaultTemplateSource, DefaultTemplateName)
	if err != nil {
		panic(err)
	}
	return renderer
}

// Load reads and parses the template at path. A missing file yields an error wrapping
// fs.ErrNotExist; a malformed one a *TemplateError.
//
// #nosec G304
func Load(path string) (Renderer, error) {
	source, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read template %s: %w", path, readErr)
	}
	return New(string(source), filepath.Base(path))
}

func (renderer textRenderer) Render(model types.PromptModel) (string, error) {
	var buffer bytes.Buffer
	if executeErr := renderer.template.Execute(&buffer, Data(model)); executeErr != nil {
		return "", &TemplateError{Name: renderer.name, Err: executeErr}
	}
	return strings.TrimSpace(buffer.String()), nil
}

// Data builds the variables handed to a template. User variables never shadow the
// built-in names.
func Data(model types.PromptModel) map[string]any {
	files := make([]map[string]any, 0, len(model.Files))
	for _, file := range model.Files {
		files = append(files, map[string]any{
			FileFieldPath:      file.Path,
			FileFieldExtension: file.Extension,
			FileFieldCode:      file.Code,
			FileFieldTokens:    file.Tokens,
		})
	}
	data := make(map[string]any, len(model.Variables)+7)
	for key, value := range model.Variables {
		data[key] = value
	}
	data[VariableAbsoluteCodePath] = model.RootPath
	data[VariableRootName] = model.RootName
	data[VariableSourceTree] = model.SourceTree
	data[VariableFiles] = files
	data[VariableGitDiff] = model.Git.WorkingDiff
	data[VariableGitDiffBranch] = model.Git.Diff
	data[VariableGitLogBranch] = model.Git.Log
	return data
}
