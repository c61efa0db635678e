// Package types defines every cross‑package data structure used by the codeprompt CLI.
package types

import (
	"encoding/xml"
	"fmt"
)

const (
	NodeTypeFile      = "file"
	NodeTypeDirectory = "directory"

	FormatRaw  = "raw"
	FormatJSON = "json"
	FormatXML  = "xml"

	StageIgnore    = "ignore"
	StageWalk      = "walk"
	StageAggregate = "aggregate"
	StageTokens    = "tokens"
	StageGit       = "git"
)

// PatternSet holds the user supplied include and exclude globs.
type PatternSet struct {
	Include         []string
	Exclude         []string
	IncludePriority bool
}

// FileEntry is a file accepted by the walker. It is never modified after discovery.
type FileEntry struct {
	AbsolutePath string
	RelativePath string
	Extension    string
	SizeBytes    int64
}

// TreeNode is one node of the rendered source tree. File nodes have no children.
type TreeNode struct {
	Name     string      `json:"name" xml:"name,attr"`
	Kind     string      `json:"kind" xml:"kind,attr"`
	Children []*TreeNode `json:"children,omitempty" xml:"node,omitempty"`
}

// IsDirectory reports whether the node is a directory.
func (node *TreeNode) IsDirectory() bool {
	return node != nil && node.Kind == NodeTypeDirectory
}

// RenderedFile is the decorated content of one FileEntry.
type RenderedFile struct {
	Path        string `json:"path" xml:"path,attr"`
	Extension   string `json:"extension" xml:"extension,attr"`
	Code        string `json:"code" xml:",chardata"`
	Tokens      int    `json:"tokens,omitempty" xml:"tokens,attr,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty" xml:"placeholder,attr,omitempty"`
}

// GitContext carries the optional git sections of a prompt.
type GitContext struct {
	Diff        string
	Log         string
	WorkingDiff string
}

// PromptModel is the read-only binding handed to the template renderer.
type PromptModel struct {
	RootPath   string
	RootName   string
	SourceTree string
	Tree       *TreeNode
	Files      []RenderedFile
	Git        GitContext
	Variables  map[string]string
}

// TokenReport captures the token count of a rendered prompt.
type TokenReport struct {
	Encoding  string `json:"encoding" xml:"encoding,attr"`
	ModelInfo string `json:"modelInfo" xml:"modelInfo,attr"`
	Count     int    `json:"count" xml:"count,attr"`
}

// Warning records a non-fatal problem with a single path.
type Warning struct {
	Path  string
	Stage string
	Err   error
}

func (warning Warning) Error() string {
	return fmt.Sprintf("%s %s: %v", warning.Stage, warning.Path, warning.Err)
}

func (warning Warning) Unwrap() error {
	return warning.Err
}

// Report is the structured record emitted instead of plain text for machine consumers.
type Report struct {
	XMLName       xml.Name       `json:"-" xml:"prompt"`
	Prompt        string         `json:"prompt" xml:"text"`
	DirectoryName string         `json:"directory_name" xml:"directory,attr"`
	TokenCount    int            `json:"token_count" xml:"tokens,attr"`
	Encoding      string         `json:"encoding,omitempty" xml:"encoding,attr,omitempty"`
	ModelInfo     string         `json:"model_info,omitempty" xml:"modelInfo,attr,omitempty"`
	SizeBytes     int            `json:"size_bytes" xml:"bytes,attr"`
	Size          string         `json:"size" xml:"size,attr"`
	Files         []string       `json:"files" xml:"files>file"`
	FileTokens    map[string]int `json:"file_tokens,omitempty" xml:"-"`
	Warnings      []string       `json:"warnings,omitempty" xml:"warnings>warning,omitempty"`
}
